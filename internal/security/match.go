// Package security decides whether detected faces belong to the authorized
// set and raises an alert once unrecognized faces persist.
package security

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/mudra/internal/landmark"
)

// Match tolerances, all relative to the reference face.
const (
	DimensionTolerance = 0.30
	AspectTolerance    = 0.25
	CenterToleranceX   = 0.60 // fraction of reference width
	CenterToleranceY   = 0.50 // fraction of reference height
	MaxLandmarkDist    = 0.5  // mean distance in reference landmark-spread units
	RequiredChecks     = 3
)

// MatchResult holds the outcome of each sub-check.
type MatchResult struct {
	Dimensions bool `json:"dimensions"`
	Aspect     bool `json:"aspect"`
	Center     bool `json:"center"`
	Landmarks  bool `json:"landmarks"`
}

// Score returns how many sub-checks passed.
func (r MatchResult) Score() int {
	n := 0
	for _, ok := range []bool{r.Dimensions, r.Aspect, r.Center, r.Landmarks} {
		if ok {
			n++
		}
	}
	return n
}

// Authorized reports whether enough sub-checks passed.
func (r MatchResult) Authorized() bool {
	return r.Score() >= RequiredChecks
}

// Match compares a detected face with a reference face. This is a geometric
// heuristic over box shape, position and landmark layout; it is not face
// recognition and is easily fooled.
func Match(candidate, reference landmark.Face) MatchResult {
	c, r := candidate.Box, reference.Box
	if !r.Valid() || !c.Valid() {
		return MatchResult{}
	}

	var res MatchResult

	res.Dimensions = relDiff(c.W, r.W) <= DimensionTolerance &&
		relDiff(c.H, r.H) <= DimensionTolerance

	res.Aspect = relDiff(c.W/c.H, r.W/r.H) <= AspectTolerance

	cx, cy := c.Center()
	rx, ry := r.Center()
	res.Center = math.Abs(cx-rx) <= CenterToleranceX*r.W &&
		math.Abs(cy-ry) <= CenterToleranceY*r.H

	if d, ok := LandmarkDistance(candidate, reference); ok {
		res.Landmarks = d < MaxLandmarkDist
	}

	return res
}

// LandmarkDistance returns the mean Euclidean distance between corresponding
// landmarks of candidate and reference, divided by the reference's spread
// (the mean distance of its landmarks from their centroid). Positions are
// compared as detected, so a moved or rescaled face moves the distance too.
// ok is false when either face has no landmarks, the counts differ, or the
// reference landmarks all coincide.
func LandmarkDistance(candidate, reference landmark.Face) (float64, bool) {
	a, b := candidate.Landmarks, reference.Landmarks
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}

	spread := landmarkSpread(b)
	if spread <= 0 {
		return 0, false
	}

	dists := make([]float64, len(a))
	for i := range a {
		dists[i] = math.Hypot(a[i].X-b[i].X, a[i].Y-b[i].Y)
	}
	return stat.Mean(dists, nil) / spread, true
}

func landmarkSpread(points []landmark.Point2D) float64 {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i], ys[i] = p.X, p.Y
	}
	cx, cy := stat.Mean(xs, nil), stat.Mean(ys, nil)

	dists := make([]float64, len(points))
	for i, p := range points {
		dists[i] = math.Hypot(p.X-cx, p.Y-cy)
	}
	return stat.Mean(dists, nil)
}

// IsAuthorized reports whether face matches any reference.
func IsAuthorized(face landmark.Face, refs []landmark.Face) bool {
	for _, ref := range refs {
		if Match(face, ref).Authorized() {
			return true
		}
	}
	return false
}

// CountUnauthorized returns how many faces match no reference. With no
// references every face is unauthorized. Faces with an invalid box are
// skipped.
func CountUnauthorized(faces, refs []landmark.Face) int {
	n := 0
	for _, f := range faces {
		if !f.Box.Valid() {
			continue
		}
		if !IsAuthorized(f, refs) {
			n++
		}
	}
	return n
}

func relDiff(v, ref float64) float64 {
	return math.Abs(v-ref) / ref
}
