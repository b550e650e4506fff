package detector

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/landmark"
)

// ErrCascadeLoad is returned when a Haar cascade file cannot be loaded.
var ErrCascadeLoad = errors.New("failed to load cascade")

// CascadeFaceDetector finds faces with an OpenCV Haar cascade. When an eye
// cascade is configured, faces with exactly two detected eyes carry the
// eye centers as landmarks, ordered left to right.
type CascadeFaceDetector struct {
	mu      sync.Mutex
	faces   gocv.CascadeClassifier
	eyes    gocv.CascadeClassifier
	hasEyes bool
	minSize image.Point
}

// NewCascadeFaceDetector loads the face cascade and, if eyeCascade is not
// empty, the eye cascade.
func NewCascadeFaceDetector(faceCascade, eyeCascade string) (*CascadeFaceDetector, error) {
	d := &CascadeFaceDetector{
		faces:   gocv.NewCascadeClassifier(),
		minSize: image.Pt(40, 40),
	}
	if !d.faces.Load(faceCascade) {
		d.faces.Close()
		return nil, fmt.Errorf("%w: %s", ErrCascadeLoad, faceCascade)
	}

	if eyeCascade != "" {
		d.eyes = gocv.NewCascadeClassifier()
		if !d.eyes.Load(eyeCascade) {
			d.eyes.Close()
			d.faces.Close()
			return nil, fmt.Errorf("%w: %s", ErrCascadeLoad, eyeCascade)
		}
		d.hasEyes = true
	}
	return d, nil
}

// DetectFaces returns every face in frame.
func (d *CascadeFaceDetector) DetectFaces(frame *gocv.Mat) ([]landmark.Face, error) {
	if frame == nil || frame.Empty() {
		return nil, nil
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() == 1 {
		frame.CopyTo(&gray)
	} else {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	}
	gocv.EqualizeHist(gray, &gray)

	d.mu.Lock()
	defer d.mu.Unlock()

	rects := d.faces.DetectMultiScaleWithParams(gray, 1.1, 4, 0, d.minSize, image.Point{})
	faces := make([]landmark.Face, 0, len(rects))
	for _, r := range rects {
		face := landmark.Face{Box: boxFromRect(r)}
		if d.hasEyes {
			face.Landmarks = d.eyeCenters(gray, r)
		}
		faces = append(faces, face)
	}
	return faces, nil
}

// eyeCenters searches the upper half of the face for two eyes.
func (d *CascadeFaceDetector) eyeCenters(gray gocv.Mat, face image.Rectangle) []landmark.Point2D {
	upper := image.Rect(face.Min.X, face.Min.Y, face.Max.X, face.Min.Y+face.Dy()/2)
	roi := gray.Region(upper)
	defer roi.Close()

	found := d.eyes.DetectMultiScale(roi)
	if len(found) != 2 {
		return nil
	}

	points := make([]landmark.Point2D, 0, 2)
	for _, e := range found {
		points = append(points, landmark.Point2D{
			X: float64(upper.Min.X) + float64(e.Min.X+e.Max.X)/2,
			Y: float64(upper.Min.Y) + float64(e.Min.Y+e.Max.Y)/2,
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].X < points[j].X })
	return points
}

// Close releases the classifiers.
func (d *CascadeFaceDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.faces.Close()
	if d.hasEyes {
		err = errors.Join(err, d.eyes.Close())
		d.hasEyes = false
	}
	return err
}

func boxFromRect(r image.Rectangle) landmark.Box {
	return landmark.Box{
		X: float64(r.Min.X),
		Y: float64(r.Min.Y),
		W: float64(r.Dx()),
		H: float64(r.Dy()),
	}
}
