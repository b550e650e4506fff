package landmark

// ThumbsUp returns a right hand with the thumb extended and the other
// fingers curled toward the palm.
func ThumbsUp() Hand {
	return Pose(true, false, false, false, false)
}

// OpenPalm returns a right hand with all five fingers extended.
func OpenPalm() Hand {
	return Pose(true, true, true, true, true)
}

// Fist returns a right hand with every finger curled.
func Fist() Hand {
	return Pose(false, false, false, false, false)
}

// Pose builds a right hand, palm facing a mirrored camera, with each finger
// extended or curled as requested.
func Pose(thumb, index, middle, ring, pinky bool) Hand {
	points := make([]Point3D, NumLandmarks)

	points[Wrist] = Point3D{X: 0.5, Y: 0.8}

	points[ThumbCMC] = Point3D{X: 0.55, Y: 0.75, Z: 0.02}
	points[ThumbMCP] = Point3D{X: 0.60, Y: 0.70, Z: 0.03}
	points[ThumbIP] = Point3D{X: 0.64, Y: 0.64, Z: 0.03}
	if thumb {
		points[ThumbTip] = Point3D{X: 0.70, Y: 0.58, Z: 0.03}
	} else {
		// Folded across the palm.
		points[ThumbTip] = Point3D{X: 0.56, Y: 0.66, Z: 0.01}
	}

	finger := func(mcp, pip, dip, tip int, x, baseY float64, extended bool) {
		points[mcp] = Point3D{X: x, Y: baseY}
		points[pip] = Point3D{X: x, Y: baseY - 0.12}
		if extended {
			points[dip] = Point3D{X: x, Y: baseY - 0.22}
			points[tip] = Point3D{X: x, Y: baseY - 0.31}
			return
		}
		points[dip] = Point3D{X: x - 0.02, Y: baseY - 0.08, Z: -0.04}
		points[tip] = Point3D{X: x - 0.03, Y: baseY - 0.02, Z: -0.02}
	}

	finger(IndexMCP, IndexPIP, IndexDIP, IndexTip, 0.56, 0.68, index)
	finger(MiddleMCP, MiddlePIP, MiddleDIP, MiddleTip, 0.50, 0.66, middle)
	finger(RingMCP, RingPIP, RingDIP, RingTip, 0.44, 0.68, ring)
	finger(PinkyMCP, PinkyPIP, PinkyDIP, PinkyTip, 0.39, 0.70, pinky)

	return Hand{
		Points:     points,
		Handedness: "Right",
		Score:      0.95,
	}
}
