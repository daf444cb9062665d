package face

import "github.com/teslashibe/go-focus/pkg/geometry"

// Detection is one face found by a detector, in pixel coordinates.
type Detection struct {
	Box        geometry.Rect
	Confidence float64

	// Keypoints holds any coarse points the detector reports, in the
	// detector's own order (YuNet: right eye, left eye, nose, mouth corners).
	Keypoints []geometry.Point

	// Nose and EyeBoxes are filled by detectors that can locate them.
	Nose     *geometry.Point
	EyeBoxes []geometry.Rect
}

// Area returns the area of the bounding box.
func (d Detection) Area() float64 {
	return d.Box.Area()
}

// SelectBest picks the best face from multiple detections.
// Priority: confidence * 0.7 + relative area * 0.3
func SelectBest(dets []Detection) *Detection {
	if len(dets) == 0 {
		return nil
	}

	if len(dets) == 1 {
		return &dets[0]
	}

	maxArea := 0.0
	for _, d := range dets {
		if d.Area() > maxArea {
			maxArea = d.Area()
		}
	}

	bestScore := -1.0
	var best *Detection

	for i := range dets {
		score := dets[i].Confidence * 0.7
		if maxArea > 0 {
			score += (dets[i].Area() / maxArea) * 0.3
		}
		if score > bestScore {
			bestScore = score
			best = &dets[i]
		}
	}

	return best
}
