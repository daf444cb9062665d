// Package face defines what a detector reports about one video frame: an
// optional face box, optional landmarks, coarse keypoints from degraded
// detectors and the luminance plane used for attention density.
package face

import (
	"image"
	"time"

	"github.com/teslashibe/go-focus/pkg/geometry"
)

// Landmarks are the facial points the focus engine reads.
type Landmarks struct {
	LeftEye    geometry.Eye   `json:"left_eye"`
	RightEye   geometry.Eye   `json:"right_eye"`
	NoseBridge geometry.Point `json:"nose_bridge"`
	NoseTip    geometry.Point `json:"nose_tip"`
	Chin       geometry.Point `json:"chin"`
}

// Observation is everything known about a single frame.
// The zero value means no face was detected.
type Observation struct {
	Face      *geometry.Rect `json:"face,omitempty"`
	Landmarks *Landmarks     `json:"landmarks,omitempty"`

	// Coarse keypoints from detectors without eye contours.
	Nose     *geometry.Point `json:"nose,omitempty"`
	EyeBoxes []geometry.Rect `json:"eye_boxes,omitempty"`

	// Gray is the full-frame luminance plane, if pixels are available.
	Gray *image.Gray `json:"-"`

	FrameWidth  int       `json:"frame_width,omitempty"`
	FrameHeight int       `json:"frame_height,omitempty"`
	Timestamp   time.Time `json:"timestamp"`

	// Source names the detector backend that produced the observation.
	Source       string `json:"source,omitempty"`
	FallbackUsed bool   `json:"fallback_used,omitempty"`
}

// HasFace reports whether a face was detected.
func (o Observation) HasFace() bool {
	return o.Face != nil || o.Landmarks != nil
}

// HasLandmarks reports whether full eye contours are available.
func (o Observation) HasLandmarks() bool {
	return o.Landmarks != nil
}

// Anchor returns the point used for stability tracking: the nose tip from
// landmarks, then a coarse nose keypoint, then the face box center.
func (o Observation) Anchor() (geometry.Point, bool) {
	switch {
	case o.Landmarks != nil:
		return o.Landmarks.NoseTip, true
	case o.Nose != nil:
		return *o.Nose, true
	case o.Face != nil:
		return o.Face.Center(), true
	default:
		return geometry.Point{}, false
	}
}

// EyeRegions returns the boxes to sample for attention density.
func (o Observation) EyeRegions() []geometry.Rect {
	if o.Landmarks != nil {
		return []geometry.Rect{o.Landmarks.LeftEye.Bounds(), o.Landmarks.RightEye.Bounds()}
	}
	return o.EyeBoxes
}

// EyesFound reports whether any eye was located, by contour or by box.
func (o Observation) EyesFound() bool {
	return o.Landmarks != nil || len(o.EyeBoxes) > 0
}
