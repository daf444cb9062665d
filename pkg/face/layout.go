package face

import (
	"errors"
	"fmt"
	"strings"

	"github.com/teslashibe/go-focus/pkg/geometry"
)

var (
	// ErrUnknownLayout is returned for an unrecognised landmark layout name.
	ErrUnknownLayout = errors.New("unknown landmark layout")

	// ErrShortLayout is returned when a point set is too small for its layout.
	ErrShortLayout = errors.New("not enough landmark points")
)

// Layout names a landmark numbering scheme.
type Layout string

const (
	// Dlib68 is the 68-point iBUG 300-W layout used by dlib's shape predictor.
	Dlib68 Layout = "dlib68"
	// MediaPipe is the 468/478-point face mesh layout.
	MediaPipe Layout = "mediapipe"
)

type layoutIndex struct {
	minPoints int
	leftEye   [6]int
	rightEye  [6]int
	bridge    int
	tip       int
	chin      int
}

var layouts = map[Layout]layoutIndex{
	Dlib68: {
		minPoints: 68,
		leftEye:   [6]int{36, 37, 38, 39, 40, 41},
		rightEye:  [6]int{42, 43, 44, 45, 46, 47},
		bridge:    27,
		tip:       30,
		chin:      8,
	},
	// Eye contours reordered to match dlib: corner, upper, upper, corner, lower, lower.
	MediaPipe: {
		minPoints: 468,
		leftEye:   [6]int{33, 160, 158, 133, 153, 144},
		rightEye:  [6]int{362, 385, 387, 263, 373, 380},
		bridge:    168,
		tip:       4,
		chin:      152,
	},
}

// ParseLayout resolves a layout name. Matching is case-insensitive and
// "dlib" and "mesh" are accepted as aliases.
func ParseLayout(name string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "dlib68", "dlib", "68":
		return Dlib68, nil
	case "mediapipe", "mesh", "facemesh":
		return MediaPipe, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLayout, name)
	}
}

// MinPoints returns the number of points the layout needs, 0 if unknown.
func (l Layout) MinPoints() int {
	return layouts[l].minPoints
}

// FromLayout extracts Landmarks from a full point set.
func FromLayout(layout Layout, points []geometry.Point) (*Landmarks, error) {
	idx, ok := layouts[layout]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLayout, layout)
	}
	if len(points) < idx.minPoints {
		return nil, fmt.Errorf("%w: %s needs %d, got %d", ErrShortLayout, layout, idx.minPoints, len(points))
	}

	lm := &Landmarks{
		NoseBridge: points[idx.bridge],
		NoseTip:    points[idx.tip],
		Chin:       points[idx.chin],
	}
	for i := 0; i < 6; i++ {
		lm.LeftEye[i] = points[idx.leftEye[i]]
		lm.RightEye[i] = points[idx.rightEye[i]]
	}
	return lm, nil
}
