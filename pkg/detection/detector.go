// Package detection turns encoded video frames into face observations using
// OpenCV detectors.
package detection

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-focus/pkg/face"
	"github.com/teslashibe/go-focus/pkg/geometry"
)

var (
	// ErrInvalidFrame is returned for frames that cannot be decoded.
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrNoDetector is returned when no detector backend is available.
	ErrNoDetector = errors.New("no detector available")

	// ErrLandmarksUnsupported is returned by detectors without eye contours.
	ErrLandmarksUnsupported = errors.New("landmarks not supported")

	// ErrModelNotFound is returned when a model file cannot be located.
	ErrModelNotFound = errors.New("model file not found")
)

// ChainError is returned when every detector in a chain failed on a frame.
type ChainError struct {
	Errs map[string]error
}

func (e *ChainError) Error() string {
	parts := make([]string, 0, len(e.Errs))
	for name, err := range e.Errs {
		parts = append(parts, fmt.Sprintf("%s: %v", name, err))
	}
	return "all detectors failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (e *ChainError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errs))
	for _, err := range e.Errs {
		errs = append(errs, err)
	}
	return errs
}

// Image is one decoded frame in both color and grayscale. The observer owns
// the Mats; detectors must not close them.
type Image struct {
	Color gocv.Mat
	Gray  gocv.Mat
}

// Width returns the frame width in pixels.
func (i Image) Width() int { return i.Color.Cols() }

// Height returns the frame height in pixels.
func (i Image) Height() int { return i.Color.Rows() }

// Capabilities describe what a detector can report beyond face boxes.
type Capabilities struct {
	Landmarks bool `json:"landmarks"`
	EyeBoxes  bool `json:"eye_boxes"`
	Keypoints bool `json:"keypoints"`
}

// Detector is the interface for face detection backends
type Detector interface {
	// Name identifies the backend in logs and observations.
	Name() string

	// DetectFaces finds faces in the image, in pixel coordinates.
	DetectFaces(img Image) ([]face.Detection, error)

	// DetectLandmarks returns eye contours and nose/chin points for a face,
	// or ErrLandmarksUnsupported.
	DetectLandmarks(img Image, det face.Detection) (*face.Landmarks, error)

	Capabilities() Capabilities

	// Close releases resources
	Close() error
}

// EyeLocator is implemented by detectors that can find eye boxes inside a
// face after the fact.
type EyeLocator interface {
	DetectEyes(img Image, faceBox geometry.Rect) ([]geometry.Rect, error)
}

// Config holds configuration for every backend.
type Config struct {
	YuNet   YuNetConfig   `mapstructure:"yunet"`
	Cascade CascadeConfig `mapstructure:"cascade"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		YuNet:   DefaultYuNetConfig(),
		Cascade: DefaultCascadeConfig(),
	}
}

// Backend names accepted by Open.
const (
	BackendYuNet   = "yunet"
	BackendCascade = "cascade"
)

// ParseBackends splits a chain such as "yunet+cascade" into backend names.
func ParseBackends(spec string) ([]string, error) {
	var names []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(spec, "+") {
		name := strings.ToLower(strings.TrimSpace(part))
		switch name {
		case BackendYuNet, BackendCascade:
		case "haar":
			name = BackendCascade
		default:
			return nil, fmt.Errorf("%w: unknown backend %q", ErrNoDetector, part)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}

func toImageRect(r geometry.Rect) image.Rectangle {
	return image.Rect(int(r.X), int(r.Y), int(r.X+r.W), int(r.Y+r.H))
}

func fromImageRect(r image.Rectangle) geometry.Rect {
	return geometry.Rect{X: float64(r.Min.X), Y: float64(r.Min.Y), W: float64(r.Dx()), H: float64(r.Dy())}
}
