package detection

import (
	"fmt"
	"image"
	"path/filepath"
	"sort"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-focus/pkg/face"
	"github.com/teslashibe/go-focus/pkg/geometry"
)

// CascadeConfig holds Haar cascade detector configuration.
type CascadeConfig struct {
	FaceModel string `mapstructure:"face_model"`
	EyeModel  string `mapstructure:"eye_model"`

	// SearchPaths are tried in order when a model is not found as given.
	SearchPaths []string `mapstructure:"search_paths"`

	ScaleFactor  float64 `mapstructure:"scale_factor"`
	MinNeighbors int     `mapstructure:"min_neighbors"`
	MinFaceSize  int     `mapstructure:"min_face_size"`
	MinEyeSize   int     `mapstructure:"min_eye_size"`
}

// DefaultCascadeConfig returns defaults using the stock OpenCV cascades.
func DefaultCascadeConfig() CascadeConfig {
	return CascadeConfig{
		FaceModel: "haarcascade_frontalface_default.xml",
		EyeModel:  "haarcascade_eye.xml",
		SearchPaths: []string{
			"models/haarcascades",
			"/usr/local/share/opencv4/haarcascades",
			"/usr/share/opencv4/haarcascades",
			"/opt/homebrew/share/opencv4/haarcascades",
		},
		ScaleFactor:  1.1,
		MinNeighbors: 5,
		MinFaceSize:  60,
		MinEyeSize:   15,
	}
}

// CascadeDetector finds faces and eyes with Haar cascades. It reports eye
// boxes but no contours or keypoints.
type CascadeDetector struct {
	faces  gocv.CascadeClassifier
	eyes   gocv.CascadeClassifier
	config CascadeConfig
	mu     sync.Mutex
}

// NewCascade loads the face and eye cascades.
func NewCascade(cfg CascadeConfig) (*CascadeDetector, error) {
	faces := gocv.NewCascadeClassifier()
	if err := loadCascade(&faces, cfg.FaceModel, cfg.SearchPaths); err != nil {
		faces.Close()
		return nil, err
	}
	eyes := gocv.NewCascadeClassifier()
	if err := loadCascade(&eyes, cfg.EyeModel, cfg.SearchPaths); err != nil {
		faces.Close()
		eyes.Close()
		return nil, err
	}
	return &CascadeDetector{faces: faces, eyes: eyes, config: cfg}, nil
}

func loadCascade(c *gocv.CascadeClassifier, name string, searchPaths []string) error {
	for _, path := range modelCandidates(name, searchPaths) {
		if c.Load(path) {
			return nil
		}
	}
	return fmt.Errorf("%w: cascade %s", ErrModelNotFound, name)
}

// modelCandidates lists the paths tried for a model file.
func modelCandidates(name string, searchPaths []string) []string {
	candidates := []string{name}
	if filepath.IsAbs(name) {
		return candidates
	}
	base := filepath.Base(name)
	for _, dir := range searchPaths {
		candidates = append(candidates, filepath.Join(dir, base))
	}
	return candidates
}

// Name implements Detector.
func (d *CascadeDetector) Name() string { return BackendCascade }

// Capabilities implements Detector.
func (d *CascadeDetector) Capabilities() Capabilities {
	return Capabilities{EyeBoxes: true}
}

// DetectFaces runs the face cascade on the grayscale image. Cascades give
// no score, so confidence is fixed at 1.
func (d *CascadeDetector) DetectFaces(img Image) ([]face.Detection, error) {
	if img.Gray.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidFrame)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	minSize := image.Pt(d.config.MinFaceSize, d.config.MinFaceSize)
	rects := d.faces.DetectMultiScaleWithParams(img.Gray, d.config.ScaleFactor, d.config.MinNeighbors, 0, minSize, image.Point{})

	dets := make([]face.Detection, 0, len(rects))
	for _, r := range rects {
		dets = append(dets, face.Detection{Box: fromImageRect(r), Confidence: 1})
	}
	return dets, nil
}

// DetectEyes runs the eye cascade on the upper half of a face and returns
// at most two boxes in frame coordinates, largest first.
func (d *CascadeDetector) DetectEyes(img Image, faceBox geometry.Rect) ([]geometry.Rect, error) {
	if img.Gray.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidFrame)
	}
	upper := toImageRect(geometry.Rect{X: faceBox.X, Y: faceBox.Y, W: faceBox.W, H: faceBox.H / 2}).
		Intersect(image.Rect(0, 0, img.Gray.Cols(), img.Gray.Rows()))
	if upper.Empty() {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	region := img.Gray.Region(upper)
	defer region.Close()

	minSize := image.Pt(d.config.MinEyeSize, d.config.MinEyeSize)
	rects := d.eyes.DetectMultiScaleWithParams(region, d.config.ScaleFactor, d.config.MinNeighbors, 0, minSize, image.Point{})
	return topEyes(rects, upper.Min), nil
}

// topEyes keeps the two largest boxes, shifted by offset.
func topEyes(rects []image.Rectangle, offset image.Point) []geometry.Rect {
	sort.SliceStable(rects, func(i, j int) bool {
		ai := rects[i].Dx() * rects[i].Dy()
		aj := rects[j].Dx() * rects[j].Dy()
		return ai > aj
	})
	if len(rects) > 2 {
		rects = rects[:2]
	}
	out := make([]geometry.Rect, 0, len(rects))
	for _, r := range rects {
		out = append(out, fromImageRect(r.Add(offset)))
	}
	return out
}

// DetectLandmarks implements Detector. Cascades have no eye contours.
func (d *CascadeDetector) DetectLandmarks(Image, face.Detection) (*face.Landmarks, error) {
	return nil, ErrLandmarksUnsupported
}

// Close releases both cascades.
func (d *CascadeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faces.Close()
	d.eyes.Close()
	return nil
}
