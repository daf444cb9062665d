package detection

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-focus/pkg/face"
	"github.com/teslashibe/go-focus/pkg/geometry"
)

// YuNetConfig holds YuNet detector configuration
type YuNetConfig struct {
	ModelPath        string  `mapstructure:"model_path"`
	ConfidenceThresh float64 `mapstructure:"confidence"`
	NMSThresh        float64 `mapstructure:"nms"`
	TopK             int     `mapstructure:"top_k"`
	InputWidth       int     `mapstructure:"input_width"`
	InputHeight      int     `mapstructure:"input_height"`

	// EyeBoxScale sizes the eye box around each eye keypoint as a fraction
	// of the face width.
	EyeBoxScale float64 `mapstructure:"eye_box_scale"`
}

// DefaultYuNetConfig returns production defaults for YuNet
func DefaultYuNetConfig() YuNetConfig {
	return YuNetConfig{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.3,
		TopK:             5000,
		InputWidth:       320,
		InputHeight:      320,
		EyeBoxScale:      0.25,
	}
}

// YuNet keypoint order.
const (
	kpRightEye = iota
	kpLeftEye
	kpNose
	kpMouthRight
	kpMouthLeft
)

// YuNetDetector uses OpenCV's FaceDetectorYN for face detection. It reports
// face boxes and five keypoints, not eye contours.
type YuNetDetector struct {
	detector gocv.FaceDetectorYN
	config   YuNetConfig
	mu       sync.Mutex // Protects inference
}

// NewYuNet creates a new YuNet face detector using GoCV's built-in FaceDetectorYN
func NewYuNet(cfg YuNetConfig) (*YuNetDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrModelNotFound, cfg.ModelPath, err)
	}

	// Input size is updated per image.
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		float32(cfg.NMSThresh),
		cfg.TopK,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNetDetector{
		detector: detector,
		config:   cfg,
	}, nil
}

// Name implements Detector.
func (d *YuNetDetector) Name() string { return BackendYuNet }

// Capabilities implements Detector.
func (d *YuNetDetector) Capabilities() Capabilities {
	return Capabilities{EyeBoxes: true, Keypoints: true}
}

// DetectFaces finds faces in the color image.
func (d *YuNetDetector) DetectFaces(img Image) ([]face.Detection, error) {
	if img.Color.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidFrame)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.detector.SetInputSize(image.Pt(img.Width(), img.Height()))

	faces := gocv.NewMat()
	defer faces.Close()
	d.detector.Detect(img.Color, &faces)

	var detections []face.Detection
	for r := 0; r < faces.Rows(); r++ {
		// YuNet output format (15 columns):
		// 0-3: x, y, w, h (bounding box in pixels)
		// 4-13: 5 facial landmarks (x,y pairs)
		// 14: face score
		row := make([]float64, 15)
		for c := range row {
			row[c] = float64(faces.GetFloatAt(r, c))
		}
		detections = append(detections, d.parseRow(row))
	}
	return detections, nil
}

func (d *YuNetDetector) parseRow(row []float64) face.Detection {
	det := face.Detection{
		Box:        geometry.Rect{X: row[0], Y: row[1], W: row[2], H: row[3]},
		Confidence: row[14],
	}
	for k := 0; k < 5; k++ {
		det.Keypoints = append(det.Keypoints, geometry.Pt(row[4+2*k], row[5+2*k]))
	}
	nose := det.Keypoints[kpNose]
	det.Nose = &nose
	det.EyeBoxes = []geometry.Rect{
		eyeBoxAround(det.Keypoints[kpRightEye], det.Box.W, d.config.EyeBoxScale),
		eyeBoxAround(det.Keypoints[kpLeftEye], det.Box.W, d.config.EyeBoxScale),
	}
	return det
}

// DetectLandmarks implements Detector. YuNet has no eye contours.
func (d *YuNetDetector) DetectLandmarks(Image, face.Detection) (*face.Landmarks, error) {
	return nil, ErrLandmarksUnsupported
}

// Close releases the detector resources
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}

// eyeBoxAround returns a box centered on an eye keypoint, twice as wide as
// it is tall.
func eyeBoxAround(p geometry.Point, faceWidth, scale float64) geometry.Rect {
	w := faceWidth * scale
	h := w / 2
	return geometry.Rect{X: p.X - w/2, Y: p.Y - h/2, W: w, H: h}
}
