package detection

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/go-focus/pkg/face"
	"github.com/teslashibe/go-focus/pkg/geometry"
)

type fakeDetector struct {
	name   string
	dets   []face.Detection
	err    error
	lm     *face.Landmarks
	eyes   []geometry.Rect
	closed bool
}

func (f *fakeDetector) Name() string { return f.name }
func (f *fakeDetector) Capabilities() Capabilities { return Capabilities{Landmarks: f.lm != nil} }
func (f *fakeDetector) DetectFaces(Image) ([]face.Detection, error) {
	return f.dets, f.err
}
func (f *fakeDetector) DetectLandmarks(Image, face.Detection) (*face.Landmarks, error) {
	if f.lm == nil {
		return nil, ErrLandmarksUnsupported
	}
	return f.lm, nil
}
func (f *fakeDetector) Close() error {
	f.closed = true
	return nil
}

type eyeFinder struct {
	fakeDetector
}

func (e *eyeFinder) DetectEyes(Image, geometry.Rect) ([]geometry.Rect, error) {
	return e.eyes, nil
}

func TestNewObserver_NoDetectors(t *testing.T) {
	if _, err := NewObserver(nil); !errors.Is(err, ErrNoDetector) {
		t.Errorf("NewObserver() error = %v, want ErrNoDetector", err)
	}
}

func TestObserver_Name(t *testing.T) {
	o, err := NewObserver(nil, &fakeDetector{name: "yunet"}, &fakeDetector{name: "cascade"})
	if err != nil {
		t.Fatal(err)
	}
	if o.Name() != "yunet+cascade" {
		t.Errorf("Name() = %q", o.Name())
	}
}

func TestObserver_InvalidFrame(t *testing.T) {
	o, _ := NewObserver(nil, &fakeDetector{name: "fake"})

	for _, frame := range [][]byte{nil, []byte("not a jpeg")} {
		if _, err := o.Observe(frame, time.Now()); !errors.Is(err, ErrInvalidFrame) {
			t.Errorf("Observe(%q) error = %v, want ErrInvalidFrame", frame, err)
		}
	}
}

func TestObserver_PrimaryWithLandmarks(t *testing.T) {
	lm := &face.Landmarks{NoseTip: geometry.Pt(160, 120)}
	primary := &fakeDetector{
		name: "mesh",
		dets: []face.Detection{{Box: geometry.Rect{X: 100, Y: 60, W: 120, H: 140}, Confidence: 0.9}},
		lm:   lm,
	}
	o, _ := NewObserver(nil, primary)

	ts := time.Unix(100, 0)
	obs, err := o.Observe(createSolidJPEG(320, 240, color.RGBA{90, 90, 90, 255}), ts)
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if obs.Landmarks != lm || obs.FallbackUsed || obs.Source != "mesh" {
		t.Errorf("observation = %+v", obs)
	}
	if obs.FrameWidth != 320 || obs.FrameHeight != 240 || !obs.Timestamp.Equal(ts) {
		t.Errorf("frame = %dx%d at %v", obs.FrameWidth, obs.FrameHeight, obs.Timestamp)
	}
	if obs.Gray == nil || obs.Gray.Bounds().Dx() != 320 {
		t.Fatal("gray plane missing")
	}
}

func TestObserver_FallbackChain(t *testing.T) {
	primary := &fakeDetector{name: "yunet", err: errors.New("inference failed")}
	secondary := &eyeFinder{fakeDetector{
		name: "cascade",
		dets: []face.Detection{
			{Box: geometry.Rect{X: 10, Y: 10, W: 40, H: 40}, Confidence: 1},
			{Box: geometry.Rect{X: 100, Y: 60, W: 120, H: 140}, Confidence: 1},
		},
		eyes: []geometry.Rect{{X: 120, Y: 90, W: 20, H: 10}},
	}}
	o, _ := NewObserver(nil, primary, secondary)

	obs, err := o.Observe(createSolidJPEG(320, 240, color.RGBA{90, 90, 90, 255}), time.Now())
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if !obs.FallbackUsed || obs.Source != "cascade" {
		t.Errorf("FallbackUsed = %v, Source = %q", obs.FallbackUsed, obs.Source)
	}
	if obs.Face == nil || obs.Face.W != 120 {
		t.Errorf("Face = %+v, want the larger detection", obs.Face)
	}
	if len(obs.EyeBoxes) != 1 || obs.HasLandmarks() {
		t.Errorf("EyeBoxes = %v, landmarks = %v", obs.EyeBoxes, obs.Landmarks)
	}
}

func TestObserver_NoFace(t *testing.T) {
	o, _ := NewObserver(nil, &fakeDetector{name: "yunet"}, &fakeDetector{name: "cascade"})
	obs, err := o.Observe(createSolidJPEG(64, 48, color.RGBA{0, 0, 255, 255}), time.Now())
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if obs.HasFace() {
		t.Error("expected no face")
	}
}

func TestObserver_AllFailed(t *testing.T) {
	o, _ := NewObserver(nil,
		&fakeDetector{name: "yunet", err: errors.New("a")},
		&fakeDetector{name: "cascade", err: errors.New("b")},
	)
	_, err := o.Observe(createSolidJPEG(64, 48, color.RGBA{0, 0, 255, 255}), time.Now())
	var ce *ChainError
	if !errors.As(err, &ce) || len(ce.Errs) != 2 {
		t.Errorf("Observe() error = %v, want ChainError with 2 members", err)
	}
}

func TestObserver_Close(t *testing.T) {
	a, b := &fakeDetector{name: "a"}, &fakeDetector{name: "b"}
	o, _ := NewObserver(nil, a, b)
	if err := o.Close(); err != nil {
		t.Fatal(err)
	}
	if !a.closed || !b.closed {
		t.Error("detectors not closed")
	}
}

func TestOpen_MissingModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.YuNet.ModelPath = "/nonexistent/path/model.onnx"

	_, err := Open("yunet", cfg, nil)
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Open() error = %v, want ErrModelNotFound", err)
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := Open("openpose", DefaultConfig(), nil); !errors.Is(err, ErrNoDetector) {
		t.Errorf("Open() error = %v, want ErrNoDetector", err)
	}
}

// TestYuNetDetect_SolidImage tests detection on solid color image (no faces)
func TestYuNetDetect_SolidImage(t *testing.T) {
	modelPath := findModelPath()
	if modelPath == "" {
		t.Skip("YuNet model not found, skipping test")
	}

	cfg := DefaultConfig()
	cfg.YuNet.ModelPath = modelPath
	o, err := Open("yunet", cfg, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer o.Close()

	obs, err := o.Observe(createSolidJPEG(320, 240, color.RGBA{0, 0, 255, 255}), time.Now())
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if obs.HasFace() {
		t.Errorf("Expected no face in solid color image, got %+v", obs.Face)
	}
}

// Helper functions

func findModelPath() string {
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != "/"; dir = filepath.Dir(dir) {
			modelPath := filepath.Join(dir, "models", "face_detection_yunet.onnx")
			if _, err := os.Stat(modelPath); err == nil {
				return modelPath
			}
		}
	}
	return ""
}

func createSolidJPEG(width, height int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}
