package detection

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-focus/pkg/face"
)

// Observer decodes frames and runs a chain of detectors, primary first.
// It implements session.FrameObserver.
type Observer struct {
	detectors []Detector
	name      string
	logger    *slog.Logger
	mu        sync.Mutex
}

// NewObserver creates an observer over detectors, tried in order. The
// observer takes ownership of the detectors.
func NewObserver(logger *slog.Logger, detectors ...Detector) (*Observer, error) {
	if len(detectors) == 0 {
		return nil, ErrNoDetector
	}
	if logger == nil {
		logger = slog.Default()
	}
	names := make([]string, len(detectors))
	for i, d := range detectors {
		names[i] = d.Name()
	}
	name := strings.Join(names, "+")
	return &Observer{
		detectors: detectors,
		name:      name,
		logger:    logger.With("component", "detection", "backend", name),
	}, nil
}

// Open opens a named backend chain such as "yunet", "cascade" or
// "yunet+cascade".
func Open(backend string, cfg Config, logger *slog.Logger) (*Observer, error) {
	names, err := ParseBackends(backend)
	if err != nil {
		return nil, err
	}

	var detectors []Detector
	closeAll := func() {
		for _, d := range detectors {
			d.Close()
		}
	}
	for _, name := range names {
		var (
			d   Detector
			err error
		)
		switch name {
		case BackendYuNet:
			d, err = NewYuNet(cfg.YuNet)
		case BackendCascade:
			d, err = NewCascade(cfg.Cascade)
		}
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		detectors = append(detectors, d)
	}
	return NewObserver(logger, detectors...)
}

// Name returns the backend chain name.
func (o *Observer) Name() string {
	return o.name
}

// Observe decodes a JPEG frame and builds an observation from the first
// detector that finds a face. A frame where no detector finds a face yields
// an observation without a face and no error.
func (o *Observer) Observe(jpeg []byte, ts time.Time) (face.Observation, error) {
	if len(jpeg) == 0 {
		return face.Observation{}, fmt.Errorf("%w: empty frame", ErrInvalidFrame)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	color, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return face.Observation{}, fmt.Errorf("%w: %w", ErrInvalidFrame, err)
	}
	defer color.Close()
	if color.Empty() {
		return face.Observation{}, fmt.Errorf("%w: decode failed", ErrInvalidFrame)
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(color, &gray, gocv.ColorBGRToGray)

	img := Image{Color: color, Gray: gray}
	obs := face.Observation{
		FrameWidth:  img.Width(),
		FrameHeight: img.Height(),
		Timestamp:   ts,
		Source:      o.detectors[0].Name(),
	}
	if g, err := gray.ToImage(); err == nil {
		if gi, ok := g.(*image.Gray); ok {
			obs.Gray = gi
		}
	}

	failures := make(map[string]error)
	for i, d := range o.detectors {
		dets, err := d.DetectFaces(img)
		if err != nil {
			o.logger.Debug("detector failed", "detector", d.Name(), "error", err)
			failures[d.Name()] = err
			continue
		}
		best := face.SelectBest(dets)
		if best == nil {
			continue
		}
		o.fill(&obs, img, d, *best)
		obs.Source = d.Name()
		obs.FallbackUsed = obs.FallbackUsed || i > 0
		return obs, nil
	}

	if len(failures) == len(o.detectors) {
		return face.Observation{}, &ChainError{Errs: failures}
	}
	return obs, nil
}

func (o *Observer) fill(obs *face.Observation, img Image, d Detector, det face.Detection) {
	box := det.Box
	obs.Face = &box
	obs.Nose = det.Nose
	obs.EyeBoxes = det.EyeBoxes

	lm, err := d.DetectLandmarks(img, det)
	switch {
	case err == nil && lm != nil:
		obs.Landmarks = lm
		return
	case err != nil && !errors.Is(err, ErrLandmarksUnsupported):
		o.logger.Debug("landmarks failed", "detector", d.Name(), "error", err)
	}
	obs.FallbackUsed = true

	if len(obs.EyeBoxes) == 0 {
		if el, ok := d.(EyeLocator); ok {
			eyes, err := el.DetectEyes(img, box)
			if err != nil {
				o.logger.Debug("eye detection failed", "detector", d.Name(), "error", err)
			}
			obs.EyeBoxes = eyes
		}
	}
}

// Close releases every detector.
func (o *Observer) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var errs []error
	for _, d := range o.detectors {
		if err := d.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
