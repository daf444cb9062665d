// Package focus is the per-session focus engine. A Tracker turns a stream of
// face observations into smoothed focus scores, attention states and
// session statistics.
package focus

import (
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/teslashibe/go-focus/pkg/attention"
	"github.com/teslashibe/go-focus/pkg/face"
	"github.com/teslashibe/go-focus/pkg/fusion"
	"github.com/teslashibe/go-focus/pkg/geometry"
	"github.com/teslashibe/go-focus/pkg/history"
	"github.com/teslashibe/go-focus/pkg/stats"
)

// Signals are the sub-signals of one frame, for diagnostic display.
type Signals struct {
	EyeOpenness float64 `json:"eye_openness"` // mean EAR or fallback proxy
	Stability   float64 `json:"stability"`
	Gaze        float64 `json:"gaze"`
	HeadPose    float64 `json:"head_pose"`
	Attention   float64 `json:"attention"`

	// AttentionMeasured is false when Attention is the configured default.
	AttentionMeasured bool `json:"attention_measured"`
}

// Result is the engine output for one frame.
type Result struct {
	// Score is the smoothed display score: one decimal, capped at the
	// display ceiling, exactly 0 when the window average is 0.
	Score float64 `json:"score"`
	// Smoothed is the raw window average (0-100).
	Smoothed float64 `json:"smoothed"`
	// Instant is the score committed for this frame (0-100).
	Instant float64 `json:"instant"`

	State     attention.State `json:"state"`
	Timestamp time.Time       `json:"timestamp"`

	Signals   Signals             `json:"signals"`
	Direction *geometry.Direction `json:"direction,omitempty"`
	Looking   string              `json:"looking"`
	Framing   *geometry.Framing   `json:"framing,omitempty"`

	EyesClosed   bool   `json:"eyes_closed"`
	BlinkCount   int    `json:"blink_count"`
	Boosted      bool   `json:"boosted"`
	FallbackUsed bool   `json:"fallback_used"`
	Source       string `json:"source,omitempty"`
	Message      string `json:"message"`
	Error        string `json:"error,omitempty"`
}

// Counters are per-session frame counts.
type Counters struct {
	Frames         int `json:"frames"`
	FaceFrames     int `json:"face_frames"`
	FallbackFrames int `json:"fallback_frames"`
	InvalidFrames  int `json:"invalid_frames"`
}

// Tracker owns all per-session engine state. It is not safe for concurrent
// use; callers serialize frames of one session.
type Tracker struct {
	cfg        Config
	fuser      *fusion.Fuser
	classifier *attention.Classifier
	stability  *geometry.StabilityTracker
	blinks     attention.BlinkCounter
	history    *history.History
	agg        *stats.Aggregator
	counters   Counters

	clock  func() time.Time
	rng    *rand.Rand
	logger *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the time source for observations without a timestamp.
func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) {
		t.clock = clock
	}
}

// WithRand sets the fusion noise source.
func WithRand(r *rand.Rand) Option {
	return func(t *Tracker) {
		t.rng = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

// NewTracker validates cfg and creates a fresh engine.
func NewTracker(cfg Config, opts ...Option) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Tracker{
		cfg:    cfg,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}

	var fopts []fusion.Option
	if t.rng != nil {
		fopts = append(fopts, fusion.WithRand(t.rng))
	}
	fuser, err := fusion.New(cfg.Fusion, fopts...)
	if err != nil {
		return nil, &ConfigError{Profile: cfg.Name, Err: err}
	}

	t.fuser = fuser
	t.classifier = attention.NewClassifier(cfg.Attention)
	t.stability = geometry.NewStabilityTracker(cfg.MaxMovement, cfg.StabilityWindow)
	t.history = history.New(cfg.History)
	t.agg = stats.NewAggregator(cfg.Stats)
	t.logger = t.logger.With("component", "focus", "profile", cfg.Name)
	return t, nil
}

// Config returns the configuration in use.
func (t *Tracker) Config() Config {
	return t.cfg
}

type frameSignals struct {
	ear        float64
	eyesClosed bool
	gaze       float64
	headPose   float64
	direction  *geometry.Direction
	fallback   bool
}

func (t *Tracker) eyeSignals(obs face.Observation) frameSignals {
	if lm := obs.Landmarks; lm != nil {
		ear := geometry.MeanEAR(lm.LeftEye, lm.RightEye)
		g := geometry.GazeOf(lm.LeftEye, lm.RightEye, t.cfg.GazeThreshold)
		dir := g.Direction
		return frameSignals{
			ear:        ear,
			eyesClosed: ear < t.cfg.ClosedEAR,
			gaze:       geometry.GazeQuality(g),
			headPose:   geometry.HeadPoseQuality(lm.NoseBridge, lm.NoseTip, lm.Chin),
			direction:  &dir,
			fallback:   obs.FallbackUsed,
		}
	}

	// Degraded path: neutral defaults, gaze unknown.
	fb := t.cfg.Fallback
	s := frameSignals{
		ear:        fb.ClosedEAR,
		eyesClosed: true,
		headPose:   fb.HeadPose,
		fallback:   true,
	}
	if obs.EyesFound() {
		s.ear = fb.OpenEAR
		s.eyesClosed = false
		s.gaze = fb.Gaze
	}
	return s
}

// Process runs one observation through the engine and commits exactly one
// sample. It cannot fail; degenerate measurements fall back to neutral values.
func (t *Tracker) Process(obs face.Observation) Result {
	ts := obs.Timestamp
	if ts.IsZero() {
		ts = t.clock()
	}
	t.counters.Frames++

	if !obs.HasFace() {
		r := t.commit(0, attention.NoFace, ts)
		r.Source = obs.Source
		r.FallbackUsed = obs.FallbackUsed
		r.Looking = "unknown"
		r.Message = Advice(r)
		return r
	}

	t.counters.FaceFrames++
	fs := t.eyeSignals(obs)
	if fs.fallback {
		t.counters.FallbackFrames++
	}

	attn, measured := geometry.MeanDensity(obs.Gray, obs.EyeRegions(), t.cfg.EyePadding, t.cfg.DarkThreshold, t.cfg.ExpectedDarkRatio)
	if !measured {
		attn = t.cfg.DefaultAttention
	}

	var stab float64
	if anchor, ok := obs.Anchor(); ok {
		stab = t.stability.Update(anchor)
	} else {
		stab = t.stability.Value()
	}

	blinks := t.blinks.Update(fs.eyesClosed)
	sleeping := t.classifier.Sleeping(blinks)

	fused := t.fuser.Fuse(fusion.Signals{
		Stability:   stab,
		EyeOpenness: fs.ear,
		Gaze:        fs.gaze,
		HeadPose:    fs.headPose,
		Attention:   attn,
		EyesClosed:  fs.eyesClosed || sleeping,
	})

	instant := fused.Score * 100
	if sleeping {
		instant = t.cfg.SleepingScore
	}

	in := attention.Input{
		FaceDetected: true,
		BlinkCount:   blinks,
		Score:        t.history.Project(instant, ts),
		Gaze:         fs.direction,
	}
	if measured {
		in.Attention = &attn
	}
	state := t.classifier.Classify(in)

	r := t.commit(instant, state, ts)
	r.Signals = Signals{
		EyeOpenness:       fs.ear,
		Stability:         stab,
		Gaze:              fs.gaze,
		HeadPose:          fs.headPose,
		Attention:         attn,
		AttentionMeasured: measured,
	}
	r.Direction = fs.direction
	r.Looking = "unknown"
	if fs.direction != nil {
		r.Looking = fs.direction.String()
	}
	if obs.Face != nil && obs.FrameWidth > 0 && obs.FrameHeight > 0 {
		f := geometry.FramingOf(*obs.Face, obs.FrameWidth, obs.FrameHeight)
		r.Framing = &f
	}
	r.EyesClosed = fs.eyesClosed
	r.BlinkCount = blinks
	r.Boosted = fused.Boosted
	r.FallbackUsed = fs.fallback
	r.Source = obs.Source
	r.Message = Advice(r)

	if sleeping {
		t.logger.Debug("sustained eye closure", "blinks", blinks)
	}
	return r
}

// ProcessError records a frame that could not be decoded or analysed as a
// zero-score sample without a face.
func (t *Tracker) ProcessError(ts time.Time, err error) Result {
	if ts.IsZero() {
		ts = t.clock()
	}
	t.counters.Frames++
	t.counters.InvalidFrames++

	r := t.commit(0, attention.NoFace, ts)
	r.Looking = "unknown"
	if err != nil {
		r.Error = err.Error()
	}
	r.Message = Advice(r)
	t.logger.Debug("invalid frame recorded", "error", err)
	return r
}

func (t *Tracker) commit(instant float64, state attention.State, ts time.Time) Result {
	s := history.Sample{
		Score:     geometry.Clamp(instant, 0, 100),
		State:     state,
		Timestamp: ts,
	}
	smoothed := t.history.Append(s)
	t.agg.Record(s)

	return Result{
		Score:     DisplayScore(smoothed, t.cfg.DisplayCeiling),
		Smoothed:  smoothed,
		Instant:   s.Score,
		State:     state,
		Timestamp: ts,
	}
}

// DisplayScore rounds a 0-100 average to one decimal and caps it at
// ceiling. An average of exactly 0 stays 0.
func DisplayScore(avg, ceiling float64) float64 {
	if avg <= 0 || math.IsNaN(avg) {
		return 0
	}
	return math.Min(ceiling, math.Round(avg*10)/10)
}

// Stats returns session statistics over every committed frame.
func (t *Tracker) Stats() stats.Stats {
	return t.agg.Snapshot()
}

// History returns the current smoothing window, oldest first.
func (t *Tracker) History() []history.Sample {
	return t.history.Samples()
}

// Counters returns frame counts.
func (t *Tracker) Counters() Counters {
	return t.counters
}
