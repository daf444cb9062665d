package attention

import "github.com/teslashibe/go-focus/pkg/geometry"

// BlinkCounter separates blinks from sustained eye closure. It counts up
// while the eyes are closed and down (never below zero) while open.
type BlinkCounter struct {
	count int
}

// Update applies one frame and returns the new count.
func (b *BlinkCounter) Update(closed bool) int {
	if closed {
		b.count++
	} else if b.count > 0 {
		b.count--
	}
	return b.count
}

// Count returns the current count.
func (b *BlinkCounter) Count() int {
	return b.count
}

// Reset zeroes the counter.
func (b *BlinkCounter) Reset() {
	b.count = 0
}

// Config holds classifier thresholds.
type Config struct {
	// FocusedThreshold is the smoothed score (0-100) needed for Focused.
	FocusedThreshold float64 `json:"focused_threshold" mapstructure:"focused_threshold" validate:"gte=0,lte=100"`

	// SustainedClosed is the blink count at which the state becomes Sleeping.
	SustainedClosed int `json:"sustained_closed" mapstructure:"sustained_closed" validate:"gte=1"`

	// DrowsyFrames enables Drowsy once the blink count reaches it while still
	// below SustainedClosed. 0 disables the state.
	DrowsyFrames int `json:"drowsy_frames" mapstructure:"drowsy_frames" validate:"gte=0,ltfield=SustainedClosed"`

	// LowAttention marks a visible face as Distracted when a measured
	// attention density falls below it. 0 disables the check.
	LowAttention float64 `json:"low_attention" mapstructure:"low_attention" validate:"gte=0,lte=1"`
}

// DefaultConfig returns the standard thresholds with Drowsy disabled.
func DefaultConfig() Config {
	return Config{
		FocusedThreshold: 70,
		SustainedClosed:  5,
		LowAttention:     0.1,
	}
}

// Input is what the classifier sees for one frame.
type Input struct {
	FaceDetected bool

	// BlinkCount is the blink counter after this frame's update.
	BlinkCount int

	// Score is the smoothed score (0-100) the frame would produce.
	Score float64

	// Gaze is nil when the detector cannot estimate gaze.
	Gaze *geometry.Direction

	// Attention is nil when density could not be measured.
	Attention *float64
}

// Classifier maps frame inputs to states. It is stateless; the blink
// counter lives with the caller.
type Classifier struct {
	cfg Config
}

// NewClassifier creates a classifier.
func NewClassifier(cfg Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// Config returns the thresholds in use.
func (c *Classifier) Config() Config {
	return c.cfg
}

// Sleeping reports whether a blink count means sustained closure.
func (c *Classifier) Sleeping(blinkCount int) bool {
	return blinkCount >= c.cfg.SustainedClosed
}

// Classify returns the state for one frame. Rules apply in priority order:
// no face, sleeping, drowsy, focused, distracted.
func (c *Classifier) Classify(in Input) State {
	switch {
	case !in.FaceDetected:
		return NoFace
	case c.Sleeping(in.BlinkCount):
		return Sleeping
	case c.cfg.DrowsyFrames > 0 && in.BlinkCount >= c.cfg.DrowsyFrames:
		return Drowsy
	case c.lowAttention(in.Attention):
		return Distracted
	case in.Score >= c.cfg.FocusedThreshold && (in.Gaze == nil || in.Gaze.Centered()):
		return Focused
	default:
		return Distracted
	}
}

func (c *Classifier) lowAttention(v *float64) bool {
	return v != nil && c.cfg.LowAttention > 0 && *v < c.cfg.LowAttention
}
