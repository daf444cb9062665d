package geometry

import "math"

// Default stability parameters for the landmark and bounding-box profiles.
const (
	DefaultMaxMovement       = 100.0 // pixels, landmark anchor (nose tip)
	DefaultBoxMaxMovement    = 50.0  // pixels, bounding-box center anchor
	DefaultStabilityWindow   = 5
	firstFrameStabilityScore = 1.0
)

// StabilityTracker scores head stability from one anchor point tracked
// across frames, smoothed over a short FIFO window.
//
// Update must only be called for frames with a detected face: frames
// without a face leave the anchor where it was.
type StabilityTracker struct {
	maxMovement float64
	window      int

	anchor    Point
	hasAnchor bool

	// Smoothing
	recent []float64
	sum    float64
}

// NewStabilityTracker creates a tracker. Non-positive arguments fall back to
// DefaultMaxMovement and DefaultStabilityWindow.
func NewStabilityTracker(maxMovement float64, window int) *StabilityTracker {
	if maxMovement <= 0 || !finite(maxMovement) {
		maxMovement = DefaultMaxMovement
	}
	if window <= 0 {
		window = DefaultStabilityWindow
	}
	return &StabilityTracker{
		maxMovement: maxMovement,
		window:      window,
		recent:      make([]float64, 0, window),
	}
}

// Update records a new anchor position and returns the smoothed stability.
// The first anchor of a session scores 1.0. Non-finite anchors score 0
// without moving the stored anchor.
func (s *StabilityTracker) Update(anchor Point) float64 {
	var raw float64
	switch {
	case !anchor.Finite():
		raw = 0
	case !s.hasAnchor:
		raw = firstFrameStabilityScore
		s.anchor, s.hasAnchor = anchor, true
	default:
		raw = math.Max(0, 1-anchor.Dist(s.anchor)/s.maxMovement)
		s.anchor = anchor
	}

	if len(s.recent) == s.window {
		s.sum -= s.recent[0]
		s.recent = s.recent[1:]
	}
	s.recent = append(s.recent, raw)
	s.sum += raw
	return s.Value()
}

// Value returns the current smoothed stability, 1.0 before any update.
func (s *StabilityTracker) Value() float64 {
	if len(s.recent) == 0 {
		return firstFrameStabilityScore
	}
	return Clamp(s.sum/float64(len(s.recent)), 0, 1)
}

// Anchor returns the last recorded anchor.
func (s *StabilityTracker) Anchor() (Point, bool) {
	return s.anchor, s.hasAnchor
}

// Reset forgets the anchor and the smoothing window.
func (s *StabilityTracker) Reset() {
	s.hasAnchor = false
	s.anchor = Point{}
	s.recent = s.recent[:0]
	s.sum = 0
}
