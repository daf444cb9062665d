// Package history keeps a bounded window of focus samples and reports their
// moving average.
package history

import (
	"time"

	"github.com/teslashibe/go-focus/pkg/attention"
)

// Sample is one committed per-frame score.
type Sample struct {
	Score     float64         `json:"score"` // 0-100
	State     attention.State `json:"state"`
	Timestamp time.Time       `json:"timestamp"`
}

// Policy describes which bound a History enforces.
type Policy int

const (
	PolicyCount Policy = iota // last Capacity samples
	PolicyAge                 // samples within MaxAge of the newest one
	PolicyBoth                // age window with a hard count cap
)

func (p Policy) String() string {
	switch p {
	case PolicyAge:
		return "age"
	case PolicyBoth:
		return "age+count"
	default:
		return "count"
	}
}

// Config bounds the window. At least one of Capacity and MaxAge must be set.
type Config struct {
	Capacity int           `json:"capacity" mapstructure:"capacity" validate:"gte=0"`
	MaxAge   time.Duration `json:"max_age" mapstructure:"max_age" validate:"gte=0"`
}

// DefaultConfig returns a five-sample count window.
func DefaultConfig() Config {
	return Config{Capacity: 5}
}

// Policy reports which bound the config enforces.
func (c Config) Policy() Policy {
	switch {
	case c.MaxAge > 0 && c.Capacity > 0:
		return PolicyBoth
	case c.MaxAge > 0:
		return PolicyAge
	default:
		return PolicyCount
	}
}

// History is an ordered, append-only sample window. Not safe for concurrent
// use; the owning session serializes access.
type History struct {
	cfg     Config
	samples []Sample
	sum     float64
}

// New creates an empty history. A config with neither bound gets the
// default capacity.
func New(cfg Config) *History {
	if cfg.Capacity <= 0 && cfg.MaxAge <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	return &History{cfg: cfg}
}

// Config returns the bounds in use.
func (h *History) Config() Config {
	return h.cfg
}

// Append inserts s, evicts samples outside the window and returns the new
// moving average.
func (h *History) Append(s Sample) float64 {
	h.samples = append(h.samples, s)
	h.sum += s.Score
	h.evict(s.Timestamp)
	return h.Mean()
}

// Project returns the average the window would have after appending a
// sample with this score and timestamp, without modifying it.
func (h *History) Project(score float64, ts time.Time) float64 {
	sum, n := score, 1
	start := h.firstKept(ts, 1)
	for _, s := range h.samples[start:] {
		sum += s.Score
		n++
	}
	return sum / float64(n)
}

// firstKept returns the index of the oldest stored sample that survives an
// insertion of extra samples stamped newest.
func (h *History) firstKept(newest time.Time, extra int) int {
	start := 0
	if h.cfg.MaxAge > 0 {
		cutoff := newest.Add(-h.cfg.MaxAge)
		for start < len(h.samples) && h.samples[start].Timestamp.Before(cutoff) {
			start++
		}
	}
	if h.cfg.Capacity > 0 {
		if over := len(h.samples) + extra - h.cfg.Capacity; over > start {
			start = over
		}
	}
	if start > len(h.samples) {
		start = len(h.samples)
	}
	return start
}

func (h *History) evict(newest time.Time) {
	start := h.firstKept(newest, 0)
	if start == 0 {
		return
	}
	for _, s := range h.samples[:start] {
		h.sum -= s.Score
	}
	// Copy down so the backing array does not grow without bound.
	n := copy(h.samples, h.samples[start:])
	clear(h.samples[n:])
	h.samples = h.samples[:n]
	if len(h.samples) == 0 {
		h.sum = 0
	}
}

// Mean returns the average score in the window, 0 when empty.
func (h *History) Mean() float64 {
	if len(h.samples) == 0 {
		return 0
	}
	return h.sum / float64(len(h.samples))
}

// Len returns the number of samples in the window.
func (h *History) Len() int {
	return len(h.samples)
}

// Last returns the newest sample.
func (h *History) Last() (Sample, bool) {
	if len(h.samples) == 0 {
		return Sample{}, false
	}
	return h.samples[len(h.samples)-1], true
}

// Samples returns a copy of the window, oldest first.
func (h *History) Samples() []Sample {
	out := make([]Sample, len(h.samples))
	copy(out, h.samples)
	return out
}

// Reset empties the window.
func (h *History) Reset() {
	clear(h.samples)
	h.samples = h.samples[:0]
	h.sum = 0
}
