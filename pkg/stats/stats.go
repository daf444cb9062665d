// Package stats aggregates session-lifetime focus statistics.
package stats

import (
	"time"

	"github.com/teslashibe/go-focus/pkg/attention"
	"github.com/teslashibe/go-focus/pkg/history"
)

// DefaultFocusThreshold is the score a sample needs to count toward the
// focus percentage.
const DefaultFocusThreshold = 40.0

// Config holds aggregation parameters.
type Config struct {
	FocusThreshold float64 `json:"focus_threshold" mapstructure:"focus_threshold" validate:"gte=0,lte=100"`
}

// DefaultConfig returns the standard aggregation parameters.
func DefaultConfig() Config {
	return Config{FocusThreshold: DefaultFocusThreshold}
}

// Stats summarises a whole session.
type Stats struct {
	AverageScore     float64       `json:"average_score"`
	TotalFocusedTime time.Duration `json:"total_focused_time"`
	FocusPercentage  float64       `json:"focus_percentage"`
	Samples          int           `json:"samples"`
	FocusedSamples   int           `json:"focused_samples"`

	// StateCounts is keyed by state name.
	StateCounts map[string]int `json:"state_counts"`

	StartedAt time.Time     `json:"started_at,omitzero"`
	LastAt    time.Time     `json:"last_at,omitzero"`
	Duration  time.Duration `json:"duration"`
}

// Aggregator keeps running totals over every sample of a session. Unlike
// the history window it never forgets.
type Aggregator struct {
	cfg Config

	count      int
	sum        float64
	aboveCount int
	focused    time.Duration
	states     [len(stateOrder)]int

	first, last time.Time
	prev        time.Time
	lastState   attention.State
}

var stateOrder = [...]attention.State{
	attention.NoFace,
	attention.Sleeping,
	attention.Drowsy,
	attention.Distracted,
	attention.Focused,
}

// NewAggregator creates an empty aggregator.
func NewAggregator(cfg Config) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// Record adds one committed sample. Time since the previous sample is
// credited as focused only if the previous sample was Focused; negative
// deltas are ignored.
func (a *Aggregator) Record(s history.Sample) {
	if a.count == 0 {
		a.first = s.Timestamp
	} else if a.lastState == attention.Focused {
		if d := s.Timestamp.Sub(a.prev); d > 0 {
			a.focused += d
		}
	}

	a.count++
	a.sum += s.Score
	if s.Score >= a.cfg.FocusThreshold {
		a.aboveCount++
	}
	if i := int(s.State); i >= 0 && i < len(a.states) {
		a.states[i]++
	}
	if s.Timestamp.After(a.last) || a.count == 1 {
		a.last = s.Timestamp
	}
	a.prev = s.Timestamp
	a.lastState = s.State
}

// Snapshot returns the current statistics.
func (a *Aggregator) Snapshot() Stats {
	st := Stats{
		TotalFocusedTime: a.focused,
		Samples:          a.count,
		FocusedSamples:   a.aboveCount,
		StateCounts:      make(map[string]int, len(stateOrder)),
		StartedAt:        a.first,
		LastAt:           a.last,
	}
	for i, s := range stateOrder {
		st.StateCounts[s.String()] = a.states[i]
	}
	if a.count > 0 {
		st.AverageScore = a.sum / float64(a.count)
		st.FocusPercentage = float64(a.aboveCount) / float64(a.count) * 100
		st.Duration = a.last.Sub(a.first)
	}
	return st
}

// Compute recomputes statistics from a full sample sequence, oldest first,
// without an Aggregator. Both agree for the same samples.
func Compute(samples []history.Sample, cfg Config) Stats {
	st := Stats{StateCounts: make(map[string]int, len(stateOrder))}
	for _, s := range stateOrder {
		st.StateCounts[s.String()] = 0
	}
	if len(samples) == 0 {
		return st
	}

	var sum float64
	for i, s := range samples {
		sum += s.Score
		if s.Score >= cfg.FocusThreshold {
			st.FocusedSamples++
		}
		if s.State >= 0 && int(s.State) < len(stateOrder) {
			st.StateCounts[s.State.String()]++
		}
		if i > 0 && samples[i-1].State == attention.Focused {
			if d := s.Timestamp.Sub(samples[i-1].Timestamp); d > 0 {
				st.TotalFocusedTime += d
			}
		}
		if i == 0 || s.Timestamp.After(st.LastAt) {
			st.LastAt = s.Timestamp
		}
	}

	st.Samples = len(samples)
	st.StartedAt = samples[0].Timestamp
	st.AverageScore = sum / float64(len(samples))
	st.FocusPercentage = float64(st.FocusedSamples) / float64(len(samples)) * 100
	st.Duration = st.LastAt.Sub(st.StartedAt)
	return st
}
