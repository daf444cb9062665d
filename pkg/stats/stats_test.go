package stats

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/teslashibe/go-focus/pkg/attention"
	"github.com/teslashibe/go-focus/pkg/history"
)

var t0 = time.Date(2024, 4, 7, 10, 0, 0, 0, time.UTC)

func seq(states []attention.State, scores []float64, step time.Duration) []history.Sample {
	out := make([]history.Sample, len(scores))
	for i := range scores {
		out[i] = history.Sample{Score: scores[i], State: states[i], Timestamp: t0.Add(time.Duration(i) * step)}
	}
	return out
}

func TestAggregator_FocusPercentage(t *testing.T) {
	samples := seq(
		[]attention.State{attention.Distracted, attention.Focused, attention.Focused, attention.Distracted},
		[]float64{10, 90, 90, 10},
		time.Second,
	)
	a := NewAggregator(DefaultConfig())
	for _, s := range samples {
		a.Record(s)
	}
	st := a.Snapshot()

	if st.FocusPercentage != 50 {
		t.Errorf("FocusPercentage = %v, want 50", st.FocusPercentage)
	}
	if st.AverageScore != 50 {
		t.Errorf("AverageScore = %v, want 50", st.AverageScore)
	}
	if st.Samples != 4 {
		t.Errorf("Samples = %d, want 4", st.Samples)
	}
	if st.StateCounts["focused"] != 2 || st.StateCounts["distracted"] != 2 || st.StateCounts["no_face"] != 0 {
		t.Errorf("StateCounts = %v", st.StateCounts)
	}
	if st.Duration != 3*time.Second {
		t.Errorf("Duration = %v, want 3s", st.Duration)
	}
}

func TestAggregator_FocusedTime(t *testing.T) {
	tests := []struct {
		name   string
		states []attention.State
		want   time.Duration
	}{
		{
			name:   "credited while previous state focused",
			states: []attention.State{attention.Focused, attention.Focused, attention.Distracted, attention.Focused},
			// frame 1 and 2 follow a focused frame
			want: 2 * time.Second,
		},
		{
			name:   "first frame focused credits nothing",
			states: []attention.State{attention.Focused},
			want:   0,
		},
		{
			name:   "focused after distracted credits nothing",
			states: []attention.State{attention.Distracted, attention.Focused},
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores := make([]float64, len(tt.states))
			got := Compute(seq(tt.states, scores, time.Second), DefaultConfig()).TotalFocusedTime
			if got != tt.want {
				t.Errorf("TotalFocusedTime = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAggregator_FocusedTimeMonotonic(t *testing.T) {
	a := NewAggregator(DefaultConfig())
	a.Record(history.Sample{Score: 80, State: attention.Focused, Timestamp: t0.Add(5 * time.Second)})
	// Clock went backwards: no negative credit.
	a.Record(history.Sample{Score: 80, State: attention.Focused, Timestamp: t0})
	if got := a.Snapshot().TotalFocusedTime; got != 0 {
		t.Errorf("TotalFocusedTime = %v, want 0", got)
	}

	prev := a.Snapshot().TotalFocusedTime
	for i := 1; i < 10; i++ {
		a.Record(history.Sample{Score: 80, State: attention.Focused, Timestamp: t0.Add(time.Duration(i) * time.Second)})
		cur := a.Snapshot().TotalFocusedTime
		if cur < prev {
			t.Fatalf("focused time decreased: %v -> %v", prev, cur)
		}
		prev = cur
	}
}

func TestCompute_MatchesAggregator(t *testing.T) {
	states := []attention.State{
		attention.NoFace, attention.Focused, attention.Focused, attention.Sleeping,
		attention.Distracted, attention.Focused, attention.Focused, attention.NoFace,
	}
	scores := []float64{0, 75.5, 80, 20, 45, 72, 88, 0}
	samples := seq(states, scores, 150*time.Millisecond)

	a := NewAggregator(DefaultConfig())
	for _, s := range samples {
		a.Record(s)
	}
	incremental := a.Snapshot()
	full := Compute(samples, DefaultConfig())

	if math.Abs(incremental.AverageScore-full.AverageScore) > 1e-9 {
		t.Errorf("AverageScore %v != %v", incremental.AverageScore, full.AverageScore)
	}
	incremental.AverageScore = full.AverageScore
	if !reflect.DeepEqual(incremental, full) {
		t.Errorf("incremental %+v\nfull %+v", incremental, full)
	}
}

func TestSnapshot_Empty(t *testing.T) {
	st := NewAggregator(DefaultConfig()).Snapshot()
	if st.Samples != 0 || st.AverageScore != 0 || st.FocusPercentage != 0 {
		t.Errorf("empty snapshot = %+v", st)
	}
	if len(st.StateCounts) != len(attention.States()) {
		t.Errorf("StateCounts should list every state, got %v", st.StateCounts)
	}
}
