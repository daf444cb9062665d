package attention

import (
	"encoding/json"
	"testing"

	"github.com/teslashibe/go-focus/pkg/geometry"
)

func TestBlinkCounter(t *testing.T) {
	var b BlinkCounter
	steps := []struct {
		closed bool
		want   int
	}{
		{false, 0}, // floored at zero
		{true, 1},
		{true, 2},
		{false, 1},
		{false, 0},
		{false, 0},
	}
	for i, s := range steps {
		if got := b.Update(s.closed); got != s.want {
			t.Fatalf("step %d: count = %d, want %d", i, got, s.want)
		}
	}
}

func TestClassifier_Classify(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	centered := &geometry.Direction{}
	left := &geometry.Direction{Horizontal: geometry.Left}
	low := 0.05
	ok := 0.6

	tests := []struct {
		name   string
		in     Input
		expect State
	}{
		{"no face", Input{Score: 90}, NoFace},
		{"sustained closure", Input{FaceDetected: true, BlinkCount: 5, Score: 90, Gaze: centered}, Sleeping},
		{"single blink", Input{FaceDetected: true, BlinkCount: 1, Score: 90, Gaze: centered}, Focused},
		{"high score centered", Input{FaceDetected: true, Score: 70, Gaze: centered}, Focused},
		{"high score looking away", Input{FaceDetected: true, Score: 85, Gaze: left}, Distracted},
		{"low score", Input{FaceDetected: true, Score: 69.9, Gaze: centered}, Distracted},
		{"unknown gaze does not block", Input{FaceDetected: true, Score: 80}, Focused},
		{"low attention density", Input{FaceDetected: true, Score: 90, Gaze: centered, Attention: &low}, Distracted},
		{"adequate attention density", Input{FaceDetected: true, Score: 90, Gaze: centered, Attention: &ok}, Focused},
		{"drowsy disabled by default", Input{FaceDetected: true, BlinkCount: 3, Score: 40, Gaze: centered}, Distracted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.in); got != tt.expect {
				t.Errorf("Classify() = %v, want %v", got, tt.expect)
			}
		})
	}
}

func TestClassifier_Drowsy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DrowsyFrames = 3
	c := NewClassifier(cfg)

	if got := c.Classify(Input{FaceDetected: true, BlinkCount: 3, Score: 90}); got != Drowsy {
		t.Errorf("got %v, want drowsy", got)
	}
	if got := c.Classify(Input{FaceDetected: true, BlinkCount: 5, Score: 90}); got != Sleeping {
		t.Errorf("got %v, want sleeping", got)
	}
}

func TestState_Text(t *testing.T) {
	for _, s := range States() {
		b, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("marshal %v: %v", s, err)
		}
		var back State
		if err := json.Unmarshal(b, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		if back != s {
			t.Errorf("round trip %v -> %s -> %v", s, b, back)
		}
	}

	if _, err := ParseState("bored"); err == nil {
		t.Error("expected error for unknown state")
	}
	if got := State(42).String(); got != "state(42)" {
		t.Errorf("String() = %q", got)
	}
}
