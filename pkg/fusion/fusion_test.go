package fusion

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

func newFuser(t *testing.T, cfg Config, opts ...Option) *Fuser {
	t.Helper()
	f, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return f
}

func TestWeights_Normalized(t *testing.T) {
	w := DefaultWeights()
	if math.Abs(w.Sum()-1.2) > 1e-9 {
		t.Fatalf("default sum = %v, want 1.2", w.Sum())
	}
	n := w.Normalized()
	if math.Abs(n.Sum()-1) > 1e-9 {
		t.Errorf("normalized sum = %v, want 1", n.Sum())
	}
	if math.Abs(n.Stability-0.25/1.2) > 1e-9 {
		t.Errorf("normalized stability = %v", n.Stability)
	}
}

func TestWeights_Validate(t *testing.T) {
	tests := []struct {
		name    string
		w       Weights
		wantErr bool
	}{
		{"defaults", DefaultWeights(), false},
		{"single weight", Weights{Gaze: 1}, false},
		{"negative", Weights{Gaze: 1, Stability: -0.1}, true},
		{"all zero", Weights{}, true},
		{"nan", Weights{Gaze: math.NaN()}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.w.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidWeights) {
				t.Errorf("error %v is not ErrInvalidWeights", err)
			}
		})
	}
}

func TestFuse(t *testing.T) {
	f := newFuser(t, DefaultConfig())

	tests := []struct {
		name        string
		signals     Signals
		expect      float64
		wantBoosted bool
	}{
		{
			name:        "all excellent boosted and capped",
			signals:     Signals{Stability: 1, EyeOpenness: 1, Gaze: 1, HeadPose: 1, Attention: 1},
			expect:      0.95,
			wantBoosted: true,
		},
		{
			name:    "two of three high gets no boost",
			signals: Signals{Stability: 0.5, EyeOpenness: 1, Gaze: 1, HeadPose: 1, Attention: 1},
			// (0.5*0.25 + 0.95*0.75 + 0.9*0.2) / 1.2
			expect: (0.5*0.25 + 0.95*0.75 + 0.18) / 1.2,
		},
		{
			name:    "all zero awake",
			signals: Signals{},
			expect:  (0.1*1.0 + 0.18) / 1.2,
		},
		{
			name:    "all zero eyes closed",
			signals: Signals{EyesClosed: true},
			expect:  (0.1*1.0 + 0.06) / 1.2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := f.Fuse(tt.signals)
			if math.Abs(r.Score-tt.expect) > 1e-9 {
				t.Errorf("Score = %v, want %v", r.Score, tt.expect)
			}
			if r.Boosted != tt.wantBoosted {
				t.Errorf("Boosted = %v, want %v", r.Boosted, tt.wantBoosted)
			}
		})
	}
}

func TestFuse_BoostNotCapped(t *testing.T) {
	// Moderate eye and attention signals leave room for the boost below the ceiling.
	f := newFuser(t, DefaultConfig())
	s := Signals{Stability: 0.85, EyeOpenness: 0.3, Gaze: 0.85, HeadPose: 0.85, Attention: 0.3}
	base := (0.85*0.25 + 0.3*0.25 + 0.18 + 0.85*0.15 + 0.85*0.15 + 0.3*0.2) / 1.2

	r := f.Fuse(s)
	if !r.Boosted {
		t.Fatal("expected boost")
	}
	if math.Abs(r.Score-base*1.05) > 1e-9 {
		t.Errorf("Score = %v, want %v", r.Score, base*1.05)
	}
}

func TestFuse_Bounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NoiseAmplitude = 0.05
	f := newFuser(t, cfg, WithRand(rand.New(rand.NewPCG(1, 2))))

	for i := 0; i < 500; i++ {
		v := float64(i%11) / 10
		r := f.Fuse(Signals{Stability: v, EyeOpenness: 1 - v, Gaze: v, HeadPose: v, Attention: v, EyesClosed: i%3 == 0})
		if r.Score < cfg.OutputFloor || r.Score > cfg.OutputCeiling {
			t.Fatalf("score %v out of bounds", r.Score)
		}
	}
}

func TestFuse_NoiseWithinAmplitude(t *testing.T) {
	plain := newFuser(t, DefaultConfig())
	cfg := DefaultConfig()
	cfg.NoiseAmplitude = 0.05
	noisy := newFuser(t, cfg, WithRand(rand.New(rand.NewPCG(7, 7))))

	s := Signals{Stability: 0.5, EyeOpenness: 0.5, Gaze: 0.5, HeadPose: 0.5, Attention: 0.5}
	want := plain.Fuse(s).Score
	for i := 0; i < 100; i++ {
		got := noisy.Fuse(s).Score
		if math.Abs(got-want) > 0.05+1e-9 {
			t.Fatalf("noisy score %v strays more than 0.05 from %v", got, want)
		}
	}
}

func TestNew_RejectsBadWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{}
	if _, err := New(cfg); !errors.Is(err, ErrInvalidWeights) {
		t.Errorf("New() error = %v, want ErrInvalidWeights", err)
	}
}
