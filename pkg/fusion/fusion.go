// Package fusion combines per-frame sub-signals into one bounded
// instantaneous focus score.
package fusion

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/teslashibe/go-focus/pkg/geometry"
)

// ErrInvalidWeights is returned when weights are negative, non-finite or all zero.
var ErrInvalidWeights = errors.New("invalid fusion weights")

// Weights sets the contribution of each sub-signal.
type Weights struct {
	Stability   float64 `json:"stability" mapstructure:"stability"`
	EyeOpenness float64 `json:"eye_openness" mapstructure:"eye_openness"`
	Drowsiness  float64 `json:"drowsiness" mapstructure:"drowsiness"`
	Gaze        float64 `json:"gaze" mapstructure:"gaze"`
	HeadPose    float64 `json:"head_pose" mapstructure:"head_pose"`
	Attention   float64 `json:"attention" mapstructure:"attention"`
}

// DefaultWeights returns the documented weights. They sum to 1.2 and are
// normalised when a Fuser is built.
func DefaultWeights() Weights {
	return Weights{
		Stability:   0.25,
		EyeOpenness: 0.25,
		Drowsiness:  0.2,
		Gaze:        0.15,
		HeadPose:    0.15,
		Attention:   0.2,
	}
}

func (w Weights) values() [6]float64 {
	return [6]float64{w.Stability, w.EyeOpenness, w.Drowsiness, w.Gaze, w.HeadPose, w.Attention}
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	var s float64
	for _, v := range w.values() {
		s += v
	}
	return s
}

// Validate checks that weights are finite, non-negative and not all zero.
func (w Weights) Validate() error {
	for _, v := range w.values() {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %+v", ErrInvalidWeights, w)
		}
	}
	if w.Sum() == 0 {
		return fmt.Errorf("%w: all zero", ErrInvalidWeights)
	}
	return nil
}

// Normalized scales the weights to sum to 1.0.
func (w Weights) Normalized() Weights {
	s := w.Sum()
	if s == 0 {
		return w
	}
	return Weights{
		Stability:   w.Stability / s,
		EyeOpenness: w.EyeOpenness / s,
		Drowsiness:  w.Drowsiness / s,
		Gaze:        w.Gaze / s,
		HeadPose:    w.HeadPose / s,
		Attention:   w.Attention / s,
	}
}

// Config holds fusion parameters.
type Config struct {
	Weights Weights `json:"weights" mapstructure:"weights"`

	// Each sub-signal is clamped to [SignalFloor, SignalCeiling] before weighting.
	SignalFloor   float64 `json:"signal_floor" mapstructure:"signal_floor" validate:"gte=0,lte=1"`
	SignalCeiling float64 `json:"signal_ceiling" mapstructure:"signal_ceiling" validate:"gte=0,lte=1,gtefield=SignalFloor"`

	// Drowsiness sub-score for awake and drowsy frames.
	AwakeScore  float64 `json:"awake_score" mapstructure:"awake_score" validate:"gte=0,lte=1"`
	DrowsyScore float64 `json:"drowsy_score" mapstructure:"drowsy_score" validate:"gte=0,lte=1"`

	// Boost applies only when gaze, head pose and stability all exceed BoostThreshold.
	BoostThreshold float64 `json:"boost_threshold" mapstructure:"boost_threshold" validate:"gte=0,lte=1"`
	BoostFactor    float64 `json:"boost_factor" mapstructure:"boost_factor" validate:"gte=1"`

	OutputFloor   float64 `json:"output_floor" mapstructure:"output_floor" validate:"gte=0,lte=1"`
	OutputCeiling float64 `json:"output_ceiling" mapstructure:"output_ceiling" validate:"gte=0,lte=1,gtefield=OutputFloor"`

	// NoiseAmplitude adds uniform noise in [-a, +a] before the boost. 0 disables it.
	NoiseAmplitude float64 `json:"noise_amplitude" mapstructure:"noise_amplitude" validate:"gte=0,lte=0.5"`
}

// DefaultConfig returns the standard fusion parameters with noise disabled.
func DefaultConfig() Config {
	return Config{
		Weights:        DefaultWeights(),
		SignalFloor:    0.1,
		SignalCeiling:  0.95,
		AwakeScore:     0.9,
		DrowsyScore:    0.3,
		BoostThreshold: 0.8,
		BoostFactor:    1.05,
		OutputFloor:    0.1,
		OutputCeiling:  0.95,
	}
}

// Signals are the per-frame inputs, each nominally in [0,1].
type Signals struct {
	Stability   float64 `json:"stability"`
	EyeOpenness float64 `json:"eye_openness"`
	Gaze        float64 `json:"gaze"`
	HeadPose    float64 `json:"head_pose"`
	Attention   float64 `json:"attention"`
	EyesClosed  bool    `json:"eyes_closed"`
}

// Result is a fused score plus the clamped components that produced it.
type Result struct {
	Score      float64 `json:"score"`
	Stability  float64 `json:"stability"`
	Eye        float64 `json:"eye"`
	Drowsiness float64 `json:"drowsiness"`
	Gaze       float64 `json:"gaze"`
	HeadPose   float64 `json:"head_pose"`
	Attention  float64 `json:"attention"`
	Boosted    bool    `json:"boosted"`
}

// Fuser computes instantaneous focus scores. It is not safe for concurrent
// use when noise is enabled; each session owns its own Fuser.
type Fuser struct {
	cfg     Config
	weights Weights
	rng     *rand.Rand
}

// Option configures a Fuser.
type Option func(*Fuser)

// WithRand sets the noise source.
func WithRand(r *rand.Rand) Option {
	return func(f *Fuser) {
		f.rng = r
	}
}

// New validates the weights and builds a Fuser with normalised weights.
func New(cfg Config, opts ...Option) (*Fuser, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	f := &Fuser{
		cfg:     cfg,
		weights: cfg.Weights.Normalized(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.rng == nil && cfg.NoiseAmplitude > 0 {
		f.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return f, nil
}

// Weights returns the normalised weights in use.
func (f *Fuser) Weights() Weights {
	return f.weights
}

// Fuse combines the signals into a score in [OutputFloor, OutputCeiling].
func (f *Fuser) Fuse(s Signals) Result {
	c := f.cfg
	clampSignal := func(v float64) float64 {
		return geometry.Clamp(v, c.SignalFloor, c.SignalCeiling)
	}

	r := Result{
		Stability:  clampSignal(s.Stability),
		Eye:        clampSignal(s.EyeOpenness),
		Drowsiness: c.AwakeScore,
		Gaze:       clampSignal(s.Gaze),
		HeadPose:   clampSignal(s.HeadPose),
		Attention:  clampSignal(s.Attention),
	}
	if s.EyesClosed {
		r.Drowsiness = c.DrowsyScore
	}

	w := f.weights
	score := r.Stability*w.Stability +
		r.Eye*w.EyeOpenness +
		r.Drowsiness*w.Drowsiness +
		r.Gaze*w.Gaze +
		r.HeadPose*w.HeadPose +
		r.Attention*w.Attention

	if c.NoiseAmplitude > 0 && f.rng != nil {
		score += (f.rng.Float64()*2 - 1) * c.NoiseAmplitude
	}
	score = geometry.Clamp(score, c.OutputFloor, c.OutputCeiling)

	// Raw signals are compared so the signal ceiling cannot mask the threshold.
	if s.Gaze > c.BoostThreshold && s.HeadPose > c.BoostThreshold && s.Stability > c.BoostThreshold {
		score = geometry.Clamp(score*c.BoostFactor, c.OutputFloor, c.OutputCeiling)
		r.Boosted = true
	}

	r.Score = score
	return r
}
