package focus

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/teslashibe/go-focus/pkg/attention"
	"github.com/teslashibe/go-focus/pkg/fusion"
	"github.com/teslashibe/go-focus/pkg/geometry"
	"github.com/teslashibe/go-focus/pkg/history"
	"github.com/teslashibe/go-focus/pkg/stats"
)

// ErrUnknownProfile is returned by Profile for an unregistered name.
var ErrUnknownProfile = errors.New("unknown engine profile")

// FallbackConfig holds the neutral sub-signals used when a detector cannot
// provide eye contours.
type FallbackConfig struct {
	Gaze      float64 `json:"gaze" mapstructure:"gaze" validate:"gte=0,lte=1"`
	HeadPose  float64 `json:"head_pose" mapstructure:"head_pose" validate:"gte=0,lte=1"`
	OpenEAR   float64 `json:"open_ear" mapstructure:"open_ear" validate:"gte=0,lte=1"`   // eyes found
	ClosedEAR float64 `json:"closed_ear" mapstructure:"closed_ear" validate:"gte=0,lte=1"` // no eyes found
}

// Config holds every tunable of the engine. Profiles differ only here.
type Config struct {
	Name string `json:"name" mapstructure:"name"`

	// Stability
	MaxMovement     float64 `json:"max_movement" mapstructure:"max_movement" validate:"gt=0"` // pixels
	StabilityWindow int     `json:"stability_window" mapstructure:"stability_window" validate:"gte=1,lte=120"`

	// Eyes and gaze
	GazeThreshold float64 `json:"gaze_threshold" mapstructure:"gaze_threshold" validate:"gt=0,lte=1"`
	ClosedEAR     float64 `json:"closed_ear" mapstructure:"closed_ear" validate:"gt=0,lt=1"`

	// Attention density
	DarkThreshold     uint8   `json:"dark_threshold" mapstructure:"dark_threshold"`
	ExpectedDarkRatio float64 `json:"expected_dark_ratio" mapstructure:"expected_dark_ratio" validate:"gt=0,lte=1"`
	EyePadding        float64 `json:"eye_padding" mapstructure:"eye_padding" validate:"gte=0"`
	DefaultAttention  float64 `json:"default_attention" mapstructure:"default_attention" validate:"gte=0,lte=1"`

	// SleepingScore replaces the sample score (0-100) during sustained closure.
	SleepingScore float64 `json:"sleeping_score" mapstructure:"sleeping_score" validate:"gte=0,lte=100"`
	// DisplayCeiling caps the reported smoothed score.
	DisplayCeiling float64 `json:"display_ceiling" mapstructure:"display_ceiling" validate:"gt=0,lte=100"`

	Fallback  FallbackConfig   `json:"fallback" mapstructure:"fallback"`
	Fusion    fusion.Config    `json:"fusion" mapstructure:"fusion"`
	History   history.Config   `json:"history" mapstructure:"history"`
	Attention attention.Config `json:"attention" mapstructure:"attention"`
	Stats     stats.Config     `json:"stats" mapstructure:"stats"`
}

// DefaultConfig returns the landmark profile: full eye contours, nose-tip
// anchor and a five-frame smoothing window.
func DefaultConfig() Config {
	return Config{
		Name:              "landmark",
		MaxMovement:       geometry.DefaultMaxMovement,
		StabilityWindow:   geometry.DefaultStabilityWindow,
		GazeThreshold:     geometry.DefaultGazeThreshold,
		ClosedEAR:         0.2,
		DarkThreshold:     geometry.DefaultDarkThreshold,
		ExpectedDarkRatio: geometry.DefaultExpectedDarkRatio,
		EyePadding:        geometry.DefaultEyePadding,
		DefaultAttention:  0.3,
		SleepingScore:     20,
		DisplayCeiling:    95,
		Fallback: FallbackConfig{
			Gaze:      0.5,
			HeadPose:  0.5,
			OpenEAR:   0.3,
			ClosedEAR: 0.1,
		},
		Fusion:    fusion.DefaultConfig(),
		History:   history.DefaultConfig(),
		Attention: attention.DefaultConfig(),
		Stats:     stats.DefaultConfig(),
	}
}

// CascadeConfig returns the bounding-box profile for Haar cascade or other
// detectors without landmarks: tighter movement bound, longer window.
func CascadeConfig() Config {
	cfg := DefaultConfig()
	cfg.Name = "cascade"
	cfg.MaxMovement = geometry.DefaultBoxMaxMovement
	cfg.History.Capacity = 10
	return cfg
}

// MeetingConfig returns a profile for long meetings: the smoothed score
// covers the last five minutes.
func MeetingConfig() Config {
	cfg := DefaultConfig()
	cfg.Name = "meeting"
	cfg.History = history.Config{Capacity: 3000, MaxAge: 5 * time.Minute}
	return cfg
}

var profiles = map[string]func() Config{
	"landmark": DefaultConfig,
	"cascade":  CascadeConfig,
	"meeting":  MeetingConfig,
}

// Profile returns a named configuration. An empty name selects the default.
func Profile(name string) (Config, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "default" {
		return DefaultConfig(), nil
	}
	fn, ok := profiles[name]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q (have %s)", ErrUnknownProfile, name, strings.Join(ProfileNames(), ", "))
	}
	return fn(), nil
}

// ProfileNames lists registered profiles in alphabetical order.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ConfigError reports an invalid configuration.
type ConfigError struct {
	Profile string
	Fields  []string
	Err     error
}

func (e *ConfigError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("focus config %q: invalid %s: %v", e.Profile, strings.Join(e.Fields, ", "), e.Err)
	}
	return fmt.Sprintf("focus config %q: %v", e.Profile, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and cross-field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace())
			}
			return &ConfigError{Profile: c.Name, Fields: fields, Err: err}
		}
		return &ConfigError{Profile: c.Name, Err: err}
	}
	if err := c.Fusion.Weights.Validate(); err != nil {
		return &ConfigError{Profile: c.Name, Fields: []string{"Config.Fusion.Weights"}, Err: err}
	}
	if c.History.Capacity <= 0 && c.History.MaxAge <= 0 {
		return &ConfigError{
			Profile: c.Name,
			Fields:  []string{"Config.History"},
			Err:     errors.New("capacity or max age must be set"),
		}
	}
	return nil
}
