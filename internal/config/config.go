// Package config loads focusd configuration from defaults, an optional
// config file, a .env file, FOCUS_* environment variables and flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/teslashibe/go-focus/internal/log"
	"github.com/teslashibe/go-focus/pkg/detection"
	"github.com/teslashibe/go-focus/pkg/focus"
	"github.com/teslashibe/go-focus/pkg/session"
	"github.com/teslashibe/go-focus/pkg/web"
)

// EnvPrefix prefixes every environment override, e.g. FOCUS_SERVER_ADDR.
const EnvPrefix = "FOCUS"

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Runtime adds Go runtime and process collectors.
	Runtime bool `mapstructure:"runtime"`
}

// MonitorConfig controls the live monitor feed.
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Config is the complete service configuration.
type Config struct {
	Server    web.Config       `mapstructure:"server"`
	Session   session.Config   `mapstructure:"session"`
	Detection detection.Config `mapstructure:"detection"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
	Monitor   MonitorConfig    `mapstructure:"monitor"`
	Log       log.Config       `mapstructure:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:    web.DefaultConfig(),
		Session:   session.DefaultConfig(),
		Detection: detection.DefaultConfig(),
		Metrics:   MetricsConfig{Enabled: true, Runtime: true},
		Monitor:   MonitorConfig{Enabled: true},
		Log:       log.Config{Level: "info"},
	}
}

// SetDefaults registers every key with v so that environment variables
// can override keys absent from the config file.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.allow_origins", d.Server.AllowOrigins)
	v.SetDefault("server.body_limit", d.Server.BodyLimit)
	v.SetDefault("server.request_log", d.Server.RequestLog)

	v.SetDefault("session.stale_after", d.Session.StaleAfter)
	v.SetDefault("session.idle_timeout", d.Session.IdleTimeout)
	v.SetDefault("session.reap_interval", d.Session.ReapInterval)
	v.SetDefault("session.max_fps", d.Session.MaxFPS)
	v.SetDefault("session.burst", d.Session.Burst)
	v.SetDefault("session.max_sessions", d.Session.MaxSessions)
	v.SetDefault("session.default_profile", d.Session.DefaultProfile)
	v.SetDefault("session.default_backend", d.Session.DefaultBackend)

	y := d.Detection.YuNet
	v.SetDefault("detection.yunet.model_path", y.ModelPath)
	v.SetDefault("detection.yunet.confidence", y.ConfidenceThresh)
	v.SetDefault("detection.yunet.nms", y.NMSThresh)
	v.SetDefault("detection.yunet.top_k", y.TopK)
	v.SetDefault("detection.yunet.input_width", y.InputWidth)
	v.SetDefault("detection.yunet.input_height", y.InputHeight)
	v.SetDefault("detection.yunet.eye_box_scale", y.EyeBoxScale)

	c := d.Detection.Cascade
	v.SetDefault("detection.cascade.face_model", c.FaceModel)
	v.SetDefault("detection.cascade.eye_model", c.EyeModel)
	v.SetDefault("detection.cascade.search_paths", c.SearchPaths)
	v.SetDefault("detection.cascade.scale_factor", c.ScaleFactor)
	v.SetDefault("detection.cascade.min_neighbors", c.MinNeighbors)
	v.SetDefault("detection.cascade.min_face_size", c.MinFaceSize)
	v.SetDefault("detection.cascade.min_eye_size", c.MinEyeSize)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.runtime", d.Metrics.Runtime)
	v.SetDefault("monitor.enabled", d.Monitor.Enabled)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load reads configuration into a fresh Config. An explicit path must
// exist; without one, focusd.{yaml,json,toml} is looked up in the working
// directory and /etc/focusd and silently skipped when absent.
func Load(v *viper.Viper, path string) (Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("focusd")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/focusd")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads environment variables from path if it exists. Variables
// already set in the environment win.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if _, err := focus.Profile(c.Session.DefaultProfile); err != nil {
		errs = append(errs, fmt.Errorf("session.default_profile: %w", err))
	}
	if b := c.Session.DefaultBackend; b != "" && b != "none" {
		if _, err := detection.ParseBackends(b); err != nil {
			errs = append(errs, fmt.Errorf("session.default_backend: %w", err))
		}
	}
	if c.Session.MaxFPS < 0 {
		errs = append(errs, errors.New("session.max_fps must not be negative"))
	}
	if c.Session.MaxSessions < 0 {
		errs = append(errs, errors.New("session.max_sessions must not be negative"))
	}
	if y := c.Detection.YuNet; y.ConfidenceThresh < 0 || y.ConfidenceThresh > 1 {
		errs = append(errs, fmt.Errorf("detection.yunet.confidence %.2f outside 0-1", y.ConfidenceThresh))
	}
	if c.Detection.Cascade.ScaleFactor <= 1 {
		errs = append(errs, errors.New("detection.cascade.scale_factor must be greater than 1"))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}
