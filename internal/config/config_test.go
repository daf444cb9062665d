package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, "focusd.yaml", `
server:
  addr: ":9090"
session:
  stale_after: 3s
  max_fps: 30
  default_profile: meeting
detection:
  cascade:
    min_face_size: 80
log:
  level: debug
`)
	t.Setenv("FOCUS_SESSION_MAX_SESSIONS", "12")
	t.Setenv("FOCUS_SERVER_ADDR", ":7070")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr, "env overrides file")
	assert.Equal(t, 3*time.Second, cfg.Session.StaleAfter)
	assert.Equal(t, 30.0, cfg.Session.MaxFPS)
	assert.Equal(t, 12, cfg.Session.MaxSessions)
	assert.Equal(t, "meeting", cfg.Session.DefaultProfile)
	assert.Equal(t, 80, cfg.Detection.Cascade.MinFaceSize)
	assert.Equal(t, 1.1, cfg.Detection.Cascade.ScaleFactor, "unset keys keep defaults")
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FOCUS_SESSION_DEFAULT_BACKEND=yunet+cascade\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("FOCUS_SESSION_DEFAULT_BACKEND") })

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "yunet+cascade", cfg.Session.DefaultBackend)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no addr", func(c *Config) { c.Server.Addr = "" }},
		{"unknown profile", func(c *Config) { c.Session.DefaultProfile = "turbo" }},
		{"unknown backend", func(c *Config) { c.Session.DefaultBackend = "dlib" }},
		{"negative fps", func(c *Config) { c.Session.MaxFPS = -1 }},
		{"confidence", func(c *Config) { c.Detection.YuNet.ConfidenceThresh = 2 }},
		{"scale factor", func(c *Config) { c.Detection.Cascade.ScaleFactor = 1 }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
	}

	require.NoError(t, Default().Validate())
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
