package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/dimmerd/internal/light"
)

func TestParse_EmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, &def, cfg)
	assert.Equal(t, 500*time.Millisecond, cfg.Input.HoldTime.Duration())
	assert.Equal(t, PinsConfig{Red: 26, Green: 19, Blue: 13, White: 6}, cfg.Hardware.Pins)
	assert.True(t, cfg.State.CreateIfMissing)
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse([]byte(`
log:
  level: debug
state:
  backend: file
  path: /var/lib/dimmerd/state.json
  create_if_missing: false
hardware:
  driver: memory
input:
  enabled: false
  knob_timeout: 3s
engine:
  intervals: 0
timings:
  preview:
    fade_time: 100ms
    post_delay: 750ms
http:
  port: 9000
`))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, BackendFile, cfg.State.Backend)
	assert.Equal(t, "/var/lib/dimmerd/state.json", cfg.State.Path)
	assert.False(t, cfg.State.CreateIfMissing)
	assert.Equal(t, DriverMemory, cfg.Hardware.Driver)
	assert.False(t, cfg.Input.Enabled)
	assert.Equal(t, 3*time.Second, cfg.Input.KnobTimeout.Duration())
	assert.Equal(t, 200*time.Millisecond, cfg.Input.DoubleClickTime.Duration(), "unset keys keep defaults")
	assert.Equal(t, 300, cfg.Engine.Intervals, "zero intervals falls back to default")
	assert.Equal(t, light.Options{FadeTime: 100 * time.Millisecond, PostDelay: 750 * time.Millisecond}, cfg.Timings.Preview.Options())
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host)
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("DIMMERD_PIGPIO", "pi.local:8888")

	cfg, err := Parse([]byte(`
hardware:
  address: ${DIMMERD_PIGPIO}
database:
  path: ${DIMMERD_DB_UNSET:/tmp/fallback.sqlite}
`))
	require.NoError(t, err)
	assert.Equal(t, "pi.local:8888", cfg.Hardware.Address)
	assert.Equal(t, "/tmp/fallback.sqlite", cfg.Database.Path)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		validate bool
	}{
		{name: "unknown_backend", input: "state:\n  backend: etcd\n", validate: true},
		{name: "unknown_driver", input: "hardware:\n  driver: sysfs\n", validate: true},
		{name: "bad_port", input: "http:\n  port: 70000\n", validate: true},
		{name: "negative_queue", input: "engine:\n  queue_size: -1\n", validate: true},
		{name: "missing_pin", input: "input:\n  button_pin: \"\"\n", validate: true},
		{name: "bad_duration", input: "input:\n  hold_time: soon\n"},
		{name: "bad_yaml", input: "log: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.Error(t, err)
			assert.Equal(t, tt.validate, eris.Is(err, ErrInvalidConfig))
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  enabled: false\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.HTTP.Enabled)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEventBusDefaults(t *testing.T) {
	c := EventBusConfig{}
	assert.Equal(t, 4, c.GetWorkers())
	assert.Equal(t, 100, c.GetQueueSize())
}
