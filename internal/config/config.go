package config

import (
	"os"
	"regexp"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/dimmerd/internal/light"
)

// Storage backends
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// PWM drivers
const (
	DriverPigpio = "pigpio"
	DriverMemory = "memory"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = eris.New("invalid configuration")

// Config represents the application configuration
type Config struct {
	Log             LogConfig      `yaml:"log"`
	Database        DatabaseConfig `yaml:"database"`
	State           StateConfig    `yaml:"state"`
	Hardware        HardwareConfig `yaml:"hardware"`
	Input           InputConfig    `yaml:"input"`
	Engine          EngineConfig   `yaml:"engine"`
	Timings         TimingsConfig  `yaml:"timings"`
	HTTP            HTTPConfig     `yaml:"http"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	EventBus        EventBusConfig `yaml:"eventbus"`
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"json"`
	Colors  bool   `yaml:"colors"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// StateConfig selects where the fixture state is persisted
type StateConfig struct {
	Backend         string `yaml:"backend"`           // sqlite or file
	Path            string `yaml:"path"`              // state file, file backend only
	CreateIfMissing bool   `yaml:"create_if_missing"` // start from the default state when nothing is persisted
}

// HardwareConfig contains PWM output settings
type HardwareConfig struct {
	Driver    string     `yaml:"driver"`  // pigpio or memory
	Address   string     `yaml:"address"` // pigpiod socket address
	Timeout   Duration   `yaml:"timeout"` // per-request socket timeout
	Frequency int        `yaml:"frequency"`
	Pins      PinsConfig `yaml:"pins"` // BCM numbers
}

// PinsConfig maps channels to BCM GPIO numbers
type PinsConfig struct {
	Red   int `yaml:"red"`
	Green int `yaml:"green"`
	Blue  int `yaml:"blue"`
	White int `yaml:"white"`
}

// InputConfig contains button and rotary encoder settings
type InputConfig struct {
	Enabled         bool     `yaml:"enabled"`
	ButtonPin       string   `yaml:"button_pin"`
	ClockPin        string   `yaml:"clock_pin"`
	DataPin         string   `yaml:"data_pin"`
	HoldTime        Duration `yaml:"hold_time"`
	DoubleClickTime Duration `yaml:"double_click_time"`
	KnobTimeout     Duration `yaml:"knob_timeout"` // edit mode idle revert
	Debounce        Duration `yaml:"debounce"`
}

// EngineConfig contains fade engine settings
type EngineConfig struct {
	PollInterval      Duration `yaml:"poll_interval"`
	Intervals         int      `yaml:"intervals"`  // easing steps per fade
	QueueSize         int      `yaml:"queue_size"` // external backlog limit, 0 = unbounded
	AuroraMaxAttempts int      `yaml:"aurora_max_attempts"`
	AuroraScanLimit   int      `yaml:"aurora_scan_limit"`
}

// AnimationConfig is the fade and post delay of one kind of command
type AnimationConfig struct {
	FadeTime  Duration `yaml:"fade_time"`
	PostDelay Duration `yaml:"post_delay"`
}

// TimingsConfig contains the animation of commands produced by the knob
type TimingsConfig struct {
	Switch  AnimationConfig `yaml:"switch"`
	Preset  AnimationConfig `yaml:"preset"`
	Rotate  AnimationConfig `yaml:"rotate"`
	Preview AnimationConfig `yaml:"preview"`
	Startup AnimationConfig `yaml:"startup"` // restore of the persisted state at boot
}

// HTTPConfig contains the command API server settings
type HTTPConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"` // 0 = unlimited
	RateLimitBurst int      `yaml:"rate_limit_burst"`
	AuroraWait     Duration `yaml:"aurora_wait"` // how long POST /aurora waits for the first colour
}

// LedgerConfig contains command ledger settings
type LedgerConfig struct {
	Enabled         bool     `yaml:"enabled"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return eris.Wrapf(err, "line %d", value.Line)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used for every key the file omits.
func Default() Config {
	return Config{
		Log:      LogConfig{Level: "info", Colors: true},
		Database: DatabaseConfig{Path: "./dimmerd.sqlite"},
		State: StateConfig{
			Backend:         BackendSQLite,
			Path:            "./state.json",
			CreateIfMissing: true,
		},
		Hardware: HardwareConfig{
			Driver:    DriverPigpio,
			Address:   "localhost:8888",
			Timeout:   Duration(2 * time.Second),
			Frequency: 800,
			Pins:      PinsConfig{Red: 26, Green: 19, Blue: 13, White: 6},
		},
		Input: InputConfig{
			Enabled:         true,
			ButtonPin:       "GPIO2",
			ClockPin:        "GPIO4",
			DataPin:         "GPIO3",
			HoldTime:        Duration(500 * time.Millisecond),
			DoubleClickTime: Duration(200 * time.Millisecond),
			KnobTimeout:     Duration(10 * time.Second),
			Debounce:        Duration(5 * time.Millisecond),
		},
		Engine: EngineConfig{
			PollInterval:      Duration(100 * time.Millisecond),
			Intervals:         300,
			QueueSize:         64,
			AuroraMaxAttempts: 10000,
			AuroraScanLimit:   1 << 16,
		},
		Timings: TimingsConfig{
			Switch:  AnimationConfig{FadeTime: Duration(time.Second)},
			Preset:  AnimationConfig{FadeTime: Duration(time.Second)},
			Rotate:  AnimationConfig{FadeTime: Duration(200 * time.Millisecond)},
			Preview: AnimationConfig{FadeTime: Duration(200 * time.Millisecond), PostDelay: Duration(time.Second)},
			Startup: AnimationConfig{FadeTime: Duration(2 * time.Second)},
		},
		HTTP: HTTPConfig{
			Enabled:        true,
			Host:           "0.0.0.0",
			Port:           8080,
			RateLimitRPS:   20,
			RateLimitBurst: 40,
			AuroraWait:     Duration(2 * time.Second),
		},
		Ledger: LedgerConfig{
			Enabled:         true,
			CleanupInterval: Duration(24 * time.Hour),
			RetentionDays:   30,
		},
		EventBus:        EventBusConfig{Workers: 4, QueueSize: 100},
		ShutdownTimeout: Duration(5 * time.Second),
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", path)
	}
	return Parse(data)
}

// Parse decodes a YAML document on top of the defaults.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, eris.Wrap(err, "failed to parse config")
	}

	// Zero values left by explicit empty keys fall back to defaults
	def := Default()
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = def.Database.Path
	}
	if cfg.State.Path == "" {
		cfg.State.Path = def.State.Path
	}
	if cfg.Engine.PollInterval <= 0 {
		cfg.Engine.PollInterval = def.Engine.PollInterval
	}
	if cfg.Engine.Intervals <= 0 {
		cfg.Engine.Intervals = def.Engine.Intervals
	}
	if cfg.Engine.AuroraMaxAttempts <= 0 {
		cfg.Engine.AuroraMaxAttempts = def.Engine.AuroraMaxAttempts
	}
	if cfg.Ledger.CleanupInterval <= 0 {
		cfg.Ledger.CleanupInterval = def.Ledger.CleanupInterval
	}
	if cfg.Ledger.RetentionDays <= 0 {
		cfg.Ledger.RetentionDays = def.Ledger.RetentionDays
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	switch c.State.Backend {
	case BackendSQLite, BackendFile:
	default:
		return eris.Wrapf(ErrInvalidConfig, "state.backend %q, want %s or %s", c.State.Backend, BackendSQLite, BackendFile)
	}
	switch c.Hardware.Driver {
	case DriverPigpio, DriverMemory:
	default:
		return eris.Wrapf(ErrInvalidConfig, "hardware.driver %q, want %s or %s", c.Hardware.Driver, DriverPigpio, DriverMemory)
	}
	if c.HTTP.Enabled && (c.HTTP.Port <= 0 || c.HTTP.Port > 65535) {
		return eris.Wrapf(ErrInvalidConfig, "http.port %d out of range", c.HTTP.Port)
	}
	if c.Engine.QueueSize < 0 {
		return eris.Wrapf(ErrInvalidConfig, "engine.queue_size %d is negative", c.Engine.QueueSize)
	}
	if c.Input.Enabled && (c.Input.ButtonPin == "" || c.Input.ClockPin == "" || c.Input.DataPin == "") {
		return eris.Wrap(ErrInvalidConfig, "input pins must be set when input is enabled")
	}
	return nil
}

// Options converts an animation block into per-command options.
func (a AnimationConfig) Options() light.Options {
	return light.Options{
		FadeTime:  a.FadeTime.Duration(),
		PostDelay: a.PostDelay.Duration(),
	}
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
