// Package config loads the device configuration from YAML.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/micro-nova/musicbox-go/internal/bank"
)

// DefaultPath is where the daemon looks for its config when --config is not given.
const DefaultPath = "/etc/musicbox/config.yaml"

// Config represents the daemon configuration.
type Config struct {
	Audio   AudioConfig   `yaml:"audio"`
	Buttons ButtonsConfig `yaml:"buttons"`
	Storage StorageConfig `yaml:"storage"`
	Idle    IdleConfig    `yaml:"idle"`
	Power   PowerConfig   `yaml:"power"`
	Diag    DiagConfig    `yaml:"diag"`
	Metrics MetricsConfig `yaml:"metrics"`
	Loop    LoopConfig    `yaml:"loop"`
}

// AudioConfig holds the output gains and the startup sound.
type AudioConfig struct {
	GainWords  float64 `yaml:"gain_words" default:"0.4" validate:"gte=0,lte=4"`
	GainMusic  float64 `yaml:"gain_music" default:"0.3" validate:"gte=0,lte=4"`
	GainPolicy string  `yaml:"gain_policy" default:"legacy" validate:"oneof=legacy follow"`
	SampleRate int     `yaml:"sample_rate" default:"44100" validate:"oneof=22050 44100 48000"`
	BufferMs   int     `yaml:"buffer_ms" default:"100" validate:"gte=10,lte=2000"`
	InitSound  string  `yaml:"init_sound" default:"/init.mp3"`
}

// ButtonsConfig holds GPIO assignments and input conditioning.
type ButtonsConfig struct {
	SoundPins  []string `yaml:"sound_pins" default:"[\"GPIO14\",\"GPIO15\",\"GPIO27\",\"GPIO13\"]" validate:"len=4,dive,required"`
	ModePins   []string `yaml:"mode_pins" default:"[\"GPIO12\"]" validate:"min=1,max=3,dive,required"`
	PullUp     bool     `yaml:"pull_up"`
	Invert     bool     `yaml:"invert"`
	DebounceMs int      `yaml:"debounce_ms" default:"20" validate:"gte=0,lte=1000"`
	// The mode button is wired active low with the internal pull-up.
	ModePullUp *bool `yaml:"mode_pull_up" default:"true"`
	ModeInvert *bool `yaml:"mode_invert" default:"true"`
}

// StorageConfig holds the two sound volumes.
type StorageConfig struct {
	InternalRoot string `yaml:"internal_root" default:"/usr/share/musicbox" validate:"required"`
	ExternalRoot string `yaml:"external_root" default:"/media/sd" validate:"required"`
	// SkipMountCheck accepts a plain directory as the external card.
	SkipMountCheck bool `yaml:"skip_mount_check"`
	Watch          bool `yaml:"watch"`
}

// IdleConfig holds the inactivity sleep settings.
type IdleConfig struct {
	// A negative TimeoutSec disables sleep.
	TimeoutSec    int  `yaml:"timeout_sec" default:"300"`
	ResetOnButton bool `yaml:"reset_on_button"`
}

// PowerConfig selects how the device sleeps.
type PowerConfig struct {
	Method  string   `yaml:"method" default:"none" validate:"oneof=none command logind"`
	Command []string `yaml:"command" default:"[\"systemctl\",\"suspend\"]"`
	// WakePins defaults to the sound buttons when empty.
	WakePins []string `yaml:"wake_pins,omitempty" validate:"dive,required"`
}

// DiagConfig holds logging output settings.
type DiagConfig struct {
	Serial string `yaml:"serial"`
	Baud   int    `yaml:"baud" default:"115200" validate:"gt=0"`
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
}

// MetricsConfig holds the node_exporter textfile settings.
type MetricsConfig struct {
	Textfile    string `yaml:"textfile"`
	IntervalSec int    `yaml:"interval_sec" default:"30" validate:"gte=0"`
}

// LoopConfig holds main loop pacing.
type LoopConfig struct {
	PollIntervalMs int `yaml:"poll_interval_ms" default:"1" validate:"gte=0,lte=100"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}

// Load reads configuration from a YAML file. A missing file yields the
// built-in defaults. Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, errors.Wrap(err, "failed to read config file")
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	}

	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// Write stores cfg as YAML at path, replacing any existing file atomically.
func Write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to encode config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}
	return os.Rename(tmpPath, path)
}

func (c *Config) overrideFromEnv() error {
	floats := []struct {
		key string
		dst *float64
	}{
		{"MUSICBOX_GAIN_WORDS", &c.Audio.GainWords},
		{"MUSICBOX_GAIN_MUSIC", &c.Audio.GainMusic},
	}
	for _, f := range floats {
		if v := os.Getenv(f.key); v != "" {
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid %s", f.key)
			}
			*f.dst = n
		}
	}
	if v := os.Getenv("MUSICBOX_IDLE_TIMEOUT_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "invalid MUSICBOX_IDLE_TIMEOUT_SEC")
		}
		c.Idle.TimeoutSec = n
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"MUSICBOX_GAIN_POLICY", &c.Audio.GainPolicy},
		{"MUSICBOX_INTERNAL_ROOT", &c.Storage.InternalRoot},
		{"MUSICBOX_EXTERNAL_ROOT", &c.Storage.ExternalRoot},
		{"MUSICBOX_POWER_METHOD", &c.Power.Method},
		{"MUSICBOX_DIAG_SERIAL", &c.Diag.Serial},
		{"MUSICBOX_LOG_LEVEL", &c.Diag.Level},
		{"MUSICBOX_METRICS_TEXTFILE", &c.Metrics.Textfile},
	}
	for _, s := range strs {
		if v := os.Getenv(s.key); v != "" {
			*s.dst = v
		}
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	if c.Power.Method == "command" && len(c.Power.Command) == 0 {
		return errors.New("power.command is required when power.method is command")
	}
	return nil
}

// Gains returns the per-bank output gains.
func (c *Config) Gains() bank.Gains {
	return bank.Gains{Words: c.Audio.GainWords, Music: c.Audio.GainMusic}
}

// GainPolicy returns the bank switch gain policy.
func (c *Config) GainPolicy() bank.GainPolicy {
	if c.Audio.GainPolicy == "follow" {
		return bank.PolicyFollow
	}
	return bank.PolicyLegacy
}

// Debounce returns the button debounce interval.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Buttons.DebounceMs) * time.Millisecond
}

// IdleTimeout returns the inactivity timeout.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Idle.TimeoutSec) * time.Second
}

// OutputBuffer returns the audio output buffer length.
func (c *Config) OutputBuffer() time.Duration {
	return time.Duration(c.Audio.BufferMs) * time.Millisecond
}

// MetricsInterval returns how often the metrics textfile is rewritten.
func (c *Config) MetricsInterval() time.Duration {
	return time.Duration(c.Metrics.IntervalSec) * time.Second
}

// PollInterval returns the main loop sleep between idle iterations.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Loop.PollIntervalMs) * time.Millisecond
}

// WakePins returns the configured wake pins, or the sound pins when none are set.
func (c *Config) WakePins() []string {
	if len(c.Power.WakePins) > 0 {
		return c.Power.WakePins
	}
	return c.Buttons.SoundPins
}
