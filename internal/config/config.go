// Package config loads the daemon configuration: built-in defaults, then an
// optional YAML file, then HEATER_* environment variables. Command-line
// flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/heater-control/internal/control"
	"github.com/sweeney/heater-control/internal/frame"
	"github.com/sweeney/heater-control/internal/gpio"
	"github.com/sweeney/heater-control/internal/state"
	"github.com/sweeney/heater-control/internal/transport"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HEATER_"

// Default pipe paths used by the companion sensor process.
const (
	DefaultInputPath  = "/tmp/temp_info_pipe"
	DefaultOutputPath = "/tmp/response_pipe"
)

// Config is the full daemon configuration.
type Config struct {
	Input      transport.Endpoint `yaml:"input" envPrefix:"INPUT_"`
	Output     transport.Endpoint `yaml:"output" envPrefix:"OUTPUT_"`
	PollWindow time.Duration      `yaml:"poll_window" env:"POLL_WINDOW"`
	Control    Control            `yaml:"control" envPrefix:"CONTROL_"`
	MQTT       MQTT               `yaml:"mqtt" envPrefix:"MQTT_"`
	HTTP       HTTP               `yaml:"http" envPrefix:"HTTP_"`
	Interlock  Interlock          `yaml:"interlock" envPrefix:"INTERLOCK_"`
	Log        Log                `yaml:"log" envPrefix:"LOG_"`
}

// Control holds the initial control state.
type Control struct {
	Mode      control.Mode `yaml:"mode" env:"MODE"`
	Frequency float64      `yaml:"frequency" env:"FREQUENCY"`
	Kp        float64      `yaml:"kp" env:"KP"`
	Ki        float64      `yaml:"ki" env:"KI"`
	Kd        float64      `yaml:"kd" env:"KD"`
	// Setpoints holds one value for every channel, or one per channel.
	Setpoints []float64    `yaml:"setpoints" env:"SETPOINTS" envSeparator:","`
	Limits    state.Limits `yaml:"limits" envPrefix:"LIMIT_"`
	// Enabled arms control at startup.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
}

// MQTT configures telemetry. An empty broker disables publishing.
type MQTT struct {
	Broker      string        `yaml:"broker" env:"BROKER"`
	ClientID    string        `yaml:"client_id" env:"CLIENT_ID"`
	TopicPrefix string        `yaml:"topic_prefix" env:"TOPIC_PREFIX"`
	Heartbeat   time.Duration `yaml:"heartbeat" env:"HEARTBEAT"`
}

// HTTP configures the status server. An empty address disables it.
type HTTP struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// Interlock configures the heater power relay line. A negative line
// disables it.
type Interlock struct {
	Chip      string `yaml:"chip" env:"CHIP"`
	Line      int    `yaml:"line" env:"LINE"`
	ActiveLow bool   `yaml:"active_low" env:"ACTIVE_LOW"`
}

// Log configures the logger.
type Log struct {
	Level       string `yaml:"level" env:"LEVEL"`
	Development bool   `yaml:"development" env:"DEVELOPMENT"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Input:      transport.Endpoint{Kind: transport.KindPipe, Path: DefaultInputPath},
		Output:     transport.Endpoint{Kind: transport.KindPipe, Path: DefaultOutputPath},
		PollWindow: 50 * time.Millisecond,
		Control: Control{
			Mode:      control.ModeBangBang,
			Frequency: 1,
			Kp:        1,
			Setpoints: []float64{0},
			Limits:    state.DefaultLimits(),
		},
		MQTT: MQTT{
			ClientID:    "heater-control",
			TopicPrefix: "heater/control",
			Heartbeat:   15 * time.Minute,
		},
		Interlock: Interlock{Chip: gpio.DefaultChip, Line: -1},
		Log:       Log{Level: "info"},
	}
}

// Load reads path over the defaults. A missing file is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config read: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config yaml: %w", err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// ApplyEnv overrides cfg from HEATER_* environment variables.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config env: %w", err)
	}
	applyDefaults(cfg)
	return nil
}

// applyDefaults fills fields a file or the environment left blank.
func applyDefaults(cfg *Config) {
	if cfg.Input.Kind == "" {
		cfg.Input.Kind = transport.KindPipe
	}
	if cfg.Output.Kind == "" {
		cfg.Output.Kind = transport.KindPipe
	}
	if cfg.PollWindow == 0 {
		cfg.PollWindow = 50 * time.Millisecond
	}
	if cfg.Control.Mode == "" {
		cfg.Control.Mode = control.ModeBangBang
	}
	if len(cfg.Control.Setpoints) == 0 {
		cfg.Control.Setpoints = []float64{0}
	}
	if cfg.Control.Limits == (state.Limits{}) {
		cfg.Control.Limits = state.DefaultLimits()
	}
	if cfg.Interlock.Chip == "" {
		cfg.Interlock.Chip = gpio.DefaultChip
	}
}

// SetpointArray expands the configured setpoints to one per channel.
func (c Control) SetpointArray() ([frame.Channels]float64, error) {
	var out [frame.Channels]float64
	switch len(c.Setpoints) {
	case 1:
		for i := range out {
			out[i] = c.Setpoints[0]
		}
	case frame.Channels:
		copy(out[:], c.Setpoints)
	default:
		return out, fmt.Errorf("setpoints: want 1 or %d values, got %d", frame.Channels, len(c.Setpoints))
	}
	return out, nil
}

// StateOptions converts the control section to state.Options.
func (c Control) StateOptions() (state.Options, error) {
	mode, err := control.ParseMode(string(c.Mode))
	if err != nil {
		return state.Options{}, err
	}
	sp, err := c.SetpointArray()
	if err != nil {
		return state.Options{}, err
	}
	return state.Options{
		Limits:    c.Limits,
		Mode:      mode,
		Gains:     control.Gains{Kp: c.Kp, Ki: c.Ki, Kd: c.Kd},
		Frequency: c.Frequency,
		Setpoints: sp,
	}, nil
}

// Validate reports every problem in cfg at once.
func (c Config) Validate() error {
	var err error
	if e := c.Input.Validate(); e != nil {
		err = multierr.Append(err, fmt.Errorf("input: %w", e))
	}
	if e := c.Output.Validate(); e != nil {
		err = multierr.Append(err, fmt.Errorf("output: %w", e))
	}
	if c.PollWindow <= 0 {
		err = multierr.Append(err, errors.New("poll_window must be positive"))
	}

	l := c.Control.Limits
	if l.MinSetpoint > l.MaxSetpoint {
		err = multierr.Append(err, fmt.Errorf("limits: setpoint range [%v, %v] inverted", l.MinSetpoint, l.MaxSetpoint))
	}
	if l.MinFrequency <= 0 || l.MinFrequency > l.MaxFrequency {
		err = multierr.Append(err, fmt.Errorf("limits: frequency range [%v, %v] invalid", l.MinFrequency, l.MaxFrequency))
	}
	if _, e := control.ParseMode(string(c.Control.Mode)); e != nil {
		err = multierr.Append(err, e)
	}
	if c.Control.Frequency < l.MinFrequency || c.Control.Frequency > l.MaxFrequency {
		err = multierr.Append(err, state.OutOfRangeError{Field: "frequency", Value: c.Control.Frequency, Min: l.MinFrequency, Max: l.MaxFrequency})
	}
	if sp, e := c.Control.SetpointArray(); e != nil {
		err = multierr.Append(err, e)
	} else {
		for _, v := range sp {
			if v < l.MinSetpoint || v > l.MaxSetpoint {
				err = multierr.Append(err, state.OutOfRangeError{Field: "setpoint", Value: v, Min: l.MinSetpoint, Max: l.MaxSetpoint})
				break
			}
		}
	}

	if c.MQTT.Heartbeat < 0 {
		err = multierr.Append(err, errors.New("mqtt heartbeat must not be negative"))
	}
	return err
}
