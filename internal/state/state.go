// Package state holds the process-wide control state shared by the sample
// loop and the command surfaces. Every access goes through one mutex.
package state

import (
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/sweeney/heater-control/internal/control"
	"github.com/sweeney/heater-control/internal/frame"
	"github.com/sweeney/heater-control/internal/gpio"
)

// AllChannels addresses every channel in SetSetpoint.
const AllChannels = 0

// Limits bound operator-supplied values.
type Limits struct {
	MinSetpoint  float64 `yaml:"min_setpoint" env:"MIN_SETPOINT"`
	MaxSetpoint  float64 `yaml:"max_setpoint" env:"MAX_SETPOINT"`
	MinFrequency float64 `yaml:"min_frequency" env:"MIN_FREQUENCY"`
	MaxFrequency float64 `yaml:"max_frequency" env:"MAX_FREQUENCY"`
}

// DefaultLimits returns the stock setpoint and frequency bounds.
func DefaultLimits() Limits {
	return Limits{
		MinSetpoint:  -20.0,
		MaxSetpoint:  20.0,
		MinFrequency: 1.0,
		MaxFrequency: 5.0,
	}
}

// Options seed a new Shared.
type Options struct {
	Limits    Limits
	Mode      control.Mode
	Gains     control.Gains
	Frequency float64
	Setpoints [frame.Channels]float64
}

// Shared is the single synchronised store of control state.
type Shared struct {
	mu sync.Mutex

	limits    Limits
	enabled   bool
	epoch     uint64
	frequency float64
	gains     control.Gains
	bank      *control.Bank
	last      frame.ActuationCommand

	out       io.Writer
	interlock gpio.Interlock

	// changed is closed and replaced on every mutation that can affect the loop.
	changed chan struct{}
}

// New validates opts and builds a disabled Shared writing commands to out.
func New(opts Options, out io.Writer, interlock gpio.Interlock) (*Shared, error) {
	l := opts.Limits
	if l.MinSetpoint > l.MaxSetpoint {
		return nil, fmt.Errorf("setpoint limits inverted: [%v, %v]", l.MinSetpoint, l.MaxSetpoint)
	}
	if l.MinFrequency <= 0 || l.MinFrequency > l.MaxFrequency {
		return nil, fmt.Errorf("frequency limits invalid: [%v, %v]", l.MinFrequency, l.MaxFrequency)
	}
	if err := checkRange("frequency", opts.Frequency, l.MinFrequency, l.MaxFrequency); err != nil {
		return nil, err
	}
	for _, sp := range opts.Setpoints {
		if err := checkRange("setpoint", sp, l.MinSetpoint, l.MaxSetpoint); err != nil {
			return nil, err
		}
	}
	if err := checkGains(opts.Gains); err != nil {
		return nil, err
	}
	mode := opts.Mode
	if mode == "" {
		mode = control.ModeBangBang
	}
	if interlock == nil {
		interlock = gpio.Nop{}
	}

	return &Shared{
		limits:    l,
		frequency: opts.Frequency,
		gains:     opts.Gains,
		bank:      control.NewBank(mode, opts.Setpoints, opts.Gains, opts.Frequency),
		out:       out,
		interlock: interlock,
		changed:   make(chan struct{}),
	}, nil
}

func checkRange(field string, v, min, max float64) error {
	if math.IsNaN(v) || v < min || v > max {
		return OutOfRangeError{Field: field, Value: v, Min: min, Max: max}
	}
	return nil
}

func checkGains(g control.Gains) error {
	for _, f := range []struct {
		name string
		v    float64
	}{{"kp", g.Kp}, {"ki", g.Ki}, {"kd", g.Kd}} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return OutOfRangeError{Field: f.name, Value: f.v, Min: -math.MaxFloat64, Max: math.MaxFloat64}
		}
	}
	return nil
}

// notify wakes everything waiting on Changed. Caller holds mu.
func (s *Shared) notify() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Limits returns the configured bounds.
func (s *Shared) Limits() Limits {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits
}

// Enabled reports whether control is active.
func (s *Shared) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Armed returns what the loop needs for one iteration: whether it should run,
// the current arm epoch, the pacing interval, and a channel closed on the
// next mutation.
func (s *Shared) Armed() (enabled bool, epoch uint64, interval time.Duration, changed <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled, s.epoch, time.Duration(float64(time.Second) / s.frequency), s.changed
}

// IsCurrent reports whether epoch is still the active arm epoch.
func (s *Shared) IsCurrent(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled && s.epoch == epoch
}

// SetEnabled arms or disarms control. Arming starts a new epoch, after which
// the loop flushes stale input. Disarming writes exactly one safe command.
// Repeating the current value does nothing.
func (s *Shared) SetEnabled(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled == on {
		return nil
	}
	s.enabled = on
	defer s.notify()

	if on {
		if err := s.interlock.Set(true); err != nil {
			s.enabled = false
			err = fmt.Errorf("energise interlock: %w", err)
			if rerr := s.interlock.Set(false); rerr != nil {
				err = multierr.Append(err, fmt.Errorf("de-energise interlock: %w", rerr))
			}
			return err
		}
		s.epoch++
		return nil
	}
	return s.writeSafeLocked()
}

// SafeState disables control and writes one safe command regardless of the
// current enabled state. Used on the shutdown path.
func (s *Shared) SafeState() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		s.enabled = false
		defer s.notify()
	}
	return s.writeSafeLocked()
}

// writeSafeLocked writes the all-zero command and drops the interlock even if
// the write fails. Caller holds mu.
func (s *Shared) writeSafeLocked() error {
	var err error
	if _, werr := s.out.Write(frame.Encode(frame.SafeCommand)); werr != nil {
		err = multierr.Append(err, fmt.Errorf("%w: %v", ErrOutput, werr))
	}
	s.last = frame.SafeCommand
	if ierr := s.interlock.Set(false); ierr != nil {
		err = multierr.Append(err, fmt.Errorf("de-energise interlock: %w", ierr))
	}
	return err
}

// Apply runs one control cycle for f and writes the resulting command. It
// returns ErrNotArmed without touching any controller when epoch is stale.
func (s *Shared) Apply(epoch uint64, f frame.SensorFrame) (frame.ActuationCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled || s.epoch != epoch {
		return frame.ActuationCommand{}, ErrNotArmed
	}

	cmd := s.bank.Process(f.Temperatures())
	if _, err := s.out.Write(frame.Encode(cmd)); err != nil {
		return cmd, fmt.Errorf("%w: %v", ErrOutput, err)
	}
	s.last = cmd
	return cmd, nil
}

// SetGains stores new global gains and applies them to every PID controller.
// Under bang-bang they are kept for the next switch to PID.
func (s *Shared) SetGains(g control.Gains) error {
	if err := checkGains(g); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gains = g
	s.bank.SetGains(g)
	s.notify()
	return nil
}

// SetSetpoint changes one channel (1-based) or, with AllChannels, all four.
func (s *Shared) SetSetpoint(channel int, v float64) error {
	if channel < AllChannels || channel > frame.Channels {
		return IndexOutOfBoundsError{Index: channel}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := checkRange("setpoint", v, s.limits.MinSetpoint, s.limits.MaxSetpoint); err != nil {
		return err
	}
	if channel == AllChannels {
		for i := 0; i < frame.Channels; i++ {
			s.bank.Controller(i).SetSetpoint(v)
		}
	} else {
		s.bank.Controller(channel - 1).SetSetpoint(v)
	}
	s.notify()
	return nil
}

// SetFrequency changes the sampling frequency. PID controllers pick it up;
// bang-bang controllers have no use for it.
func (s *Shared) SetFrequency(f float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := checkRange("frequency", f, s.limits.MinFrequency, s.limits.MaxFrequency); err != nil {
		return err
	}
	s.frequency = f
	s.bank.SetFrequency(f)
	s.notify()
	return nil
}

// SwitchMode toggles between bang-bang and PID and returns the new mode.
func (s *Shared) SwitchMode() control.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bank = s.bank.Switch(s.gains, s.frequency)
	s.notify()
	return s.bank.Mode()
}

// SetMode selects a mode explicitly. Selecting the active mode keeps the
// current controllers and their accumulated state.
func (s *Shared) SetMode(m control.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bank.Mode() == m {
		return
	}
	s.bank = s.bank.Rebuild(m, s.gains, s.frequency)
	s.notify()
}

// Snapshot is a consistent copy of the control state.
type Snapshot struct {
	Enabled     bool
	Epoch       uint64
	Mode        control.Mode
	Frequency   float64
	Gains       control.Gains
	Setpoints   [frame.Channels]float64
	LastCommand frame.ActuationCommand
	Limits      Limits
}

// Snapshot returns the current control state.
func (s *Shared) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Enabled:     s.enabled,
		Epoch:       s.epoch,
		Mode:        s.bank.Mode(),
		Frequency:   s.frequency,
		Gains:       s.gains,
		Setpoints:   s.bank.Setpoints(),
		LastCommand: s.last,
		Limits:      s.limits,
	}
}
