// Package command is the operator surface over the shared control state.
// Every operation either applies completely or is rejected with a validation
// error and leaves the state untouched. The console and the HTTP API are both
// thin adapters over Interface.
package command

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/sweeney/heater-control/internal/control"
	"github.com/sweeney/heater-control/internal/mqtt"
	"github.com/sweeney/heater-control/internal/state"
)

// Interface is the set of operator commands.
type Interface interface {
	Enable() error
	Disable() error
	SetGains(g control.Gains) error
	SetSetpointAll(v float64) error
	SetSetpointOne(channel int, v float64) error
	SetFrequency(v float64) error
	SwitchMode() (control.Mode, error)
	SetMode(m control.Mode) error
	Status() state.Snapshot
}

// Commander applies commands to a state.Shared and announces accepted
// changes as system events.
type Commander struct {
	state     *state.Shared
	publisher mqtt.Publisher
	clk       clock.Clock
	logger    *zap.SugaredLogger
}

var _ Interface = (*Commander)(nil)

// New creates a Commander.
func New(s *state.Shared, publisher mqtt.Publisher, clk clock.Clock, logger *zap.SugaredLogger) *Commander {
	return &Commander{state: s, publisher: publisher, clk: clk, logger: logger}
}

// Enable arms control. The sample loop flushes stale input before the first
// cycle.
func (c *Commander) Enable() error {
	if c.state.Enabled() {
		return nil
	}
	if err := c.state.SetEnabled(true); err != nil {
		c.logger.Errorw("enable failed", "error", err)
		return err
	}
	c.logger.Infow("control enabled")
	c.announce(mqtt.EventEnabled, "")
	return nil
}

// Disable disarms control and writes one safe command.
func (c *Commander) Disable() error {
	if !c.state.Enabled() {
		return nil
	}
	err := c.state.SetEnabled(false)
	if err != nil {
		// Control is off either way; the write failure is still reported.
		c.logger.Errorw("safe command after disable failed", "error", err)
	} else {
		c.logger.Infow("control disabled")
	}
	c.announce(mqtt.EventDisabled, "")
	return err
}

// SetGains retunes every PID controller.
func (c *Commander) SetGains(g control.Gains) error {
	if err := c.state.SetGains(g); err != nil {
		c.logger.Warnw("gains rejected", "kp", g.Kp, "ki", g.Ki, "kd", g.Kd, "error", err)
		return err
	}
	c.logger.Infow("gains updated", "kp", g.Kp, "ki", g.Ki, "kd", g.Kd)
	c.announce(mqtt.EventConfig, fmt.Sprintf("gains kp=%g ki=%g kd=%g", g.Kp, g.Ki, g.Kd))
	return nil
}

// SetSetpointAll sets the target of all four channels.
func (c *Commander) SetSetpointAll(v float64) error {
	return c.setSetpoint(state.AllChannels, v)
}

// SetSetpointOne sets the target of one channel, numbered from 1.
func (c *Commander) SetSetpointOne(channel int, v float64) error {
	if channel == state.AllChannels {
		return state.IndexOutOfBoundsError{Index: channel}
	}
	return c.setSetpoint(channel, v)
}

func (c *Commander) setSetpoint(channel int, v float64) error {
	if err := c.state.SetSetpoint(channel, v); err != nil {
		c.logger.Warnw("setpoint rejected", "channel", channel, "value", v, "error", err)
		return err
	}
	c.logger.Infow("setpoint updated", "channel", channel, "value", v)
	if channel == state.AllChannels {
		c.announce(mqtt.EventConfig, fmt.Sprintf("setpoint all=%g", v))
	} else {
		c.announce(mqtt.EventConfig, fmt.Sprintf("setpoint %d=%g", channel, v))
	}
	return nil
}

// SetFrequency changes the sampling frequency in Hz.
func (c *Commander) SetFrequency(v float64) error {
	if err := c.state.SetFrequency(v); err != nil {
		c.logger.Warnw("frequency rejected", "value", v, "error", err)
		return err
	}
	c.logger.Infow("frequency updated", "hz", v)
	c.announce(mqtt.EventConfig, fmt.Sprintf("frequency=%g", v))
	return nil
}

// SwitchMode toggles between bang-bang and PID.
func (c *Commander) SwitchMode() (control.Mode, error) {
	m := c.state.SwitchMode()
	c.logger.Infow("mode switched", "mode", m)
	c.announce(mqtt.EventConfig, "mode="+string(m))
	return m, nil
}

// SetMode selects a mode by name.
func (c *Commander) SetMode(m control.Mode) error {
	m, err := control.ParseMode(string(m))
	if err != nil {
		return fmt.Errorf("%w: %v", state.ErrValidation, err)
	}
	if c.state.Snapshot().Mode == m {
		return nil
	}
	c.state.SetMode(m)
	c.logger.Infow("mode set", "mode", m)
	c.announce(mqtt.EventConfig, "mode="+string(m))
	return nil
}

// Status returns the current control state.
func (c *Commander) Status() state.Snapshot {
	return c.state.Snapshot()
}

func (c *Commander) announce(event, reason string) {
	err := c.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp: c.clk.Now(),
		Event:     event,
		Reason:    reason,
	})
	if err != nil {
		c.logger.Warnw("publish system event", "event", event, "error", err)
	}
}
