package control

import "github.com/sweeney/heater-control/internal/frame"

// Bank is the ordered set of four controllers of a single variant.
// Not safe for concurrent use; the owner serialises access.
type Bank struct {
	mode        Mode
	controllers [frame.Channels]Controller
}

// NewBank builds a bank of the given mode with fresh controllers.
func NewBank(mode Mode, setpoints [frame.Channels]float64, g Gains, frequency float64) *Bank {
	b := &Bank{mode: mode}
	for i, sp := range setpoints {
		b.controllers[i] = newController(mode, sp, g, frequency)
	}
	return b
}

func newController(mode Mode, setpoint float64, g Gains, frequency float64) Controller {
	if mode == ModePID {
		return NewPID(setpoint, g, frequency)
	}
	return NewBangBang(setpoint)
}

// Mode returns the variant of every controller in the bank.
func (b *Bank) Mode() Mode { return b.mode }

// Controller returns the controller for a 0-based channel index.
func (b *Bank) Controller(i int) Controller { return b.controllers[i] }

// Setpoints returns each channel's setpoint.
func (b *Bank) Setpoints() [frame.Channels]float64 {
	var out [frame.Channels]float64
	for i, c := range b.controllers {
		out[i] = c.Setpoint()
	}
	return out
}

// Process runs every controller against its channel's temperature and
// returns the wire command.
func (b *Bank) Process(temps [frame.Channels]float64) frame.ActuationCommand {
	var cmd frame.ActuationCommand
	for i, c := range b.controllers {
		cmd[i] = Actuation(c.Process(temps[i]))
	}
	return cmd
}

// SetGains updates every PID controller. Bang-bang controllers ignore gains.
func (b *Bank) SetGains(g Gains) {
	for _, c := range b.controllers {
		if p, ok := c.(*PID); ok {
			p.SetGains(g)
		}
	}
}

// SetFrequency updates every controller's frequency, but only when all of
// them are PID.
func (b *Bank) SetFrequency(f float64) {
	pids := make([]*PID, 0, len(b.controllers))
	for _, c := range b.controllers {
		p, ok := c.(*PID)
		if !ok {
			return
		}
		pids = append(pids, p)
	}
	for _, p := range pids {
		p.SetFrequency(f)
	}
}

// Switch returns a new bank of the other variant. Setpoints carry over by
// channel; everything else comes from g and frequency.
func (b *Bank) Switch(g Gains, frequency float64) *Bank {
	return b.Rebuild(b.mode.Other(), g, frequency)
}

// Rebuild returns a new bank of the given mode carrying over setpoints.
func (b *Bank) Rebuild(mode Mode, g Gains, frequency float64) *Bank {
	return NewBank(mode, b.Setpoints(), g, frequency)
}
