package control

// PID is a discrete PID controller sampled at a fixed frequency.
// Integral and previous error survive setpoint and gain changes; they only
// start from zero when a new controller is built.
type PID struct {
	setpoint  float64
	gains     Gains
	frequency float64

	integral      float64
	previousError float64
}

// NewPID creates a PID controller. frequency must be positive.
func NewPID(setpoint float64, g Gains, frequency float64) *PID {
	return &PID{
		setpoint:  setpoint,
		gains:     g,
		frequency: frequency,
	}
}

// Process runs one PID step with dt = 1/frequency.
func (p *PID) Process(measured float64) float64 {
	dt := 1.0 / p.frequency

	err := p.setpoint - measured
	p.integral += err * dt
	derivative := (err - p.previousError) / dt

	out := p.gains.Kp*err + p.gains.Ki*p.integral + p.gains.Kd*derivative
	p.previousError = err
	return out
}

func (p *PID) Setpoint() float64     { return p.setpoint }
func (p *PID) SetSetpoint(v float64) { p.setpoint = v }

// Gains returns the current coefficients.
func (p *PID) Gains() Gains { return p.gains }

// SetGains replaces the coefficients without touching accumulated state.
func (p *PID) SetGains(g Gains) { p.gains = g }

// Frequency returns the sampling frequency in Hz.
func (p *PID) Frequency() float64 { return p.frequency }

// SetFrequency changes the sampling frequency.
func (p *PID) SetFrequency(f float64) { p.frequency = f }

// Integral returns the accumulated error × dt.
func (p *PID) Integral() float64 { return p.integral }

// PreviousError returns the error seen on the last Process call.
func (p *PID) PreviousError() float64 { return p.previousError }
