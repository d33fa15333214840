// Package control contains the heater control algorithms and the bank of four
// controllers that is swapped as a unit when the control mode changes.
// This package does no I/O and controllers never fail.
package control

import (
	"fmt"
	"math"
)

// Controller turns a measured temperature into a control output.
type Controller interface {
	// Process returns the output for one control cycle. PID controllers
	// update their internal state on every call.
	Process(measured float64) float64

	// Setpoint returns the target temperature.
	Setpoint() float64

	// SetSetpoint changes the target. Bounds are checked by the caller.
	SetSetpoint(v float64)
}

// Mode identifies the controller variant used by a bank.
type Mode string

const (
	ModeBangBang Mode = "bangbang"
	ModePID      Mode = "pid"
)

// ParseMode accepts the names used in configuration and on the HTTP API.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeBangBang, ModePID:
		return Mode(s), nil
	case "bang-bang", "bang_bang":
		return ModeBangBang, nil
	}
	return "", fmt.Errorf("unknown control mode %q", s)
}

// Other returns the mode a switch toggles to.
func (m Mode) Other() Mode {
	if m == ModePID {
		return ModeBangBang
	}
	return ModePID
}

// Gains are the PID coefficients.
type Gains struct {
	Kp, Ki, Kd float64
}

// Actuation converts a controller output to the integer sent on the wire,
// truncating toward zero. Outputs beyond the int range, infinities included,
// saturate at its bounds.
func Actuation(out float64) int {
	switch {
	case math.IsNaN(out):
		return 0
	case out >= float64(math.MaxInt):
		return math.MaxInt
	case out <= float64(math.MinInt):
		return math.MinInt
	}
	return int(math.Trunc(out))
}
