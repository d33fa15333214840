// Package frame implements the NUL-terminated line protocol spoken with the
// sensor/heater companion process. Input lines carry four thermistor readings,
// output lines carry four heater actuation values.
// This package has NO external dependencies (no transport, OS, or time).
package frame

import "errors"

// Channels is the number of thermistor/heater pairs carried by every frame.
const Channels = 4

// Wire-level constants.
const (
	Terminator = 0x00
	Delimiter  = ';'

	// MaxLineLength bounds the bytes buffered while waiting for a terminator.
	MaxLineLength = 4096
)

var (
	// ErrNeedMoreData means no terminator has been seen yet.
	ErrNeedMoreData = errors.New("frame: need more data")

	// ErrMalformedFrame is wrapped by every decode failure that should be
	// skipped by the caller.
	ErrMalformedFrame = errors.New("frame: malformed")

	// ErrTransportClosed means the input stream reported end-of-stream.
	ErrTransportClosed = errors.New("frame: transport closed")
)

// Reading is one channel's sample. Aux is the mode-dependent secondary field.
type Reading struct {
	Temperature float64
	Aux         float64
}

// SensorFrame is one decoded input line.
type SensorFrame struct {
	// Counter is the sequence number as sent by the source. Opaque, may skip.
	Counter  string
	Readings [Channels]Reading
}

// Temperatures returns the four channel temperatures in channel order.
func (f SensorFrame) Temperatures() [Channels]float64 {
	var out [Channels]float64
	for i, r := range f.Readings {
		out[i] = r.Temperature
	}
	return out
}

// ActuationCommand holds one actuation value per heater, in channel order.
type ActuationCommand [Channels]int

// SafeCommand drives every heater off.
var SafeCommand = ActuationCommand{}

// IsSafe reports whether every channel is zero.
func (c ActuationCommand) IsSafe() bool {
	return c == SafeCommand
}
