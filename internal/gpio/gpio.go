// Package gpio drives the heater power interlock line.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Interlock switches mains power to the heater array.
type Interlock interface {
	// Set energises (true) or de-energises (false) the heater supply.
	Set(on bool) error

	// Close de-energises the line and releases GPIO resources.
	Close() error
}

// DefaultChip is the GPIO chip used when none is configured.
const DefaultChip = "gpiochip0"

// Nop is used when no interlock line is configured.
type Nop struct{}

func (Nop) Set(bool) error { return nil }
func (Nop) Close() error   { return nil }
