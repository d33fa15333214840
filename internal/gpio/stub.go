//go:build !linux

package gpio

import "errors"

// RealInterlock is not available on non-Linux platforms.
type RealInterlock struct{}

// NewRealInterlock returns an error on non-Linux platforms.
func NewRealInterlock(chipName string, offset int, activeLow bool) (*RealInterlock, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Set is not implemented on non-Linux platforms.
func (r *RealInterlock) Set(on bool) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *RealInterlock) Close() error {
	return nil
}
