//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
)

// RealInterlock drives an output line on a Linux GPIO chip.
type RealInterlock struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealInterlock requests offset on chip as an output, initially off.
// activeLow inverts the electrical level for relay boards that switch on low.
func NewRealInterlock(chipName string, offset int, activeLow bool) (*RealInterlock, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0), gpiocdev.WithConsumer("heater-control")}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := chip.RequestLine(offset, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request interlock line %d: %w", offset, err)
	}

	return &RealInterlock{chip: chip, line: line}, nil
}

// Set writes the logical level of the interlock line.
func (r *RealInterlock) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := r.line.SetValue(v); err != nil {
		return fmt.Errorf("set interlock line: %w", err)
	}
	return nil
}

// Close drives the line off, returns it to an input so the relay board sees
// its pull default during reboot, and releases the chip.
func (r *RealInterlock) Close() error {
	var err error
	if r.line != nil {
		if e := r.line.SetValue(0); e != nil {
			err = multierr.Append(err, fmt.Errorf("drive interlock off: %w", e))
		}
		if e := r.line.Reconfigure(gpiocdev.AsInput); e != nil {
			err = multierr.Append(err, fmt.Errorf("reconfigure interlock line: %w", e))
		}
		if e := r.line.Close(); e != nil {
			err = multierr.Append(err, fmt.Errorf("close interlock line: %w", e))
		}
	}
	if r.chip != nil {
		if e := r.chip.Close(); e != nil {
			err = multierr.Append(err, fmt.Errorf("close chip: %w", e))
		}
	}
	return err
}
