package state

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every rejected command.
	ErrValidation = errors.New("validation failed")

	// ErrNotArmed means a frame arrived for a cycle that is no longer current:
	// control was disabled or re-armed since the frame was read.
	ErrNotArmed = errors.New("state: control not armed")

	// ErrOutput wraps a failed write to the actuation stream.
	ErrOutput = errors.New("state: actuation write failed")
)

// OutOfRangeError is returned when a setpoint, frequency or gain falls
// outside its permitted range.
type OutOfRangeError struct {
	Field    string
	Value    float64
	Min, Max float64
}

func (e OutOfRangeError) Error() string {
	return fmt.Sprintf("%s %v out of range [%v, %v]", e.Field, e.Value, e.Min, e.Max)
}

func (e OutOfRangeError) Is(target error) bool { return target == ErrValidation }

// IndexOutOfBoundsError is returned for a channel index outside 1..4.
type IndexOutOfBoundsError struct {
	Index int
}

func (e IndexOutOfBoundsError) Error() string {
	return fmt.Sprintf("channel %d out of bounds [1, 4]", e.Index)
}

func (e IndexOutOfBoundsError) Is(target error) bool { return target == ErrValidation }
