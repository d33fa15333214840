// Package transport opens the byte streams shared with the companion process.
// Named pipes are the default; a serial port can stand in for either side.
package transport

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Kind selects the transport implementation.
type Kind string

const (
	KindPipe   Kind = "pipe"
	KindSerial Kind = "serial"
)

// ErrNoData is returned by Source.Read when nothing arrived within the poll
// window. It is not a failure; callers use it to re-check their own state.
var ErrNoData = errors.New("transport: no data within poll window")

// Endpoint describes one end of the link.
type Endpoint struct {
	Kind Kind   `yaml:"kind" env:"KIND"`
	Path string `yaml:"path" env:"PATH"`
	Baud int    `yaml:"baud" env:"BAUD"`
}

func (s Endpoint) String() string {
	if s.Kind == KindSerial {
		return fmt.Sprintf("serial:%s@%d", s.Path, s.Baud)
	}
	return fmt.Sprintf("%s:%s", s.Kind, s.Path)
}

// Validate checks that the endpoint names a known kind and a path.
func (s Endpoint) Validate() error {
	switch s.Kind {
	case KindPipe:
	case KindSerial:
		if s.Baud <= 0 {
			return fmt.Errorf("serial %s: baud must be positive", s.Path)
		}
	default:
		return fmt.Errorf("unknown transport kind %q", s.Kind)
	}
	if s.Path == "" {
		return errors.New("transport path is empty")
	}
	return nil
}

// Source is the sensor-frame input stream.
type Source interface {
	// Read behaves like io.Reader. It returns ErrNoData when the poll window
	// elapses without input and io.EOF when the writer has gone away.
	Read(p []byte) (int, error)

	// Flush discards whatever is already buffered on the stream.
	Flush() error

	Close() error
}

// Sink is the actuation-command output stream.
type Sink interface {
	io.Writer
	Close() error
}

// flushLimit bounds how much backlog a single Flush will drain.
const flushLimit = 1 << 20

// flushWindow is how long Flush waits for more stale bytes before giving up.
const flushWindow = 20 * time.Millisecond
