package transport

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// serialPort is shared when input and output name the same device.
type serialPort struct {
	port serial.Port
	path string

	mu     sync.Mutex
	refs   int
	closed bool
}

func openSerial(path string, baud int) (*serialPort, error) {
	p, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", path, err)
	}
	return &serialPort{port: p, path: path, refs: 1}, nil
}

func (s *serialPort) acquire() *serialPort {
	s.mu.Lock()
	s.refs++
	s.mu.Unlock()
	return s
}

func (s *serialPort) release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs--
	if s.refs > 0 || s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}

type serialSource struct {
	*serialPort
}

func newSerialSource(p *serialPort, poll time.Duration) (Source, error) {
	timeout := serial.NoTimeout
	if poll > 0 {
		timeout = poll
	}
	if err := p.port.SetReadTimeout(timeout); err != nil {
		return nil, fmt.Errorf("serial %s: set read timeout: %w", p.path, err)
	}
	return &serialSource{p}, nil
}

// Read maps the driver's (0, nil) timeout result to ErrNoData.
func (s *serialSource) Read(b []byte) (int, error) {
	n, err := s.port.Read(b)
	if n == 0 && err == nil {
		return 0, ErrNoData
	}
	return n, err
}

func (s *serialSource) Flush() error {
	return s.port.ResetInputBuffer()
}

func (s *serialSource) Close() error {
	return s.release()
}

type serialSink struct {
	*serialPort
}

func (s *serialSink) Write(b []byte) (int, error) {
	return s.port.Write(b)
}

func (s *serialSink) Close() error {
	return s.release()
}
