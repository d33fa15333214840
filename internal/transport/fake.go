package transport

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"
)

// FakeSource is a test double fed through Push. Read waits up to Poll for
// the next chunk and returns ErrNoData otherwise. Safe for concurrent use.
type FakeSource struct {
	// Poll is the simulated poll window.
	Poll time.Duration

	mu      sync.Mutex
	buf     bytes.Buffer
	arrived chan struct{}
	eof     bool
	closed  bool

	// Flushes counts Flush calls.
	Flushes int
	// Flushed holds every byte discarded by Flush.
	Flushed []byte
}

// NewFakeSource creates a FakeSource with a short poll window.
func NewFakeSource() *FakeSource {
	return &FakeSource{
		Poll:    5 * time.Millisecond,
		arrived: make(chan struct{}, 1),
	}
}

// Push makes data available to Read.
func (f *FakeSource) Push(data string) {
	f.mu.Lock()
	f.buf.WriteString(data)
	f.mu.Unlock()
	f.signal()
}

// CloseWriter simulates the companion closing its end: once the buffer is
// drained, Read returns io.EOF.
func (f *FakeSource) CloseWriter() {
	f.mu.Lock()
	f.eof = true
	f.mu.Unlock()
	f.signal()
}

func (f *FakeSource) signal() {
	select {
	case f.arrived <- struct{}{}:
	default:
	}
}

func (f *FakeSource) Read(p []byte) (int, error) {
	for attempt := 0; attempt < 2; attempt++ {
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return 0, errors.New("fake source: read after close")
		}
		if f.buf.Len() > 0 {
			n, _ := f.buf.Read(p)
			f.mu.Unlock()
			return n, nil
		}
		if f.eof {
			f.mu.Unlock()
			return 0, io.EOF
		}
		f.mu.Unlock()

		if attempt == 0 {
			select {
			case <-f.arrived:
			case <-time.After(f.Poll):
				return 0, ErrNoData
			}
		}
	}
	return 0, ErrNoData
}

func (f *FakeSource) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Flushes++
	f.Flushed = append(f.Flushed, f.buf.Bytes()...)
	f.buf.Reset()
	return nil
}

// FlushCount returns the number of Flush calls so far.
func (f *FakeSource) FlushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Flushes
}

func (f *FakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// FakeSink records every write. Safe for concurrent use.
type FakeSink struct {
	mu     sync.Mutex
	writes [][]byte

	// WriteError, if set, is returned by Write.
	WriteError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeSink creates an empty FakeSink.
func NewFakeSink() *FakeSink {
	return &FakeSink{}
}

func (f *FakeSink) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return 0, f.WriteError
	}
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}

// SetWriteError changes WriteError under the sink's lock.
func (f *FakeSink) SetWriteError(err error) {
	f.mu.Lock()
	f.WriteError = err
	f.mu.Unlock()
}

// Writes returns a copy of every successful write, one entry per call.
func (f *FakeSink) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.writes))
	for i, w := range f.writes {
		out[i] = string(w)
	}
	return out
}

func (f *FakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
