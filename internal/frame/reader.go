package frame

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
)

// Reader accumulates bytes from a transport and hands back complete lines.
// Not safe for concurrent use.
type Reader struct {
	src     io.Reader
	pending []byte
	chunk   []byte
	// discarding is set while skipping the tail of an overlong line.
	discarding bool
}

// NewReader wraps src.
func NewReader(src io.Reader) *Reader {
	return &Reader{
		src:   src,
		chunk: make([]byte, 256),
	}
}

// Next returns the next complete line without its terminator.
//
// End-of-stream is reported as ErrTransportClosed. Any other error from the
// underlying reader (e.g. a poll timeout) is returned as-is and partial data
// is kept for the following call.
func (r *Reader) Next() ([]byte, error) {
	for {
		if line, ok := r.takeLine(); ok {
			if line == nil {
				return nil, fmt.Errorf("%w: line exceeds %d bytes", ErrMalformedFrame, MaxLineLength)
			}
			return line, nil
		}

		n, err := r.src.Read(r.chunk)
		if n > 0 {
			r.pending = append(r.pending, r.chunk[:n]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, fs.ErrClosed) {
				return nil, fmt.Errorf("%w: %v", ErrTransportClosed, err)
			}
			if n > 0 {
				// Data arrived alongside the error; try to surface a line first.
				if line, ok := r.takeLine(); ok && line != nil {
					return line, nil
				}
			}
			return nil, err
		}
	}
}

// takeLine pops one line from pending. ok is true when a terminator was
// found or an overlong line was dropped (line is nil in that case).
func (r *Reader) takeLine() (line []byte, ok bool) {
	i := bytes.IndexByte(r.pending, Terminator)
	if i < 0 {
		if len(r.pending) > MaxLineLength {
			r.pending = r.pending[:0]
			r.discarding = true
			return nil, true
		}
		return nil, false
	}

	if i > MaxLineLength {
		r.pending = append(r.pending[:0], r.pending[i+1:]...)
		r.discarding = false
		return nil, true
	}

	line = make([]byte, i)
	copy(line, r.pending[:i])
	r.pending = append(r.pending[:0], r.pending[i+1:]...)

	if r.discarding {
		// Tail of a line already reported as overlong.
		r.discarding = false
		return r.takeLine()
	}
	return line, true
}

// Buffered returns the number of bytes held waiting for a terminator.
func (r *Reader) Buffered() int {
	return len(r.pending)
}

// Reset drops any partially accumulated line.
func (r *Reader) Reset() {
	r.pending = r.pending[:0]
	r.discarding = false
}
