package transport

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"
)

// pipeSource reads a named pipe. Poll windows rely on read deadlines, which
// the runtime supports for FIFOs; on files without deadline support reads
// simply block.
type pipeSource struct {
	f         *os.File
	poll      time.Duration
	deadlines bool
}

// OpenPipeSource opens path for reading. Opening a FIFO blocks until a
// writer is present.
func OpenPipeSource(path string, poll time.Duration) (Source, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open input pipe %s: %w", path, err)
	}
	s := &pipeSource{f: f, poll: poll}
	s.deadlines = f.SetReadDeadline(time.Time{}) == nil
	return s, nil
}

func (s *pipeSource) Read(p []byte) (int, error) {
	if s.deadlines && s.poll > 0 {
		if err := s.f.SetReadDeadline(time.Now().Add(s.poll)); err != nil {
			return 0, err
		}
	}
	n, err := s.f.Read(p)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return n, ErrNoData
	}
	return n, err
}

func (s *pipeSource) Flush() error {
	if !s.deadlines {
		return nil
	}
	defer s.f.SetReadDeadline(time.Time{})

	buf := make([]byte, 4096)
	drained := 0
	for drained < flushLimit {
		if err := s.f.SetReadDeadline(time.Now().Add(flushWindow)); err != nil {
			return err
		}
		n, err := s.f.Read(buf)
		drained += n
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("flush input pipe: %w", err)
		}
	}
	return nil
}

func (s *pipeSource) Close() error {
	return s.f.Close()
}

// OpenPipeSink opens path for writing. Opening a FIFO blocks until a reader
// is present.
func OpenPipeSink(path string) (Sink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open output pipe %s: %w", path, err)
	}
	return f, nil
}

// releasePipeOpen wakes a reader blocked opening the FIFO at path by opening
// and closing the write end without blocking. It fails quietly when nobody
// is waiting.
func releasePipeOpen(path string) {
	f, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return
	}
	f.Close()
}
