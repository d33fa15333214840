package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// ErrLinkClosed is returned by OpenSource once the link has been closed.
var ErrLinkClosed = errors.New("transport: link closed")

// Link owns both ends of the companion connection. The output side is opened
// up front; the input side is opened on demand and then held.
type Link struct {
	in   Endpoint
	out  Endpoint
	poll time.Duration

	mu      sync.Mutex
	sink    Sink
	source  Source
	pending *pendingOpen
	closed  bool
	shared  *serialPort
}

// OpenLink opens the output end immediately.
func OpenLink(in, out Endpoint, poll time.Duration) (*Link, error) {
	l := &Link{in: in, out: out, poll: poll}

	switch out.Kind {
	case KindSerial:
		p, err := openSerial(out.Path, out.Baud)
		if err != nil {
			return nil, err
		}
		l.sink = &serialSink{p}
		if in.Kind == KindSerial && in.Path == out.Path {
			l.shared = p
		}
	default:
		s, err := OpenPipeSink(out.Path)
		if err != nil {
			return nil, err
		}
		l.sink = s
	}
	return l, nil
}

// Sink returns the output stream.
func (l *Link) Sink() Sink {
	return l.sink
}

// OpenSource opens the input end, or returns it if already open.
//
// Opening a FIFO for reading blocks until the companion opens its end, so the
// open runs on its own goroutine and ctx only bounds the wait. An abandoned
// open keeps going and a later call picks up its result.
func (l *Link) OpenSource(ctx context.Context) (Source, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrLinkClosed
	}
	if l.source != nil {
		src := l.source
		l.mu.Unlock()
		return src, nil
	}
	p := l.pending
	if p == nil {
		p = &pendingOpen{done: make(chan struct{})}
		l.pending = p
		go l.dialSource(p)
	}
	l.mu.Unlock()

	select {
	case <-p.done:
		return p.src, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// pendingOpen is one in-flight open of the input end.
type pendingOpen struct {
	done chan struct{}
	src  Source
	err  error
}

func (l *Link) dialSource(p *pendingOpen) {
	src, err := l.dial()

	l.mu.Lock()
	defer l.mu.Unlock()
	defer close(p.done)
	l.pending = nil
	switch {
	case err != nil:
		p.err = err
	case l.closed:
		src.Close()
		p.err = ErrLinkClosed
	default:
		l.source = src
		p.src = src
	}
}

func (l *Link) dial() (Source, error) {
	switch {
	case l.shared != nil:
		src, err := newSerialSource(l.shared.acquire(), l.poll)
		if err != nil {
			l.shared.release()
		}
		return src, err
	case l.in.Kind == KindSerial:
		p, err := openSerial(l.in.Path, l.in.Baud)
		if err != nil {
			return nil, err
		}
		src, err := newSerialSource(p, l.poll)
		if err != nil {
			p.release()
		}
		return src, err
	default:
		return OpenPipeSource(l.in.Path, l.poll)
	}
}

// Close closes whichever ends are open. It does not wait for a pending open
// of the input; a pipe open blocked on the companion is released by briefly
// opening the write end.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	var err error
	if l.pending != nil && l.in.Kind == KindPipe && l.shared == nil {
		releasePipeOpen(l.in.Path)
	}
	if l.source != nil {
		err = multierr.Append(err, l.source.Close())
		l.source = nil
	}
	if l.sink != nil {
		err = multierr.Append(err, l.sink.Close())
		l.sink = nil
	}
	return err
}
