package gpio

import "sync"

// FakeInterlock records every level written. Safe for concurrent use.
type FakeInterlock struct {
	mu      sync.Mutex
	history []bool
	closed  bool

	// SetError, if set, will be returned by Set.
	SetError error
}

// NewFakeInterlock creates a de-energised FakeInterlock.
func NewFakeInterlock() *FakeInterlock {
	return &FakeInterlock{}
}

// Set records the level. The level is recorded even when SetError is set so
// tests can see what was attempted.
func (f *FakeInterlock) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, on)
	return f.SetError
}

// On reports the last level written.
func (f *FakeInterlock) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.history) > 0 && f.history[len(f.history)-1]
}

// History returns every level written, oldest first.
func (f *FakeInterlock) History() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.history...)
}

// Closed reports whether Close was called.
func (f *FakeInterlock) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Close de-energises and marks the interlock closed.
func (f *FakeInterlock) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, false)
	f.closed = true
	return nil
}
