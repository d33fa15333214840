package mqtt

import "sync"

// FakePublisher records published events for test assertions. Safe for
// concurrent use, since the control loop publishes from its own goroutine.
type FakePublisher struct {
	mu sync.Mutex

	cycles         []CycleEvent
	systemEvents   []SystemEvent
	systemPayloads [][]byte

	// PublishCycleError, if set, will be returned by PublishCycle.
	PublishCycleError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishCycle records the cycle event.
func (f *FakePublisher) PublishCycle(event CycleEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishCycleError != nil {
		return f.PublishCycleError
	}
	f.cycles = append(f.cycles, event)
	return nil
}

// PublishSystem records the system event and its payload.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.systemEvents = append(f.systemEvents, event)
	f.systemPayloads = append(f.systemPayloads, payload)
	return nil
}

// Cycles returns the recorded cycle events.
func (f *FakePublisher) Cycles() []CycleEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CycleEvent(nil), f.cycles...)
}

// SystemEvents returns the recorded system events.
func (f *FakePublisher) SystemEvents() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.systemEvents...)
}

// SystemPayloads returns the JSON payloads of recorded system events.
func (f *FakePublisher) SystemPayloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.systemPayloads...)
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cycles = nil
	f.systemEvents = nil
	f.systemPayloads = nil
	f.Closed = false
	f.PublishCycleError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
