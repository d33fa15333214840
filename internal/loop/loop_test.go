package loop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sweeney/heater-control/internal/control"
	"github.com/sweeney/heater-control/internal/frame"
	"github.com/sweeney/heater-control/internal/gpio"
	"github.com/sweeney/heater-control/internal/mqtt"
	"github.com/sweeney/heater-control/internal/state"
	"github.com/sweeney/heater-control/internal/status"
	"github.com/sweeney/heater-control/internal/transport"
)

const (
	hot  = "1;25.0-0;25.0-0;25.0-0;25.0-0\x00"
	cold = "2;-5.0-0;-5.0-0;-5.0-0;-5.0-0\x00"
)

type harness struct {
	t       *testing.T
	state   *state.Shared
	src     *transport.FakeSource
	sink    *transport.FakeSink
	pub     *mqtt.FakePublisher
	tracker *status.Tracker
	loop    *Loop

	mu    sync.Mutex
	opens int

	cancel context.CancelFunc
	done   chan error
}

// newHarness runs a bang-bang loop at 100 Hz with every setpoint at 0.
func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:    t,
		src:  transport.NewFakeSource(),
		sink: transport.NewFakeSink(),
		pub:  mqtt.NewFakePublisher(),
	}

	limits := state.DefaultLimits()
	limits.MaxFrequency = 1000
	s, err := state.New(state.Options{
		Limits:    limits,
		Mode:      control.ModeBangBang,
		Gains:     control.Gains{Kp: 1},
		Frequency: 100,
	}, h.sink, gpio.Nop{})
	require.NoError(t, err)
	h.state = s

	clk := clock.New()
	h.tracker = status.NewTracker(clk, status.Config{})
	h.loop = New(Deps{
		State: s,
		Open: func(context.Context) (transport.Source, error) {
			h.mu.Lock()
			h.opens++
			h.mu.Unlock()
			return h.src, nil
		},
		Tracker:   h.tracker,
		Publisher: h.pub,
		Clock:     clk,
		Logger:    zaptest.NewLogger(t).Sugar(),
	})
	return h
}

func (h *harness) start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan error, 1)
	go func() { h.done <- h.loop.Run(ctx) }()
	h.t.Cleanup(func() {
		cancel()
		<-h.done
	})
}

func (h *harness) stop() error {
	h.cancel()
	select {
	case err := <-h.done:
		h.done <- err
		return err
	case <-time.After(2 * time.Second):
		h.t.Fatal("loop did not stop")
		return nil
	}
}

func (h *harness) openCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opens
}

func (h *harness) waitWrites(n int) []string {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return len(h.sink.Writes()) >= n },
		2*time.Second, time.Millisecond, "want %d writes", n)
	return h.sink.Writes()
}

func TestIdleDoesNotOpenInput(t *testing.T) {
	h := newHarness(t)
	h.start()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, h.openCount())
	assert.Equal(t, status.LoopIdle, h.tracker.Snapshot().Loop)
	assert.Empty(t, h.sink.Writes())
}

func TestArmFlushesStaleInput(t *testing.T) {
	h := newHarness(t)
	h.src.Push(hot)
	h.start()

	require.NoError(t, h.state.SetEnabled(true))
	require.Eventually(t, func() bool { return h.src.FlushCount() == 1 }, time.Second, time.Millisecond)

	h.src.Push(cold)
	writes := h.waitWrites(1)
	assert.Equal(t, "1;1;1;1\x00", writes[0], "first command must come from fresh input")
	assert.Equal(t, 1, h.openCount())

	require.ErrorIs(t, h.stop(), context.Canceled)
	assert.Equal(t, hot, string(h.src.Flushed))
}

func TestCyclesProduceCommands(t *testing.T) {
	h := newHarness(t)
	h.start()
	require.NoError(t, h.state.SetEnabled(true))
	require.Eventually(t, func() bool { return h.src.FlushCount() == 1 }, time.Second, time.Millisecond)

	h.src.Push(hot)
	h.src.Push(cold)
	writes := h.waitWrites(2)
	assert.Equal(t, []string{"0;0;0;0\x00", "1;1;1;1\x00"}, writes[:2])

	require.Eventually(t, func() bool { return len(h.pub.Cycles()) == 2 }, time.Second, time.Millisecond)
	c := h.pub.Cycles()[1]
	assert.Equal(t, "2", c.Counter)
	assert.Equal(t, "bangbang", c.Mode)
	assert.Equal(t, frame.ActuationCommand{1, 1, 1, 1}, c.Command)

	snap := h.tracker.Snapshot()
	assert.Equal(t, status.LoopArmed, snap.Loop)
	assert.Equal(t, uint64(2), snap.Counts.Cycles)
}

func TestMalformedFrameSkipped(t *testing.T) {
	h := newHarness(t)
	h.start()
	require.NoError(t, h.state.SetEnabled(true))
	require.Eventually(t, func() bool { return h.src.FlushCount() == 1 }, time.Second, time.Millisecond)

	h.src.Push("3;garbage\x00")
	h.src.Push(cold)
	writes := h.waitWrites(1)
	assert.Equal(t, "1;1;1;1\x00", writes[0])

	time.Sleep(30 * time.Millisecond)
	assert.Len(t, h.sink.Writes(), 1, "malformed frame must not produce a command")
	snap := h.tracker.Snapshot()
	assert.Equal(t, uint64(1), snap.Counts.Malformed)
	assert.Equal(t, uint64(2), snap.Counts.Frames)
}

func TestDisableReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	h.start()
	require.NoError(t, h.state.SetEnabled(true))
	require.Eventually(t, func() bool { return h.src.FlushCount() == 1 }, time.Second, time.Millisecond)

	h.src.Push(cold)
	h.waitWrites(1)

	require.NoError(t, h.state.SetEnabled(false))
	require.Eventually(t, func() bool { return h.tracker.Snapshot().Loop == status.LoopIdle },
		time.Second, time.Millisecond)

	// Input arriving while idle is not acted on.
	h.src.Push(hot)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, []string{"1;1;1;1\x00", "0;0;0;0\x00"}, h.sink.Writes())

	// Re-arming flushes it and reuses the open input.
	require.NoError(t, h.state.SetEnabled(true))
	require.Eventually(t, func() bool { return h.src.FlushCount() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, h.openCount())
}

func TestFrequencyChangeTakesEffect(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.state.SetFrequency(1))
	h.start()
	require.NoError(t, h.state.SetEnabled(true))
	require.Eventually(t, func() bool { return h.src.FlushCount() == 1 }, time.Second, time.Millisecond)

	h.src.Push(cold)
	h.waitWrites(1)

	// At 1 Hz the second frame would wait a second; raising the frequency
	// wakes the pacer with the shorter interval.
	h.src.Push(hot)
	require.NoError(t, h.state.SetFrequency(500))
	writes := h.waitWrites(2)
	assert.Equal(t, "0;0;0;0\x00", writes[1])
}

func TestInputClosedIsFatal(t *testing.T) {
	h := newHarness(t)
	h.start()
	require.NoError(t, h.state.SetEnabled(true))
	require.Eventually(t, func() bool { return h.src.FlushCount() == 1 }, time.Second, time.Millisecond)

	h.src.CloseWriter()
	select {
	case err := <-h.done:
		h.done <- err
		require.ErrorIs(t, err, frame.ErrTransportClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop on end of input")
	}
	assert.Equal(t, status.LoopStopped, h.tracker.Snapshot().Loop)
}

func TestOutputFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.start()
	require.NoError(t, h.state.SetEnabled(true))
	require.Eventually(t, func() bool { return h.src.FlushCount() == 1 }, time.Second, time.Millisecond)

	h.sink.SetWriteError(errors.New("broken pipe"))
	h.src.Push(cold)
	select {
	case err := <-h.done:
		h.done <- err
		require.ErrorIs(t, err, state.ErrOutput)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop on write failure")
	}
}

func TestOpenFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("no such pipe")
	h.loop.open = func(context.Context) (transport.Source, error) { return nil, boom }
	h.start()

	require.NoError(t, h.state.SetEnabled(true))
	select {
	case err := <-h.done:
		h.done <- err
		require.ErrorIs(t, err, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop on open failure")
	}
}

// blockingOpen stands in for a FIFO whose writer never appears.
func (h *harness) blockingOpen(ctx context.Context) (transport.Source, error) {
	h.mu.Lock()
	h.opens++
	h.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestDisableAbandonsPendingOpen(t *testing.T) {
	h := newHarness(t)
	h.loop.open = h.blockingOpen
	h.start()

	require.NoError(t, h.state.SetEnabled(true))
	require.Eventually(t, func() bool { return h.openCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, h.state.SetEnabled(false))
	assert.Equal(t, []string{"0;0;0;0\x00"}, h.sink.Writes())

	// Back in idle, the next arm tries the open again.
	require.NoError(t, h.state.SetEnabled(true))
	require.Eventually(t, func() bool { return h.openCount() == 2 }, time.Second, time.Millisecond)
	assert.NotEqual(t, status.LoopArmed, h.tracker.Snapshot().Loop)
}

func TestCancelDuringPendingOpen(t *testing.T) {
	h := newHarness(t)
	h.loop.open = h.blockingOpen
	h.start()

	require.NoError(t, h.state.SetEnabled(true))
	require.Eventually(t, func() bool { return h.openCount() == 1 }, time.Second, time.Millisecond)
	require.ErrorIs(t, h.stop(), context.Canceled)
}

func TestCancelWhileIdle(t *testing.T) {
	h := newHarness(t)
	h.start()
	require.ErrorIs(t, h.stop(), context.Canceled)
}
