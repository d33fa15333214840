//go:build linux

package internal

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sweeney/heater-control/internal/command"
	"github.com/sweeney/heater-control/internal/control"
	"github.com/sweeney/heater-control/internal/gpio"
	"github.com/sweeney/heater-control/internal/loop"
	"github.com/sweeney/heater-control/internal/mqtt"
	"github.com/sweeney/heater-control/internal/shutdown"
	"github.com/sweeney/heater-control/internal/state"
	"github.com/sweeney/heater-control/internal/status"
	"github.com/sweeney/heater-control/internal/transport"
)

const sampleFrame = "7;-10.00000-25;-10.00000-25;-10.00000-25;-10.00000-25\x00"

type pipes struct {
	in, out string
	inW     *os.File
	outR    *os.File
	reader  *bufio.Reader
}

func makePipes(t *testing.T) *pipes {
	t.Helper()
	dir := t.TempDir()
	p := &pipes{
		in:  filepath.Join(dir, "temp_info_pipe"),
		out: filepath.Join(dir, "response_pipe"),
	}
	for _, path := range []string{p.in, p.out} {
		if err := syscall.Mkfifo(path, 0o600); err != nil {
			t.Skipf("mkfifo not available: %v", err)
		}
	}

	// The companion's ends, held open with O_RDWR so no open call blocks.
	var err error
	p.inW, err = os.OpenFile(p.in, os.O_RDWR, 0)
	require.NoError(t, err)
	p.outR, err = os.OpenFile(p.out, os.O_RDWR, 0)
	require.NoError(t, err)
	p.reader = bufio.NewReader(p.outR)
	t.Cleanup(func() {
		p.inW.Close()
		p.outR.Close()
	})
	return p
}

func (p *pipes) send(t *testing.T, s string) {
	t.Helper()
	_, err := p.inW.WriteString(s)
	require.NoError(t, err)
}

// next reads one NUL-terminated command from the output pipe.
func (p *pipes) next(t *testing.T) string {
	t.Helper()
	require.NoError(t, p.outR.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := p.reader.ReadString(0)
	require.NoError(t, err, "waiting for an actuation command")
	return line
}

func (p *pipes) quiet(t *testing.T, d time.Duration) {
	t.Helper()
	require.NoError(t, p.outR.SetReadDeadline(time.Now().Add(d)))
	line, err := p.reader.ReadString(0)
	assert.Error(t, err, "unexpected command %q", line)
}

// TestIntegrationPipeline drives the daemon's components over real FIFOs:
// arm, control one PID cycle, skip a malformed frame, disarm and shut down.
func TestIntegrationPipeline(t *testing.T) {
	p := makePipes(t)
	logger := zaptest.NewLogger(t).Sugar()

	link, err := transport.OpenLink(
		transport.Endpoint{Kind: transport.KindPipe, Path: p.in},
		transport.Endpoint{Kind: transport.KindPipe, Path: p.out},
		10*time.Millisecond,
	)
	require.NoError(t, err)
	defer link.Close()

	limits := state.DefaultLimits()
	limits.MaxFrequency = 1000
	lock := gpio.NewFakeInterlock()
	shared, err := state.New(state.Options{
		Limits:    limits,
		Mode:      control.ModePID,
		Gains:     control.Gains{Kp: 2},
		Frequency: 100,
	}, link.Sink(), lock)
	require.NoError(t, err)

	clk := clock.New()
	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(clk, status.Config{Input: p.in, Output: p.out})
	cmd := command.New(shared, pub, clk, logger)
	lp := loop.New(loop.Deps{
		State:     shared,
		Open:      link.OpenSource,
		Tracker:   tracker,
		Publisher: pub,
		Clock:     clk,
		Logger:    logger,
	})
	sd := shutdown.New(shutdown.Options{State: shared, Publisher: pub, Tracker: tracker, Clock: clk, Logger: logger})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sd.Guard(func() error { return lp.Run(ctx) }) }()

	// Backlog written before arming is discarded.
	p.send(t, "1;30.0-0;30.0-0;30.0-0;30.0-0\x00")
	require.NoError(t, cmd.Enable())
	assert.True(t, lock.On())
	require.Eventually(t, func() bool { return tracker.Snapshot().Loop == status.LoopArmed },
		time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	// error 10, Kp 2: output 20 on every channel.
	p.send(t, sampleFrame)
	assert.Equal(t, "20;20;20;20\x00", p.next(t))

	p.send(t, "8;-10.0-25;oops\x00")
	p.quiet(t, 100*time.Millisecond)
	assert.Equal(t, uint64(1), tracker.Snapshot().Counts.Malformed)

	require.NoError(t, cmd.Disable())
	assert.Equal(t, "0;0;0;0\x00", p.next(t))
	assert.False(t, lock.On())

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}

	require.NoError(t, sd.Shutdown(shutdown.InterruptError{Signal: syscall.SIGINT}))
	assert.Equal(t, "0;0;0;0\x00", p.next(t))

	var names []string
	for _, e := range pub.SystemEvents() {
		names = append(names, e.Event)
	}
	assert.Equal(t, []string{mqtt.EventEnabled, mqtt.EventDisabled, mqtt.EventShutdown}, names)

	cycles := pub.Cycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, "7", cycles[0].Counter)
	assert.Equal(t, [4]float64{-10, -10, -10, -10}, cycles[0].Temperatures)
}

// TestIntegrationCompanionExit checks that the input closing ends the loop
// with a transport error and shutdown still reaches the heaters.
func TestIntegrationCompanionExit(t *testing.T) {
	p := makePipes(t)
	logger := zaptest.NewLogger(t).Sugar()

	link, err := transport.OpenLink(
		transport.Endpoint{Kind: transport.KindPipe, Path: p.in},
		transport.Endpoint{Kind: transport.KindPipe, Path: p.out},
		10*time.Millisecond,
	)
	require.NoError(t, err)
	defer link.Close()

	shared, err := state.New(state.Options{
		Limits:    state.DefaultLimits(),
		Mode:      control.ModeBangBang,
		Frequency: 5,
	}, link.Sink(), nil)
	require.NoError(t, err)

	tracker := status.NewTracker(clock.New(), status.Config{})
	lp := loop.New(loop.Deps{State: shared, Open: link.OpenSource, Tracker: tracker, Logger: logger})
	sd := shutdown.New(shutdown.Options{State: shared, Logger: logger})

	done := make(chan error, 1)
	go func() { done <- lp.Run(context.Background()) }()

	require.NoError(t, shared.SetEnabled(true))
	require.Eventually(t, func() bool { return tracker.Snapshot().Loop == status.LoopArmed },
		time.Second, time.Millisecond)

	// The companion goes away: the loop's end is now the only one open.
	p.inW.Close()

	var loopErr error
	select {
	case loopErr = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not notice the closed input")
	}
	require.Error(t, loopErr)
	assert.Equal(t, "input closed", shutdown.Reason(loopErr))

	require.NoError(t, sd.Shutdown(loopErr))
	assert.Equal(t, "0;0;0;0\x00", p.next(t))
}
