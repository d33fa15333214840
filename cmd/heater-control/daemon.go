package main

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/sweeney/heater-control/internal/command"
	"github.com/sweeney/heater-control/internal/console"
	"github.com/sweeney/heater-control/internal/loop"
	"github.com/sweeney/heater-control/internal/mqtt"
	"github.com/sweeney/heater-control/internal/shutdown"
	"github.com/sweeney/heater-control/internal/state"
	"github.com/sweeney/heater-control/internal/status"
)

// loopStopTimeout bounds the wait for the sample loop after shutdown.
const loopStopTimeout = 2 * time.Second

// daemon wires the running components together.
type daemon struct {
	state     *state.Shared
	cmd       command.Interface
	loop      *loop.Loop
	tracker   *status.Tracker
	publisher mqtt.Publisher
	conn      mqtt.ConnectionStatus
	shutdown  *shutdown.Handler
	clk       clock.Clock
	logger    *zap.SugaredLogger
}

// run publishes STARTUP, starts the sample loop and serves heartbeats until
// ctx is cancelled. The cancel cause decides the result: operator requests
// return nil, faults are returned. The shutdown sequence always runs.
func (d *daemon) run(ctx context.Context, cancel context.CancelCauseFunc, enable bool, heartbeat <-chan time.Time) error {
	d.publishStatus(mqtt.EventStartup, "")

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		err := d.shutdown.Guard(func() error { return d.loop.Run(ctx) })
		if err != nil && !errors.Is(err, context.Canceled) {
			cancel(err)
		}
	}()

	if enable {
		if err := d.cmd.Enable(); err != nil {
			cancel(err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			cause := context.Cause(ctx)
			d.shutdown.Shutdown(cause)

			select {
			case <-loopDone:
			case <-time.After(loopStopTimeout):
				d.logger.Warnf("sample loop did not stop within %v", loopStopTimeout)
			}
			return exitError(cause)

		case <-heartbeat:
			d.publishStatus(mqtt.EventHeartbeat, "")
		}
	}
}

// publishStatus sends a retained system event carrying the full status.
func (d *daemon) publishStatus(event, reason string) {
	d.tracker.SetMQTTConnected(d.conn.IsConnected())
	err := d.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  d.clk.Now(),
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(d.tracker.Snapshot(), d.state.Snapshot(), event, reason),
	})
	if err != nil {
		d.logger.Warnf("failed to publish %s event: %v", event, err)
		return
	}
	d.logger.Debugf("published %s event", event)
}

// exitError maps a shutdown cause to the process result.
func exitError(cause error) error {
	switch {
	case cause == nil,
		errors.Is(cause, context.Canceled),
		errors.Is(cause, shutdown.ErrInterrupted),
		errors.Is(cause, console.ErrExit):
		return nil
	}
	return cause
}
