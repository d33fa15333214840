// Package shutdown owns the exit path: whatever ends the process, one safe
// command is written to the heaters and a SHUTDOWN event is published.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"syscall"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/sweeney/heater-control/internal/frame"
	"github.com/sweeney/heater-control/internal/mqtt"
	"github.com/sweeney/heater-control/internal/state"
	"github.com/sweeney/heater-control/internal/status"
)

var (
	// ErrInterrupted matches every InterruptError.
	ErrInterrupted = errors.New("interrupt requested")

	// ErrPanic wraps a recovered panic.
	ErrPanic = errors.New("unhandled fault")
)

// InterruptError reports the signal that ended the process.
type InterruptError struct {
	Signal os.Signal
}

func (e InterruptError) Error() string {
	return "interrupted by " + SignalName(e.Signal)
}

func (e InterruptError) Is(target error) bool { return target == ErrInterrupted }

// SignalName returns the conventional name for the signals we handle.
func SignalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	case nil:
		return "UNKNOWN"
	}
	return s.String()
}

// Reason is the short label published with the SHUTDOWN event.
func Reason(cause error) string {
	var ie InterruptError
	switch {
	case cause == nil, errors.Is(cause, context.Canceled):
		return "requested"
	case errors.As(cause, &ie):
		return SignalName(ie.Signal)
	case errors.Is(cause, frame.ErrTransportClosed):
		return "input closed"
	case errors.Is(cause, state.ErrOutput):
		return "output failed"
	case errors.Is(cause, ErrPanic):
		return "fault"
	}
	return cause.Error()
}

// Options configure a Handler. Tracker, Conn, Clock and Logger are optional.
type Options struct {
	State     *state.Shared
	Publisher mqtt.Publisher
	Conn      mqtt.ConnectionStatus
	Tracker   *status.Tracker
	Clock     clock.Clock
	Logger    *zap.SugaredLogger
}

// Handler runs the shutdown sequence at most once.
type Handler struct {
	opts Options

	once sync.Once
	err  error
}

// New creates a Handler.
func New(opts Options) *Handler {
	if opts.Publisher == nil {
		opts.Publisher = mqtt.Nop{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Handler{opts: opts}
}

// Shutdown disables control, writes the safe command and publishes a
// SHUTDOWN event. Only the first call does anything; later calls return the
// first result. A failed write is logged and returned but never panics,
// since the output may already be gone.
func (h *Handler) Shutdown(cause error) error {
	h.once.Do(func() {
		h.err = h.run(cause)
	})
	return h.err
}

func (h *Handler) run(cause error) error {
	log := h.opts.Logger
	reason := Reason(cause)
	if cause != nil && !errors.Is(cause, context.Canceled) && !errors.Is(cause, ErrInterrupted) {
		log.Errorw("shutting down on fault", "error", cause)
	} else {
		log.Infow("shutting down", "reason", reason)
	}

	err := h.opts.State.SafeState()
	if err != nil {
		log.Errorw("safe command failed", "error", err)
	} else {
		log.Infow("safe command written")
	}

	event := mqtt.SystemEvent{
		Timestamp: h.opts.Clock.Now(),
		Event:     mqtt.EventShutdown,
		Reason:    reason,
		Retained:  true,
	}
	if t := h.opts.Tracker; t != nil {
		if h.opts.Conn != nil {
			t.SetMQTTConnected(h.opts.Conn.IsConnected())
		}
		event.RawPayload = status.FormatStatusEvent(t.Snapshot(), h.opts.State.Snapshot(), mqtt.EventShutdown, reason)
	}
	if perr := h.opts.Publisher.PublishSystem(event); perr != nil {
		log.Warnw("publish shutdown event", "error", perr)
	}
	return err
}

// Guard runs fn and turns a panic into an error wrapping ErrPanic, so the
// caller still reaches Shutdown.
func (h *Handler) Guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.opts.Logger.Errorw("recovered panic", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn()
}

// WatchSignals cancels ctx with an InterruptError when a signal arrives on
// sig. It returns when either happens.
func WatchSignals(ctx context.Context, sig <-chan os.Signal, cancel context.CancelCauseFunc) {
	select {
	case s := <-sig:
		cancel(InterruptError{Signal: s})
	case <-ctx.Done():
	}
}
