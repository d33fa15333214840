// Package loop runs the sampling state machine: idle while control is
// disabled, and while armed one paced cycle per interval that reads a sensor
// frame, runs the controllers and writes the actuation command.
package loop

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/sweeney/heater-control/internal/frame"
	"github.com/sweeney/heater-control/internal/mqtt"
	"github.com/sweeney/heater-control/internal/state"
	"github.com/sweeney/heater-control/internal/status"
	"github.com/sweeney/heater-control/internal/transport"
)

// Opener opens the input stream. It is called on the first arm and the
// stream is then held until Run returns. It must return once ctx is done.
type Opener func(ctx context.Context) (transport.Source, error)

// Deps are the loop's collaborators. Publisher, Clock and Logger are
// optional.
type Deps struct {
	State     *state.Shared
	Open      Opener
	Tracker   *status.Tracker
	Publisher mqtt.Publisher
	Clock     clock.Clock
	Logger    *zap.SugaredLogger
}

// Loop is the sample loop. Run it on its own goroutine.
type Loop struct {
	state     *state.Shared
	open      Opener
	tracker   *status.Tracker
	publisher mqtt.Publisher
	clk       clock.Clock
	logger    *zap.SugaredLogger

	src    transport.Source
	reader *frame.Reader
	pace   pacer
}

// New creates a Loop.
func New(d Deps) *Loop {
	if d.Publisher == nil {
		d.Publisher = mqtt.Nop{}
	}
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	return &Loop{
		state:     d.State,
		open:      d.Open,
		tracker:   d.Tracker,
		publisher: d.Publisher,
		clk:       d.Clock,
		logger:    d.Logger,
		pace:      pacer{clk: d.Clock},
	}
}

// Run drives the state machine until ctx is cancelled, the input stream
// ends, or an actuation write fails. It returns ctx.Err() on cancellation;
// other errors wrap frame.ErrTransportClosed or state.ErrOutput and are
// fatal to the process. The input stream is left open for its owner to close.
func (l *Loop) Run(ctx context.Context) error {
	defer l.tracker.SetLoopState(status.LoopStopped)

	armed := false
	var armedEpoch uint64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		enabled, epoch, interval, changed := l.state.Armed()
		if !enabled {
			if armed {
				armed = false
				l.tracker.SetLoopState(status.LoopIdle)
				l.logger.Infow("loop idle")
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-changed:
			}
			continue
		}

		if !armed || epoch != armedEpoch {
			if err := l.arm(ctx, changed); err != nil {
				if errors.Is(err, errStateChanged) {
					continue
				}
				return err
			}
			armed = true
			armedEpoch = epoch
			l.tracker.SetLoopState(status.LoopArmed)
			l.logger.Infow("loop armed", "epoch", epoch, "interval", interval)
		}

		fire, err := l.pace.wait(ctx, interval, changed)
		if err != nil {
			return err
		}
		if !fire {
			continue
		}
		if err := l.cycle(ctx, epoch); err != nil {
			return err
		}
	}
}

// arm opens the input on first use and discards anything that queued up
// while control was off.
func (l *Loop) arm(ctx context.Context, changed <-chan struct{}) error {
	if l.src == nil {
		src, err := l.openInput(ctx, changed)
		if err != nil {
			return err
		}
		l.src = src
		l.reader = frame.NewReader(src)
	}
	if err := l.src.Flush(); err != nil {
		return fmt.Errorf("flush input: %w", err)
	}
	l.reader.Reset()
	l.pace.reset()
	return nil
}

// errStateChanged reports an input open abandoned because the shared state
// moved on before the companion showed up.
var errStateChanged = errors.New("state changed while opening input")

// openInput waits for the input to open, giving up when ctx ends or the
// shared state changes.
func (l *Loop) openInput(ctx context.Context, changed <-chan struct{}) (transport.Source, error) {
	octx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-changed:
			cancel()
		case <-octx.Done():
		}
	}()

	src, err := l.open(octx)
	switch {
	case err == nil:
		return src, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case octx.Err() != nil:
		l.logger.Debugw("input open abandoned", "error", err)
		return nil, errStateChanged
	}
	return nil, fmt.Errorf("open input: %w", err)
}

// cycle reads one line and, when it parses, applies it. It gives up without
// writing when epoch stops being current.
func (l *Loop) cycle(ctx context.Context, epoch uint64) error {
	for {
		line, err := l.reader.Next()
		switch {
		case err == nil:
		case errors.Is(err, transport.ErrNoData):
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !l.state.IsCurrent(epoch) {
				return nil
			}
			continue
		case errors.Is(err, frame.ErrMalformedFrame):
			l.malformed(err)
			return nil
		case errors.Is(err, frame.ErrTransportClosed):
			return err
		default:
			return fmt.Errorf("read input: %w", err)
		}

		f, err := frame.ParseLine(string(line))
		if err != nil {
			l.malformed(err)
			return nil
		}
		l.tracker.RecordFrame(f)

		cmd, err := l.state.Apply(epoch, f)
		if errors.Is(err, state.ErrNotArmed) {
			return nil
		}
		if err != nil {
			return err
		}
		l.tracker.RecordCommand(cmd)
		l.logger.Debugw("cycle", "counter", f.Counter, "command", cmd)

		perr := l.publisher.PublishCycle(mqtt.CycleEvent{
			Timestamp:    l.clk.Now(),
			Counter:      f.Counter,
			Mode:         string(l.state.Snapshot().Mode),
			Temperatures: f.Temperatures(),
			Command:      cmd,
		})
		if perr != nil {
			l.logger.Debugw("publish cycle", "error", perr)
		}
		return nil
	}
}

func (l *Loop) malformed(err error) {
	l.tracker.RecordMalformed()
	l.logger.Warnw("skipping malformed frame", "error", err)
}
