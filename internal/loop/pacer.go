package loop

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// pacer spaces control cycles at a fixed rate. A cycle that starts late is
// run immediately and the schedule restarts from it, so there are no
// catch-up bursts.
type pacer struct {
	clk     clock.Clock
	last    time.Time
	started bool
}

// reset makes the next wait fire immediately.
func (p *pacer) reset() {
	p.started = false
}

// wait blocks until interval has passed since the previous tick. It returns
// false without ticking when changed is closed first, so the caller can
// re-read the enabled flag and interval.
func (p *pacer) wait(ctx context.Context, interval time.Duration, changed <-chan struct{}) (bool, error) {
	now := p.clk.Now()
	if !p.started {
		p.started = true
		p.last = now
		return true, nil
	}

	due := p.last.Add(interval)
	if !now.Before(due) {
		p.last = now
		return true, nil
	}

	t := p.clk.Timer(due.Sub(now))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-changed:
		return false, nil
	case <-t.C:
		p.last = p.clk.Now()
		return true, nil
	}
}
