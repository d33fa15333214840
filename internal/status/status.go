// Package status provides a thread-safe tracker of control loop activity for
// the heater-control daemon. It is read by HTTP handlers and the heartbeat.
package status

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sweeney/heater-control/internal/frame"
)

// LoopState is the sample loop's current phase.
type LoopState string

const (
	LoopIdle    LoopState = "idle"
	LoopArmed   LoopState = "armed"
	LoopStopped LoopState = "stopped"
)

// Config contains daemon configuration for display.
type Config struct {
	Input       string
	Output      string
	PollMs      int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
}

// Counts are running totals since startup.
type Counts struct {
	Frames    uint64 // complete lines received while armed
	Malformed uint64 // lines that failed to parse
	Cycles    uint64 // commands written
}

// LastFrame is the most recent well-formed frame.
type LastFrame struct {
	Counter      string
	Temperatures [frame.Channels]float64
	Received     time.Time
}

// Snapshot is a point-in-time view of loop activity. It is a value type and
// safe to use after the lock is released.
type Snapshot struct {
	Loop          LoopState
	Counts        Counts
	LastFrame     *LastFrame
	LastCommand   *frame.ActuationCommand
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable loop statistics behind an RWMutex.
type Tracker struct {
	clk clock.Clock

	mu          sync.RWMutex
	snap        Snapshot
	lastFrame   LastFrame
	haveFrame   bool
	lastCommand frame.ActuationCommand
	haveCommand bool
}

// NewTracker creates a Tracker. The start time is taken from clk.
func NewTracker(clk clock.Clock, cfg Config) *Tracker {
	return &Tracker{
		clk: clk,
		snap: Snapshot{
			Loop:      LoopIdle,
			StartTime: clk.Now(),
			Config:    cfg,
		},
	}
}

// SetLoopState records a loop phase transition.
func (t *Tracker) SetLoopState(s LoopState) {
	t.mu.Lock()
	t.snap.Loop = s
	t.mu.Unlock()
}

// RecordFrame counts a well-formed frame and remembers its readings.
func (t *Tracker) RecordFrame(f frame.SensorFrame) {
	now := t.clk.Now()
	t.mu.Lock()
	t.snap.Counts.Frames++
	t.lastFrame = LastFrame{Counter: f.Counter, Temperatures: f.Temperatures(), Received: now}
	t.haveFrame = true
	t.mu.Unlock()
}

// RecordMalformed counts a line that could not be parsed.
func (t *Tracker) RecordMalformed() {
	t.mu.Lock()
	t.snap.Counts.Frames++
	t.snap.Counts.Malformed++
	t.mu.Unlock()
}

// RecordCommand counts a written actuation command.
func (t *Tracker) RecordCommand(cmd frame.ActuationCommand) {
	t.mu.Lock()
	t.snap.Counts.Cycles++
	t.lastCommand = cmd
	t.haveCommand = true
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the tracked state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if t.haveFrame {
		lf := t.lastFrame
		s.LastFrame = &lf
	}
	if t.haveCommand {
		lc := t.lastCommand
		s.LastCommand = &lc
	}
	t.mu.RUnlock()
	s.Now = t.clk.Now()
	return s
}
