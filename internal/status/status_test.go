package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sweeney/heater-control/internal/control"
	"github.com/sweeney/heater-control/internal/frame"
	"github.com/sweeney/heater-control/internal/state"
)

func newMockTracker(cfg Config) (*Tracker, *clock.Mock) {
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewTracker(mock, cfg), mock
}

func sampleFrame(counter string) frame.SensorFrame {
	return frame.SensorFrame{
		Counter: counter,
		Readings: [frame.Channels]frame.Reading{
			{Temperature: -10}, {Temperature: 1.5}, {Temperature: 0}, {Temperature: 22},
		},
	}
}

func TestNewTracker(t *testing.T) {
	tr, mock := newMockTracker(Config{PollMs: 50, Input: "/tmp/in"})

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(mock.Now()) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, mock.Now())
	}
	if snap.Loop != LoopIdle {
		t.Errorf("Loop: got %q, want idle", snap.Loop)
	}
	if snap.Config.Input != "/tmp/in" || snap.Config.PollMs != 50 {
		t.Errorf("Config: got %+v", snap.Config)
	}
	if snap.LastFrame != nil || snap.LastCommand != nil {
		t.Error("expected no frame or command initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestRecordFrameAndCommand(t *testing.T) {
	tr, mock := newMockTracker(Config{})

	mock.Add(3 * time.Second)
	tr.RecordFrame(sampleFrame("41"))
	tr.RecordMalformed()
	tr.RecordCommand(frame.ActuationCommand{1, 2, 3, 4})

	snap := tr.Snapshot()
	if snap.Counts != (Counts{Frames: 2, Malformed: 1, Cycles: 1}) {
		t.Errorf("Counts: got %+v", snap.Counts)
	}
	if snap.LastFrame == nil || snap.LastFrame.Counter != "41" {
		t.Fatalf("LastFrame: got %+v", snap.LastFrame)
	}
	if snap.LastFrame.Temperatures[0] != -10 {
		t.Errorf("LastFrame temperatures: got %v", snap.LastFrame.Temperatures)
	}
	if !snap.LastFrame.Received.Equal(mock.Now()) {
		t.Errorf("Received: got %v, want %v", snap.LastFrame.Received, mock.Now())
	}
	if snap.LastCommand == nil || *snap.LastCommand != (frame.ActuationCommand{1, 2, 3, 4}) {
		t.Errorf("LastCommand: got %v", snap.LastCommand)
	}
	if snap.Uptime() != 3*time.Second {
		t.Errorf("Uptime: got %v, want 3s", snap.Uptime())
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	tr, _ := newMockTracker(Config{})
	tr.RecordCommand(frame.ActuationCommand{5, 5, 5, 5})
	snap := tr.Snapshot()

	tr.RecordCommand(frame.ActuationCommand{0, 0, 0, 0})
	if *snap.LastCommand != (frame.ActuationCommand{5, 5, 5, 5}) {
		t.Errorf("earlier snapshot changed: %v", *snap.LastCommand)
	}
}

func TestLoopStateAndMQTT(t *testing.T) {
	tr, _ := newMockTracker(Config{})

	tr.SetLoopState(LoopArmed)
	tr.SetMQTTConnected(true)
	snap := tr.Snapshot()
	if snap.Loop != LoopArmed || !snap.MQTTConnected {
		t.Errorf("got loop=%q mqtt=%v", snap.Loop, snap.MQTTConnected)
	}

	tr.SetLoopState(LoopStopped)
	if tr.Snapshot().Loop != LoopStopped {
		t.Error("expected stopped")
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(clock.New(), Config{})
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.RecordFrame(sampleFrame("1"))
				tr.RecordCommand(frame.SafeCommand)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = tr.Snapshot()
			}
		}()
	}
	wg.Wait()

	if got := tr.Snapshot().Counts.Frames; got != 1000 {
		t.Errorf("Frames: got %d, want 1000", got)
	}
}

func controlSnapshot() state.Snapshot {
	return state.Snapshot{
		Enabled:   true,
		Mode:      control.ModePID,
		Frequency: 2,
		Gains:     control.Gains{Kp: 10, Ki: 1, Kd: 0.5},
		Setpoints: [frame.Channels]float64{0, 0, 5, 0},
		Limits:    state.DefaultLimits(),
	}
}

func TestFormatJSON(t *testing.T) {
	tr, mock := newMockTracker(Config{Input: "/tmp/in", Output: "/tmp/out", Broker: "tcp://b:1883"})
	tr.SetLoopState(LoopArmed)
	tr.RecordFrame(sampleFrame("9"))
	tr.RecordCommand(frame.ActuationCommand{100, -15, 0, 0})
	mock.Add(90 * time.Second)

	var got StatusJSON
	if err := json.Unmarshal(FormatJSON(tr.Snapshot(), controlSnapshot()), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := got.Status
	if s.Event != "" || s.Reason != "" {
		t.Errorf("web status should carry no event: %+v", s)
	}
	if s.Loop != "armed" || !s.Enabled || s.Mode != "pid" || s.Frequency != 2 {
		t.Errorf("control fields: %+v", s)
	}
	if s.Gains != (GainsJSON{Kp: 10, Ki: 1, Kd: 0.5}) {
		t.Errorf("gains: %+v", s.Gains)
	}
	if len(s.Setpoints) != 4 || s.Setpoints[2] != 5 {
		t.Errorf("setpoints: %v", s.Setpoints)
	}
	if s.Limits.MinSetpoint != -20 || s.Limits.MaxFrequency != 5 {
		t.Errorf("limits: %+v", s.Limits)
	}
	if s.LastFrame == nil || s.LastFrame.Counter != "9" {
		t.Errorf("last frame: %+v", s.LastFrame)
	}
	if len(s.LastCommand) != 4 || s.LastCommand[1] != -15 {
		t.Errorf("last command: %v", s.LastCommand)
	}
	if s.UptimeSeconds != 90 {
		t.Errorf("uptime: %d", s.UptimeSeconds)
	}
	if s.MQTT.Connected || s.MQTT.Broker != "tcp://b:1883" {
		t.Errorf("mqtt: %+v", s.MQTT)
	}
	if s.Config.Input != "/tmp/in" || s.Config.Output != "/tmp/out" {
		t.Errorf("config: %+v", s.Config)
	}
}

func TestFormatJSONOmitsMissingFrame(t *testing.T) {
	tr, _ := newMockTracker(Config{})
	var raw map[string]map[string]any
	if err := json.Unmarshal(FormatJSON(tr.Snapshot(), controlSnapshot()), &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["status"]["last_frame"]; ok {
		t.Error("last_frame should be omitted before any frame")
	}
	if _, ok := raw["status"]["last_command"]; ok {
		t.Error("last_command should be omitted before any command")
	}
}

func TestFormatStatusEvent(t *testing.T) {
	tr, _ := newMockTracker(Config{})
	data := FormatStatusEvent(tr.Snapshot(), controlSnapshot(), "HEARTBEAT", "")

	var got StatusJSON
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Status.Event != "HEARTBEAT" {
		t.Errorf("event: %q", got.Status.Event)
	}
	for _, b := range data {
		if b == '\n' {
			t.Fatal("MQTT payload should be compact")
		}
	}
}
