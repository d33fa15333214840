package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/heater-control/internal/state"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Loop          string         `json:"loop"`
	Enabled       bool           `json:"enabled"`
	Mode          string         `json:"mode"`
	Frequency     float64        `json:"frequency"`
	Gains         GainsJSON      `json:"gains"`
	Setpoints     []float64      `json:"setpoints"`
	Limits        LimitsJSON     `json:"limits"`
	LastFrame     *LastFrameJSON `json:"last_frame,omitempty"`
	LastCommand   []int          `json:"last_command,omitempty"`
	Counts        CountsJSON     `json:"counts"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Config        ConfigJSON     `json:"config"`
}

// GainsJSON is the JSON representation of the PID gains.
type GainsJSON struct {
	Kp float64 `json:"kp"`
	Ki float64 `json:"ki"`
	Kd float64 `json:"kd"`
}

// LimitsJSON is the JSON representation of the validation bounds.
type LimitsJSON struct {
	MinSetpoint  float64 `json:"min_setpoint"`
	MaxSetpoint  float64 `json:"max_setpoint"`
	MinFrequency float64 `json:"min_frequency"`
	MaxFrequency float64 `json:"max_frequency"`
}

// LastFrameJSON is the most recent well-formed frame.
type LastFrameJSON struct {
	Counter      string    `json:"counter"`
	Temperatures []float64 `json:"temperatures"`
	Received     string    `json:"received"`
}

// CountsJSON is the JSON representation of loop counters.
type CountsJSON struct {
	Frames    uint64 `json:"frames"`
	Malformed uint64 `json:"malformed"`
	Cycles    uint64 `json:"cycles"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Input       string `json:"input"`
	Output      string `json:"output"`
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker,omitempty"`
	HTTPAddr    string `json:"http_addr,omitempty"`
}

func buildInner(snap Snapshot, ctl state.Snapshot) StatusInner {
	inner := StatusInner{
		Loop:      string(snap.Loop),
		Enabled:   ctl.Enabled,
		Mode:      string(ctl.Mode),
		Frequency: ctl.Frequency,
		Gains:     GainsJSON{Kp: ctl.Gains.Kp, Ki: ctl.Gains.Ki, Kd: ctl.Gains.Kd},
		Setpoints: append([]float64(nil), ctl.Setpoints[:]...),
		Limits: LimitsJSON{
			MinSetpoint:  ctl.Limits.MinSetpoint,
			MaxSetpoint:  ctl.Limits.MaxSetpoint,
			MinFrequency: ctl.Limits.MinFrequency,
			MaxFrequency: ctl.Limits.MaxFrequency,
		},
		Counts: CountsJSON{
			Frames:    snap.Counts.Frames,
			Malformed: snap.Counts.Malformed,
			Cycles:    snap.Counts.Cycles,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			Input:       snap.Config.Input,
			Output:      snap.Config.Output,
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
	if snap.LastFrame != nil {
		inner.LastFrame = &LastFrameJSON{
			Counter:      snap.LastFrame.Counter,
			Temperatures: append([]float64(nil), snap.LastFrame.Temperatures[:]...),
			Received:     snap.LastFrame.Received.UTC().Format(time.RFC3339Nano),
		}
	}
	if snap.LastCommand != nil {
		inner.LastCommand = append([]int(nil), snap.LastCommand[:]...)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot, ctl state.Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap, ctl)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, ctl state.Snapshot, event, reason string) []byte {
	inner := buildInner(snap, ctl)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
