// Package mqtt publishes control telemetry and lifecycle events, with an
// abstraction for testing. Publishing is best effort: failures are reported
// to the caller but must never stop the control loop.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/heater-control/internal/frame"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "heater/control"

// System event names.
const (
	EventStartup   = "STARTUP"
	EventShutdown  = "SHUTDOWN"
	EventHeartbeat = "HEARTBEAT"
	EventEnabled   = "ENABLED"
	EventDisabled  = "DISABLED"
	EventConfig    = "CONFIG"
	EventOffline   = "OFFLINE"
)

// Topics are the topics a publisher writes to.
type Topics struct {
	Cycle  string
	System string
}

// TopicsFor derives the topic set from a prefix.
func TopicsFor(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{
		Cycle:  prefix + "/cycle",
		System: prefix + "/system",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishCycle sends the outcome of one control cycle. It must not block
	// the caller for long; it runs on the control loop.
	PublishCycle(event CycleEvent) error

	// PublishSystem sends a lifecycle or configuration event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// CycleEvent describes one applied control cycle.
type CycleEvent struct {
	Timestamp    time.Time
	Counter      string
	Mode         string
	Temperatures [frame.Channels]float64
	Command      frame.ActuationCommand
}

// SystemEvent represents a system event (startup, shutdown, heartbeat, config change).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "CONFIG"
	Reason     string // free text: signal name, fault, changed field
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// CyclePayload is the JSON envelope for cycle events.
type CyclePayload struct {
	Cycle CycleInner `json:"cycle"`
}

// CycleInner contains the cycle details.
type CycleInner struct {
	Timestamp    string    `json:"timestamp"`
	Counter      string    `json:"counter"`
	Mode         string    `json:"mode"`
	Temperatures []float64 `json:"temperatures"`
	Command      []int     `json:"command"`
}

// FormatCyclePayload creates the JSON payload for a cycle event.
func FormatCyclePayload(event CycleEvent) ([]byte, error) {
	return json.Marshal(CyclePayload{
		Cycle: CycleInner{
			Timestamp:    event.Timestamp.UTC().Format(time.RFC3339Nano),
			Counter:      event.Counter,
			Mode:         event.Mode,
			Temperatures: event.Temperatures[:],
			Command:      event.Command[:],
		},
	})
}

// SystemPayload is the JSON envelope for system events that don't carry a
// full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}

// Nop discards everything. Used when no broker is configured.
type Nop struct{}

func (Nop) PublishCycle(CycleEvent) error   { return nil }
func (Nop) PublishSystem(SystemEvent) error { return nil }
func (Nop) Close() error                    { return nil }
func (Nop) IsConnected() bool               { return false }
