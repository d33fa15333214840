package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// outboxLimit bounds the system events held while the broker is unreachable.
const outboxLimit = 64

// Options configure a RealPublisher.
type Options struct {
	Broker      string
	ClientID    string
	TopicPrefix string
}

// RealPublisher publishes to an actual MQTT broker. System events published
// while disconnected are queued and replayed on reconnect; cycle events are
// dropped while offline.
type RealPublisher struct {
	client paho.Client
	topics Topics
	logger *zap.SugaredLogger

	mu     sync.Mutex
	outbox *outbox
}

// NewRealPublisher creates a publisher for the given broker. An unreachable
// broker is not fatal: the client keeps retrying in the background.
func NewRealPublisher(opts Options, logger *zap.SugaredLogger) (*RealPublisher, error) {
	clientID := opts.ClientID
	if clientID == "" {
		clientID = "heater-control"
	}
	p := &RealPublisher{
		topics: TopicsFor(opts.TopicPrefix),
		logger: logger,
		outbox: newOutbox(outboxLimit),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: EventOffline, Reason: "connection lost"})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(p.topics.System, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.replay() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warnf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(co)
	token := p.client.Connect()
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("connect to broker: %w", token.Error())
	}
	return p, nil
}

// replay publishes everything queued while disconnected.
func (p *RealPublisher) replay() {
	p.mu.Lock()
	msgs, dropped := p.outbox.drain()
	p.mu.Unlock()

	if dropped > 0 {
		p.logger.Warnf("mqtt: %d queued events dropped while offline", dropped)
	}
	for _, m := range msgs {
		token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
		if !token.WaitTimeout(5 * time.Second) {
			p.logger.Warnf("mqtt: replay to %s timed out", m.topic)
			continue
		}
		if err := token.Error(); err != nil {
			p.logger.Warnf("mqtt: replay to %s: %v", m.topic, err)
		}
	}
	if len(msgs) > 0 {
		p.logger.Infof("mqtt: replayed %d queued events", len(msgs))
	}
}

// PublishCycle sends a cycle event at QoS 0 without waiting for the broker.
func (p *RealPublisher) PublishCycle(event CycleEvent) error {
	if !p.client.IsConnectionOpen() {
		return nil
	}
	payload, err := FormatCyclePayload(event)
	if err != nil {
		return fmt.Errorf("format cycle payload: %w", err)
	}
	p.client.Publish(p.topics.Cycle, 0, false, payload)
	return nil
}

// PublishSystem sends a system event at QoS 1, queueing it while offline.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		if p.outbox.add(queuedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained}) && p.outbox.dropped == 1 {
			p.logger.Warnf("mqtt: outbox full (%d events), dropping oldest", outboxLimit)
		}
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(p.topics.System, 1, event.Retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish system timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
