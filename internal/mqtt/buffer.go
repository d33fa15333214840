package mqtt

// queuedMsg is a serialized message held for replay after reconnection.
type queuedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a bounded FIFO of messages published while disconnected. When
// full the oldest message is evicted. Not safe for concurrent use.
type outbox struct {
	msgs    []queuedMsg
	limit   int
	dropped int // evictions since the last drain
}

func newOutbox(limit int) *outbox {
	return &outbox{
		msgs:  make([]queuedMsg, 0, limit),
		limit: limit,
	}
}

// add queues msg and reports whether an older message was evicted.
func (o *outbox) add(msg queuedMsg) (evicted bool) {
	if len(o.msgs) == o.limit {
		copy(o.msgs, o.msgs[1:])
		o.msgs[len(o.msgs)-1] = msg
		o.dropped++
		return true
	}
	o.msgs = append(o.msgs, msg)
	return false
}

// drain returns queued messages oldest first, the number evicted since the
// previous drain, and empties the outbox.
func (o *outbox) drain() ([]queuedMsg, int) {
	if len(o.msgs) == 0 {
		d := o.dropped
		o.dropped = 0
		return nil, d
	}
	out := make([]queuedMsg, len(o.msgs))
	copy(out, o.msgs)
	o.msgs = o.msgs[:0]
	d := o.dropped
	o.dropped = 0
	return out, d
}

func (o *outbox) len() int {
	return len(o.msgs)
}
