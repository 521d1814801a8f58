package rosnet

// Reliability selects the delivery guarantee for an endpoint.
type Reliability int

const (
	BestEffort Reliability = iota
	Reliable
)

func (r Reliability) String() string {
	switch r {
	case BestEffort:
		return "best-effort"
	case Reliable:
		return "reliable"
	}
	return "unknown"
}

// QoS configures delivery guarantees for a publisher or subscription.
type QoS struct {
	Reliability Reliability
	// Depth is the history depth: how many undelivered messages a
	// subscription may hold before the policy applies.
	Depth int
}

// SensorDataQoS is the default profile for streaming media: best-effort with
// a shallow queue, so a slow consumer sheds buffers instead of stalling the
// producer.
func SensorDataQoS() QoS {
	return QoS{Reliability: BestEffort, Depth: 5}
}

// WithReliable returns a copy of the profile upgraded to reliable delivery.
func (q QoS) WithReliable() QoS {
	q.Reliability = Reliable
	return q
}

// WithDepth returns a copy of the profile with the given history depth.
func (q QoS) WithDepth(depth int) QoS {
	q.Depth = depth
	return q
}

// Normalized clamps the profile to usable values.
func (q QoS) Normalized() QoS {
	if q.Depth <= 0 {
		q.Depth = 1
	}
	return q
}
