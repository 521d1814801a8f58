// Package rosnet is the runtime graph the bridge elements attach to: an
// execution context owning callback dispatch, named nodes, and typed
// publish/subscribe endpoints with QoS. The graph transport is pluggable;
// Bus is the in-process implementation, and grpcnet/mqttnet provide
// networked ones.
package rosnet

import (
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/clydemcqueen/ros-gst-bridge/internal/rosmsg"
)

// Handler receives messages delivered to a subscription.
type Handler func(msg rosmsg.Message)

// MessageWriter sends messages on a single topic.
type MessageWriter interface {
	WriteMessage(msg rosmsg.Message) error
	Close() error
}

// Graph is the transport the runtime attaches nodes and endpoints to.
type Graph interface {
	// RegisterNode claims a fully-qualified node name, failing if it is
	// already in use on this graph.
	RegisterNode(fqn string) error
	UnregisterNode(fqn string)

	OpenWriter(topic string, qos QoS) (MessageWriter, error)
	OpenReader(topic string, qos QoS, h Handler) (io.Closer, error)
}

// Bus is the in-process Graph: topics fan out to subscribers through
// per-subscription buffered queues drained by a delivery goroutine.
type Bus struct {
	mu     sync.Mutex
	nodes  map[string]struct{}
	topics map[string]*busTopic
	closed bool
}

type busTopic struct {
	readers map[uuid.UUID]*busReader
}

func NewBus() *Bus {
	return &Bus{
		nodes:  make(map[string]struct{}),
		topics: make(map[string]*busTopic),
	}
}

func (b *Bus) RegisterNode(fqn string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("rosnet: bus is closed")
	}
	if _, ok := b.nodes[fqn]; ok {
		return errors.Errorf("rosnet: node name %q already in use", fqn)
	}
	b.nodes[fqn] = struct{}{}
	return nil
}

func (b *Bus) UnregisterNode(fqn string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.nodes, fqn)
}

func (b *Bus) topic(name string) *busTopic {
	t, ok := b.topics[name]
	if !ok {
		t = &busTopic{readers: make(map[uuid.UUID]*busReader)}
		b.topics[name] = t
	}
	return t
}

func (b *Bus) OpenWriter(topic string, qos QoS) (MessageWriter, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("rosnet: bus is closed")
	}
	return &busWriter{bus: b, topic: topic, qos: qos.Normalized()}, nil
}

func (b *Bus) OpenReader(topic string, qos QoS, h Handler) (io.Closer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("rosnet: bus is closed")
	}
	qos = qos.Normalized()
	r := &busReader{
		bus:   b,
		topic: topic,
		id:    uuid.New(),
		qos:   qos,
		queue: make(chan rosmsg.Message, qos.Depth),
		done:  make(chan struct{}),
	}
	b.topic(topic).readers[r.id] = r
	go r.deliver(h)
	return r, nil
}

// Close tears the bus down; outstanding readers are drained and closed.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, t := range b.topics {
		for id, r := range t.readers {
			r.once.Do(func() { close(r.done) })
			delete(t.readers, id)
		}
	}
	return nil
}

type busWriter struct {
	bus    *Bus
	topic  string
	qos    QoS
	closed bool
}

func (w *busWriter) WriteMessage(msg rosmsg.Message) error {
	w.bus.mu.Lock()
	if w.closed || w.bus.closed {
		w.bus.mu.Unlock()
		return errors.New("rosnet: writer is closed")
	}
	t := w.bus.topics[w.topic]
	var readers []*busReader
	if t != nil {
		for _, r := range t.readers {
			readers = append(readers, r)
		}
	}
	w.bus.mu.Unlock()

	for _, r := range readers {
		r.push(msg, w.qos)
	}
	return nil
}

func (w *busWriter) Close() error {
	w.bus.mu.Lock()
	defer w.bus.mu.Unlock()
	w.closed = true
	return nil
}

type busReader struct {
	bus   *Bus
	topic string
	id    uuid.UUID
	qos   QoS
	queue chan rosmsg.Message
	done  chan struct{}
	once  sync.Once
}

// push enqueues for delivery. With a reliable writer the send blocks until
// the subscription drains; best-effort sheds the message when the history
// queue is full.
func (r *busReader) push(msg rosmsg.Message, writerQoS QoS) {
	if writerQoS.Reliability == Reliable && r.qos.Reliability == Reliable {
		select {
		case r.queue <- msg:
		case <-r.done:
		}
		return
	}
	select {
	case r.queue <- msg:
	case <-r.done:
	default:
		// queue full, shed
	}
}

func (r *busReader) deliver(h Handler) {
	for {
		select {
		case msg := <-r.queue:
			h(msg)
		case <-r.done:
			return
		}
	}
}

func (r *busReader) Close() error {
	r.bus.mu.Lock()
	if t, ok := r.bus.topics[r.topic]; ok {
		delete(t.readers, r.id)
	}
	r.bus.mu.Unlock()
	r.once.Do(func() { close(r.done) })
	return nil
}
