package rosnet

import (
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/clydemcqueen/ros-gst-bridge/internal/rosmsg"
)

// Node is a named participant on the graph. Publishers and subscriptions are
// created on a node and are destroyed, endpoints first, when it closes.
type Node struct {
	ctx       *Context
	name      string
	namespace string
	fqn       string
	logger    *zap.Logger

	mu     sync.Mutex
	pubs   []*Publisher
	subs   []*Subscription
	closed bool
}

func (n *Node) Name() string      { return n.name }
func (n *Node) Namespace() string { return n.namespace }

// FullyQualifiedName is the namespace-qualified node name, e.g.
// "/cameras/gst_image_sink_node".
func (n *Node) FullyQualifiedName() string { return n.fqn }

func (n *Node) Logger() *zap.Logger { return n.logger }

// CreatePublisher opens a writer for the topic, resolved against the node's
// namespace.
func (n *Node) CreatePublisher(topic string, qos QoS) (*Publisher, error) {
	resolved, err := n.resolveTopic(topic)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, errors.Errorf("rosnet: node %q is closed", n.fqn)
	}
	w, err := n.ctx.graph.OpenWriter(resolved, qos)
	if err != nil {
		return nil, errors.Wrapf(err, "rosnet: creating publisher on %q", resolved)
	}
	p := &Publisher{node: n, topic: resolved, qos: qos, w: w}
	n.pubs = append(n.pubs, p)
	return p, nil
}

// CreateSubscription opens a reader for the topic. The handler runs on the
// context's dispatch goroutine, never on the transport's.
func (n *Node) CreateSubscription(topic string, qos QoS, h Handler) (*Subscription, error) {
	resolved, err := n.resolveTopic(topic)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, errors.Errorf("rosnet: node %q is closed", n.fqn)
	}
	deliver := func(msg rosmsg.Message) {
		n.ctx.dispatch(func() { h(msg) })
	}
	r, err := n.ctx.graph.OpenReader(resolved, qos, deliver)
	if err != nil {
		return nil, errors.Wrapf(err, "rosnet: creating subscription on %q", resolved)
	}
	s := &Subscription{node: n, topic: resolved, qos: qos, r: r}
	n.subs = append(n.subs, s)
	return s, nil
}

// Close destroys the node's endpoints, then removes the node from the graph.
// Endpoint close errors do not stop the teardown.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	pubs, subs := n.pubs, n.subs
	n.pubs, n.subs = nil, nil
	n.mu.Unlock()

	var firstErr error
	for _, s := range subs {
		if err := s.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, p := range pubs {
		if err := p.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	n.ctx.removeNode(n)
	return firstErr
}

func (n *Node) resolveTopic(topic string) (string, error) {
	if topic == "" {
		return "", errors.New("rosnet: topic must not be empty")
	}
	if strings.HasPrefix(topic, "/") {
		return topic, nil
	}
	ns := strings.Trim(n.namespace, "/")
	if ns == "" {
		return "/" + topic, nil
	}
	return "/" + ns + "/" + topic, nil
}

func qualifyNode(namespace, name string) string {
	ns := strings.Trim(namespace, "/")
	if ns == "" {
		return "/" + name
	}
	return "/" + ns + "/" + name
}

// Publisher sends typed messages on a single topic.
type Publisher struct {
	node  *Node
	topic string
	qos   QoS

	mu     sync.Mutex
	w      MessageWriter
	closed bool
}

func (p *Publisher) Topic() string { return p.topic }

func (p *Publisher) Publish(msg rosmsg.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.Errorf("rosnet: publisher on %q is closed", p.topic)
	}
	return p.w.WriteMessage(msg)
}

func (p *Publisher) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.w.Close()
}

// Subscription delivers topic messages to a handler via the context.
type Subscription struct {
	node  *Node
	topic string
	qos   QoS

	mu     sync.Mutex
	r      io.Closer
	closed bool
}

func (s *Subscription) Topic() string { return s.topic }

func (s *Subscription) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.r.Close()
}
