// Package mqttnet carries the rosnet graph over an MQTT broker. Topics map
// onto the broker namespace under a configurable prefix, and QoS mirrors the
// rosnet profile: best-effort publishes at MQTT QoS 0, reliable at QoS 1.
//
// MQTT has no node registry, so node-name claims are enforced per process
// only; two processes on the same broker may claim the same name.
package mqttnet

import (
	"io"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/clydemcqueen/ros-gst-bridge/internal/rosmsg"
	"github.com/clydemcqueen/ros-gst-bridge/internal/rosnet"
)

const connectTimeout = 10 * time.Second

// Graph is a rosnet.Graph backed by an MQTT broker.
type Graph struct {
	logger *zap.Logger
	client mqtt.Client
	prefix string

	mu    sync.Mutex
	nodes map[string]struct{}
}

// Connect dials an MQTT broker, e.g. "tcp://localhost:1883". All graph
// traffic lives under the given topic prefix.
func Connect(addr, prefix string, logger *zap.Logger) (*Graph, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(addr).
		SetClientID("rosnet-" + uuid.NewString()).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("broker connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); !token.WaitTimeout(connectTimeout) {
		return nil, errors.New("mqttnet: connect timed out")
	} else if token.Error() != nil {
		return nil, errors.Wrap(token.Error(), "connecting to broker")
	}
	return &Graph{
		logger: logger,
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
		nodes:  make(map[string]struct{}),
	}, nil
}

func (g *Graph) Close() error {
	g.client.Disconnect(uint(connectTimeout / time.Millisecond))
	return nil
}

// mqttTopic maps a rosnet topic onto the broker namespace.
func (g *Graph) mqttTopic(topic string) string {
	return g.prefix + "/" + strings.TrimPrefix(topic, "/")
}

func mqttQoS(qos rosnet.QoS) byte {
	if qos.Reliability == rosnet.Reliable {
		return 1
	}
	return 0
}

func (g *Graph) RegisterNode(fqn string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[fqn]; ok {
		return errors.Errorf("mqttnet: node name %q already in use", fqn)
	}
	g.nodes[fqn] = struct{}{}
	return nil
}

func (g *Graph) UnregisterNode(fqn string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.nodes, fqn)
}

func (g *Graph) OpenWriter(topic string, qos rosnet.QoS) (rosnet.MessageWriter, error) {
	return &mqttWriter{
		client: g.client,
		topic:  g.mqttTopic(topic),
		qos:    mqttQoS(qos),
	}, nil
}

func (g *Graph) OpenReader(topic string, qos rosnet.QoS, h rosnet.Handler) (io.Closer, error) {
	mt := g.mqttTopic(topic)
	token := g.client.Subscribe(mt, mqttQoS(qos), func(_ mqtt.Client, m mqtt.Message) {
		msg, err := rosmsg.Decode(m.Payload())
		if err != nil {
			g.logger.Warn("dropping undecodable frame",
				zap.String("topic", mt), zap.Error(err))
			return
		}
		h(msg)
	})
	if !token.WaitTimeout(connectTimeout) {
		return nil, errors.Errorf("mqttnet: subscribe to %q timed out", mt)
	}
	if token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "subscribing to %q", mt)
	}
	return &mqttReader{client: g.client, topic: mt}, nil
}

type mqttWriter struct {
	client mqtt.Client
	topic  string
	qos    byte

	mu     sync.Mutex
	closed bool
}

func (w *mqttWriter) WriteMessage(msg rosmsg.Message) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return errors.New("mqttnet: writer is closed")
	}
	token := w.client.Publish(w.topic, w.qos, false, rosmsg.Encode(msg))
	if w.qos > 0 {
		if !token.WaitTimeout(connectTimeout) {
			return errors.Errorf("mqttnet: publish to %q timed out", w.topic)
		}
		return errors.Wrapf(token.Error(), "publishing to %q", w.topic)
	}
	return nil
}

func (w *mqttWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

type mqttReader struct {
	client mqtt.Client
	topic  string
	once   sync.Once
}

func (r *mqttReader) Close() error {
	r.once.Do(func() {
		r.client.Unsubscribe(r.topic).WaitTimeout(connectTimeout)
	})
	return nil
}
