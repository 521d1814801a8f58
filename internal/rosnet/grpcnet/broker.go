package grpcnet

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/clydemcqueen/ros-gst-bridge/internal/rosnet"
)

const attachMethod = "/rosnet.Broker/Attach"

// brokerServer exists only to give the service descriptor a handler type.
type brokerServer interface {
	attach(grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "rosnet.Broker",
	HandlerType: (*brokerServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    "Attach",
		Handler:       attachHandler,
		ServerStreams: true,
		ClientStreams: true,
	}},
	Metadata: "rosnet/broker",
}

func attachHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(brokerServer).attach(stream)
}

type subscriber struct {
	qos rosnet.QoS
	out chan []byte
	// done is closed when the subscriber's stream ends, releasing any
	// publisher blocked on a reliable send to it.
	done chan struct{}
}

// Broker is the fanout hub for remote graphs. Node-name claims and topic
// subscriptions live exactly as long as the stream that opened them.
type Broker struct {
	logger *zap.Logger

	mu     sync.Mutex
	nodes  map[string]struct{}
	topics map[string]map[string]*subscriber
}

func NewBroker(logger *zap.Logger) *Broker {
	return &Broker{
		logger: logger,
		nodes:  make(map[string]struct{}),
		topics: make(map[string]map[string]*subscriber),
	}
}

// Register adds the broker service to a gRPC server.
func (b *Broker) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&serviceDesc, b)
}

func (b *Broker) attach(stream grpc.ServerStream) error {
	var first frame
	if err := stream.RecvMsg(&first); err != nil {
		return err
	}
	switch first.Kind {
	case frameRegister:
		return b.holdNode(stream, first.Name)
	case frameAdvertise:
		return b.servePublisher(stream, first.Name)
	case frameSubscribe:
		return b.serveSubscriber(stream, first.Name, rosnet.QoS{
			Reliability: rosnet.Reliability(first.Reliability),
			Depth:       int(first.Depth),
		})
	default:
		return status.Errorf(codes.InvalidArgument, "unexpected first frame kind %d", first.Kind)
	}
}

// holdNode claims a node name for the lifetime of the stream.
func (b *Broker) holdNode(stream grpc.ServerStream, name string) error {
	b.mu.Lock()
	if _, taken := b.nodes[name]; taken {
		b.mu.Unlock()
		return status.Errorf(codes.AlreadyExists, "node %q already registered", name)
	}
	b.nodes[name] = struct{}{}
	b.mu.Unlock()

	b.logger.Info("node registered", zap.String("node", name))
	defer func() {
		b.mu.Lock()
		delete(b.nodes, name)
		b.mu.Unlock()
		b.logger.Info("node released", zap.String("node", name))
	}()

	if err := stream.SendMsg(&frame{Kind: frameAck}); err != nil {
		return err
	}
	// The claim is released when the client closes or drops the stream.
	var f frame
	for {
		if err := stream.RecvMsg(&f); err != nil {
			return nil
		}
	}
}

func (b *Broker) servePublisher(stream grpc.ServerStream, topic string) error {
	if err := stream.SendMsg(&frame{Kind: frameAck}); err != nil {
		return err
	}
	for {
		var f frame
		if err := stream.RecvMsg(&f); err != nil {
			return nil
		}
		if f.Kind != framePublish {
			return status.Errorf(codes.InvalidArgument, "unexpected frame kind %d on publisher stream", f.Kind)
		}
		b.fanout(stream, topic, f.Payload)
	}
}

func (b *Broker) fanout(stream grpc.ServerStream, topic string, payload []byte) {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.topics[topic]))
	for _, s := range b.topics[topic] {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if s.qos.Reliability == rosnet.Reliable {
			select {
			case s.out <- payload:
			case <-s.done:
			case <-stream.Context().Done():
				return
			}
			continue
		}
		select {
		case s.out <- payload:
		default:
			b.logger.Debug("subscriber queue full, shedding", zap.String("topic", topic))
		}
	}
}

func (b *Broker) serveSubscriber(stream grpc.ServerStream, topic string, qos rosnet.QoS) error {
	qos = qos.Normalized()
	sub := &subscriber{
		qos:  qos,
		out:  make(chan []byte, qos.Depth),
		done: make(chan struct{}),
	}
	id := uuid.NewString()

	b.mu.Lock()
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[string]*subscriber)
	}
	b.topics[topic][id] = sub
	b.mu.Unlock()

	defer func() {
		close(sub.done)
		b.mu.Lock()
		delete(b.topics[topic], id)
		if len(b.topics[topic]) == 0 {
			delete(b.topics, topic)
		}
		b.mu.Unlock()
	}()

	if err := stream.SendMsg(&frame{Kind: frameAck}); err != nil {
		return err
	}
	for {
		select {
		case payload := <-sub.out:
			if err := stream.SendMsg(&frame{Kind: framePublish, Name: topic, Payload: payload}); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}
