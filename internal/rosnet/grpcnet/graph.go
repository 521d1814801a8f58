package grpcnet

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/clydemcqueen/ros-gst-bridge/internal/rosmsg"
	"github.com/clydemcqueen/ros-gst-bridge/internal/rosnet"
)

var attachDesc = grpc.StreamDesc{
	StreamName:    "Attach",
	ServerStreams: true,
	ClientStreams: true,
}

// Graph is a rosnet.Graph backed by a remote broker. Each node claim,
// publisher, and subscription opens its own Attach stream; the broker
// releases the associated state when the stream ends.
type Graph struct {
	logger *zap.Logger
	conn   *grpc.ClientConn

	mu    sync.Mutex
	nodes map[string]context.CancelFunc
}

// Dial connects to a broker. The address uses gRPC target syntax.
func Dial(addr string, logger *zap.Logger, opts ...grpc.DialOption) (*Graph, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "dialing broker")
	}
	return &Graph{
		logger: logger,
		conn:   conn,
		nodes:  make(map[string]context.CancelFunc),
	}, nil
}

// Close drops every claim and the broker connection.
func (g *Graph) Close() error {
	g.mu.Lock()
	for fqn, cancel := range g.nodes {
		cancel()
		delete(g.nodes, fqn)
	}
	g.mu.Unlock()
	return g.conn.Close()
}

// attach opens an Attach stream, sends the given first frame, and waits for
// the broker's ack.
func (g *Graph) attach(ctx context.Context, first *frame) (grpc.ClientStream, error) {
	stream, err := g.conn.NewStream(ctx, &attachDesc, attachMethod)
	if err != nil {
		return nil, errors.Wrap(err, "opening broker stream")
	}
	if err := stream.SendMsg(first); err != nil {
		return nil, errors.Wrap(err, "sending first frame")
	}
	var ack frame
	if err := stream.RecvMsg(&ack); err != nil {
		return nil, err
	}
	if ack.Kind != frameAck {
		return nil, errors.Errorf("grpcnet: expected ack, got frame kind %d", ack.Kind)
	}
	return stream, nil
}

func (g *Graph) RegisterNode(fqn string) error {
	ctx, cancel := context.WithCancel(context.Background())
	_, err := g.attach(ctx, &frame{Kind: frameRegister, Name: fqn})
	if err != nil {
		cancel()
		return errors.Wrapf(err, "registering node %q", fqn)
	}
	g.mu.Lock()
	g.nodes[fqn] = cancel
	g.mu.Unlock()
	return nil
}

func (g *Graph) UnregisterNode(fqn string) {
	g.mu.Lock()
	cancel, ok := g.nodes[fqn]
	delete(g.nodes, fqn)
	g.mu.Unlock()
	if ok {
		cancel()
	}
}

func (g *Graph) OpenWriter(topic string, qos rosnet.QoS) (rosnet.MessageWriter, error) {
	qos = qos.Normalized()
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := g.attach(ctx, &frame{
		Kind:        frameAdvertise,
		Name:        topic,
		Reliability: uint8(qos.Reliability),
		Depth:       uint32(qos.Depth),
	})
	if err != nil {
		cancel()
		return nil, errors.Wrapf(err, "advertising %q", topic)
	}
	return &remoteWriter{stream: stream, cancel: cancel}, nil
}

func (g *Graph) OpenReader(topic string, qos rosnet.QoS, h rosnet.Handler) (io.Closer, error) {
	qos = qos.Normalized()
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := g.attach(ctx, &frame{
		Kind:        frameSubscribe,
		Name:        topic,
		Reliability: uint8(qos.Reliability),
		Depth:       uint32(qos.Depth),
	})
	if err != nil {
		cancel()
		return nil, errors.Wrapf(err, "subscribing to %q", topic)
	}
	r := &remoteReader{
		logger: g.logger,
		topic:  topic,
		stream: stream,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go r.receive(h)
	return r, nil
}

type remoteWriter struct {
	mu     sync.Mutex
	stream grpc.ClientStream
	cancel context.CancelFunc
	closed bool
}

func (w *remoteWriter) WriteMessage(msg rosmsg.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("grpcnet: writer is closed")
	}
	err := w.stream.SendMsg(&frame{Kind: framePublish, Payload: rosmsg.Encode(msg)})
	return errors.Wrap(err, "publishing frame")
}

func (w *remoteWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.stream.CloseSend()
	w.cancel()
	return err
}

type remoteReader struct {
	logger *zap.Logger
	topic  string
	stream grpc.ClientStream
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (r *remoteReader) receive(h rosnet.Handler) {
	defer close(r.done)
	for {
		var f frame
		if err := r.stream.RecvMsg(&f); err != nil {
			return
		}
		if f.Kind != framePublish {
			continue
		}
		msg, err := rosmsg.Decode(f.Payload)
		if err != nil {
			r.logger.Warn("dropping undecodable frame",
				zap.String("topic", r.topic), zap.Error(err))
			continue
		}
		h(msg)
	}
}

func (r *remoteReader) Close() error {
	r.once.Do(r.cancel)
	<-r.done
	return nil
}
