package bridge

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clydemcqueen/ros-gst-bridge/internal/metrics"
	"github.com/clydemcqueen/ros-gst-bridge/internal/rosnet"
)

// Source is a source-side bridging element: typed messages arrive from the
// graph and come out as raw buffers with pipeline timestamps. Buffers are
// delivered on a channel the pipeline drains; when the pipeline falls
// behind, inbound messages are shed rather than backpressured into the
// graph transport.
type Source struct {
	logger   *zap.Logger
	ctrl     *LifecycleController
	endpoint SourceEndpoint
	buffers  chan Buffer

	mu     sync.Mutex
	format Format
}

// NewSource builds a source element in NULL. depth bounds the buffer
// channel; zero selects a small default.
func NewSource(graph rosnet.Graph, endpoint SourceEndpoint, cfg Config, depth int, opts ...Option) (*Source, error) {
	ctrl, err := NewLifecycleController(graph, endpoint, cfg, opts...)
	if err != nil {
		return nil, err
	}
	if depth <= 0 {
		depth = 8
	}
	s := &Source{
		logger:   ctrl.logger,
		ctrl:     ctrl,
		endpoint: endpoint,
		buffers:  make(chan Buffer, depth),
	}
	endpoint.SetDeliver(s.deliver)
	return s, nil
}

// Controller exposes the lifecycle controller to the pipeline.
func (s *Source) Controller() *LifecycleController { return s.ctrl }

// Buffers is the stream of translated buffers for the pipeline to pull.
func (s *Source) Buffers() <-chan Buffer { return s.buffers }

// Caps returns the capability template the element advertises downstream.
func (s *Source) Caps() Template { return s.endpoint.Template() }

// ProposeCaps checks proposals against the template without freezing.
func (s *Source) ProposeCaps(proposals ...Format) (Format, error) {
	return Negotiate(s.endpoint.Template(), proposals)
}

// SetCaps negotiates and freezes the session format, as on the sink side.
func (s *Source) SetCaps(proposals ...Format) (Format, error) {
	accepted, err := Negotiate(s.endpoint.Template(), proposals)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.format != nil {
		if s.format.String() == accepted.String() {
			return s.format, nil
		}
		return nil, ErrFormatFrozen
	}
	if err := s.endpoint.Negotiate(accepted); err != nil {
		return nil, err
	}
	s.format = accepted
	s.logger.Info("negotiated format", zap.Stringer("format", accepted))
	return accepted, nil
}

// Format returns the frozen session format, or nil before negotiation.
func (s *Source) Format() Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// SetState steps the element through the lattice.
func (s *Source) SetState(to State) error {
	if err := s.ctrl.Transition(to); err != nil {
		return err
	}
	if to == StateNull {
		s.mu.Lock()
		s.format = nil
		s.mu.Unlock()
	}
	return nil
}

// deliver runs on the graph context's dispatch goroutine with a payload the
// endpoint already matched against the negotiated format.
func (s *Source) deliver(payload []byte, stamp time.Time) {
	node := s.ctrl.Node()
	fqn := ""
	if node != nil {
		fqn = node.FullyQualifiedName()
	}

	s.mu.Lock()
	format := s.format
	s.mu.Unlock()
	if format == nil {
		s.drop(fqn, &TranslationDrop{Kind: "no_format", Reason: "no format negotiated"})
		return
	}

	pts, err := s.ctrl.InboundPTS(stamp)
	if err != nil {
		s.drop(fqn, err)
		return
	}

	select {
	case s.buffers <- Buffer{Data: payload, PTS: pts, Duration: ClockTimeNone}:
		metrics.BuffersRendered.WithLabelValues(fqn).Inc()
	default:
		s.drop(fqn, &TranslationDrop{Kind: "consumer_stalled", Reason: "pipeline is not draining buffers"})
	}
}

func (s *Source) drop(fqn string, err error) {
	s.logger.Warn("dropping inbound message", zap.Error(err))
	metrics.BuffersDropped.WithLabelValues(fqn, dropReason(err)).Inc()
}
