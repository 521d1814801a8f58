package bridge

import (
	"sync"

	"go.uber.org/zap"

	"github.com/clydemcqueen/ros-gst-bridge/internal/metrics"
	"github.com/clydemcqueen/ros-gst-bridge/internal/rosnet"
)

// Sink is a sink-side bridging element: the pipeline pushes buffers in,
// typed messages come out on the graph. The surrounding pipeline drives
// SetState, negotiates caps before streaming, and calls Render per buffer.
type Sink struct {
	logger   *zap.Logger
	ctrl     *LifecycleController
	endpoint SinkEndpoint

	mu     sync.Mutex
	format Format
}

// NewSink builds a sink element in NULL.
func NewSink(graph rosnet.Graph, endpoint SinkEndpoint, cfg Config, opts ...Option) (*Sink, error) {
	ctrl, err := NewLifecycleController(graph, endpoint, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Sink{
		logger:   ctrl.logger,
		ctrl:     ctrl,
		endpoint: endpoint,
	}, nil
}

// Controller exposes the lifecycle controller to the pipeline for identity,
// clock, and base-time plumbing.
func (s *Sink) Controller() *LifecycleController { return s.ctrl }

// Caps returns the capability template the element advertises upstream.
func (s *Sink) Caps() Template { return s.endpoint.Template() }

// ProposeCaps checks proposals against the template without freezing
// anything. Safe to call repeatedly.
func (s *Sink) ProposeCaps(proposals ...Format) (Format, error) {
	return Negotiate(s.endpoint.Template(), proposals)
}

// SetCaps negotiates and freezes the session format. Within one
// READY→…→NULL cycle the accepted format cannot change; proposing the
// frozen format again is a no-op.
func (s *Sink) SetCaps(proposals ...Format) (Format, error) {
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
func (s *Sink) Format() Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// SetState steps the element through the lattice. Reaching NULL thaws the
// negotiated format for the next session.
func (s *Sink) SetState(to State) error {
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

// Render translates one buffer and publishes it. Translation failures drop
// the buffer with a warning; they never interrupt pipeline flow, so Render
// only returns nil.
func (s *Sink) Render(buf Buffer) error {
	s.mu.Lock()
	format := s.format
	s.mu.Unlock()

	node := s.ctrl.Node()
	fqn := ""
	if node != nil {
		fqn = node.FullyQualifiedName()
	}

	if format == nil {
		s.drop(fqn, &TranslationDrop{Kind: "no_format", Reason: "no format negotiated"})
		return nil
	}
	stamp, err := s.ctrl.OutboundStamp(buf.PTS)
	if err != nil {
		s.drop(fqn, err)
		return nil
	}
	if err := s.endpoint.Render(buf, stamp); err != nil {
		s.drop(fqn, err)
		return nil
	}
	metrics.BuffersRendered.WithLabelValues(fqn).Inc()
	return nil
}

func (s *Sink) drop(fqn string, err error) {
	s.logger.Warn("dropping buffer", zap.Error(err))
	metrics.BuffersDropped.WithLabelValues(fqn, dropReason(err)).Inc()
}

func dropReason(err error) string {
	if d, ok := err.(*TranslationDrop); ok {
		return d.Kind
	}
	return "publish_failed"
}
