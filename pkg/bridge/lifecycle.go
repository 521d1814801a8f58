package bridge

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/clydemcqueen/ros-gst-bridge/internal/metrics"
	"github.com/clydemcqueen/ros-gst-bridge/internal/rosnet"
)

// LifecycleController drives the graph connection in lock-step with the
// pipeline's state transitions. The connection (context, node, endpoints)
// exists exactly while the state is READY or above.
//
// Transitions are called serially from the pipeline thread; the controller
// never retries a failed transition on its own.
type LifecycleController struct {
	logger   *zap.Logger
	graph    rosnet.Graph
	endpoint Endpoint
	wall     clock.Clock
	offsets  OffsetSource

	mu          sync.Mutex
	cfg         Config
	state       State
	rctx        *rosnet.Context
	node        *rosnet.Node
	pclock      PipelineClock
	baseTime    ClockTime
	offset      ClockOffset
	offsetValid bool
}

// Option configures a controller or an element built on one.
type Option func(*LifecycleController)

// WithLogger replaces the nop logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *LifecycleController) { c.logger = logger }
}

// WithWallClock replaces the wall clock, for tests.
func WithWallClock(wall clock.Clock) Option {
	return func(c *LifecycleController) { c.wall = wall }
}

// WithOffsetSource replaces the single-sample offset estimator, e.g. with a
// drift-correcting one.
func WithOffsetSource(s OffsetSource) Option {
	return func(c *LifecycleController) { c.offsets = s }
}

// WithPipelineClock sets the initial pipeline clock.
func WithPipelineClock(pc PipelineClock) Option {
	return func(c *LifecycleController) { c.pclock = pc }
}

// NewLifecycleController builds a controller in NULL. The config's node
// name defaults to the endpoint's placeholder.
func NewLifecycleController(graph rosnet.Graph, endpoint Endpoint, cfg Config, opts ...Option) (*LifecycleController, error) {
	cfg = cfg.withDefaultNodeName(endpoint.DefaultNodeName())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &LifecycleController{
		logger:   zap.NewNop(),
		graph:    graph,
		endpoint: endpoint,
		wall:     clock.New(),
		offsets:  SingleSampleOffset{},
		cfg:      cfg,
		state:    StateNull,
		pclock:   NewSystemClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *LifecycleController) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the graph connection exists.
func (c *LifecycleController) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.node != nil
}

// Node is the graph node, or nil outside the READY..PLAYING window.
func (c *LifecycleController) Node() *rosnet.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.node
}

// Config returns the current element configuration.
func (c *LifecycleController) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// SetIdentity changes the node name and namespace. Rejected once the
// connection exists; identity is only mutable in NULL.
func (c *LifecycleController) SetIdentity(name, namespace string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.node != nil {
		c.logger.Error("can't change node identity once opened",
			zap.String("name", name), zap.String("namespace", namespace))
		return ErrIdentityFrozen
	}
	if name != "" {
		c.cfg.NodeName = name
	}
	c.cfg.NodeNamespace = namespace
	return nil
}

// SetPipelineClock installs a replacement pipeline clock, invalidating any
// sampled offset until the next transition into PLAYING.
func (c *LifecycleController) SetPipelineClock(pc PipelineClock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pclock = pc
	c.offsetValid = false
}

// SetBaseTime records the pipeline-clock value of the start of the playing
// session, used to convert buffer PTS into absolute pipeline time.
func (c *LifecycleController) SetBaseTime(t ClockTime) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseTime = t
}

// BaseTime returns the current session base time.
func (c *LifecycleController) BaseTime() ClockTime {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseTime
}

// Offset returns the sampled clock offset and whether it is valid.
func (c *LifecycleController) Offset() (ClockOffset, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset, c.offsetValid
}

// Transition moves the element one step on the lattice. Requesting the
// current state is a no-op, so a READY→NULL request after a failed open
// does nothing. NULL→READY failures leave the state at NULL and are
// returned as *OpenError; teardown failures are logged, never returned.
//
// On READY→NULL the connection is detached under the lock and torn down
// after it is released: draining the execution context waits for in-flight
// subscription callbacks, and those re-enter the controller.
func (c *LifecycleController) Transition(to State) error {
	c.mu.Lock()

	from := c.state
	if to == from {
		c.mu.Unlock()
		return nil
	}
	if !adjacent(from, to) {
		c.mu.Unlock()
		return &InvalidTransitionError{From: from, To: to}
	}

	c.logger.Debug("state transition",
		zap.Stringer("from", from), zap.Stringer("to", to))

	var node *rosnet.Node
	var rctx *rosnet.Context
	switch {
	case from == StateNull && to == StateReady:
		if err := c.open(); err != nil {
			c.mu.Unlock()
			c.logger.Error("open failed", zap.Error(err))
			return &OpenError{Cause: err}
		}
	case from == StatePaused && to == StatePlaying:
		c.sampleOffset()
	case from == StatePaused && to == StateReady:
		// the offset is only meaningful after a PLAYING entry within the
		// current READY session.
		c.offsetValid = false
	case from == StateReady && to == StateNull:
		node, rctx = c.node, c.rctx
		c.node, c.rctx = nil, nil
		c.offsetValid = false
	}
	c.state = to
	c.mu.Unlock()

	if from == StateReady && to == StateNull {
		c.close(node, rctx)
	}
	return nil
}

// open builds the connection: execution context, then the node, then the
// endpoint's publishers or subscriptions. Any failure unwinds what was
// acquired and leaves no connection behind.
func (c *LifecycleController) open() error {
	rctx, err := rosnet.NewContext(c.graph, c.logger)
	if err != nil {
		return err
	}
	node, err := rctx.NewNode(c.cfg.NodeName, c.cfg.NodeNamespace)
	if err != nil {
		rctx.Shutdown("open failed")
		return err
	}
	if err := c.endpoint.Open(node, c.cfg); err != nil {
		rctx.Shutdown("open failed")
		return err
	}
	c.rctx = rctx
	c.node = node
	return nil
}

// close releases a detached connection in reverse order of acquisition:
// endpoints, node, context. Always runs to completion; endpoint failures are
// logged. Runs without the controller lock so callbacks still draining on
// the context can re-enter the controller and observe the NULL state.
func (c *LifecycleController) close(node *rosnet.Node, rctx *rosnet.Context) {
	if err := c.endpoint.Close(); err != nil {
		c.logger.Warn("endpoint close failed", zap.Error(&CloseError{Cause: err}))
	}
	if node != nil {
		if err := node.Close(); err != nil {
			c.logger.Warn("node close failed", zap.Error(err))
		}
	}
	if rctx != nil {
		rctx.Shutdown("closing bridge element")
	}
}

// sampleOffset runs once per PAUSED→PLAYING transition. The pipeline
// clock's relationship to wall time may shift across a pause, so the offset
// is never carried over.
func (c *LifecycleController) sampleOffset() {
	c.offset = c.offsets.Sample(c.pclock, c.wall)
	c.offsetValid = true
	fqn := ""
	if c.node != nil {
		fqn = c.node.FullyQualifiedName()
	}
	metrics.ClockOffsetSamples.WithLabelValues(fqn).Inc()
	metrics.ClockOffsetSeconds.WithLabelValues(fqn).Set(float64(c.offset) / float64(time.Second))
	c.logger.Debug("sampled clock offset", zap.Int64("offset_ns", int64(c.offset)))
}

// OutboundStamp translates a buffer PTS into the wall-clock domain:
// stamp = pts + base_time + offset. Fails with *TranslationDrop when the
// connection is down or no offset has been sampled this session.
func (c *LifecycleController) OutboundStamp(pts ClockTime) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.node == nil {
		return time.Time{}, &TranslationDrop{Kind: "no_connection", Reason: "no graph connection"}
	}
	if !c.offsetValid {
		return time.Time{}, &TranslationDrop{Kind: "no_offset", Reason: "clock offset not sampled"}
	}
	if !pts.Valid() {
		return time.Time{}, &TranslationDrop{Kind: "no_timestamp", Reason: "buffer has no timestamp"}
	}
	return stampOutbound(pts, c.baseTime, c.offset), nil
}

// InboundPTS is the inverse mapping for source-side bridges.
func (c *LifecycleController) InboundPTS(stamp time.Time) (ClockTime, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.node == nil {
		return ClockTimeNone, &TranslationDrop{Kind: "no_connection", Reason: "no graph connection"}
	}
	if !c.offsetValid {
		return ClockTimeNone, &TranslationDrop{Kind: "no_offset", Reason: "clock offset not sampled"}
	}
	return ptsInbound(stamp, c.baseTime, c.offset), nil
}
