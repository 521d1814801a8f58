package bridge

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/clydemcqueen/ros-gst-bridge/internal/rosmsg"
	"github.com/clydemcqueen/ros-gst-bridge/internal/rosnet"
)

// spyEndpoint records hook invocations and publishes nothing.
type spyEndpoint struct {
	opens    int
	closes   int
	openErr  error
	closeErr error
	format   Format
}

func (e *spyEndpoint) DefaultNodeName() string { return "spy_node" }
func (e *spyEndpoint) Template() Template      { return DefaultAudioTemplate() }

func (e *spyEndpoint) Open(node *rosnet.Node, cfg Config) error {
	e.opens++
	return e.openErr
}

func (e *spyEndpoint) Negotiate(f Format) error {
	e.format = f
	return nil
}

func (e *spyEndpoint) Close() error {
	e.closes++
	return e.closeErr
}

func (e *spyEndpoint) Render(buf Buffer, stamp time.Time) error { return nil }

// subscribingEndpoint opens a subscription whose handler runs on the
// controller's own dispatch goroutine, like the source element's delivery
// path.
type subscribingEndpoint struct {
	spyEndpoint
	handler rosnet.Handler
}

func (e *subscribingEndpoint) Open(node *rosnet.Node, cfg Config) error {
	_, err := node.CreateSubscription(cfg.Topic, rosnet.SensorDataQoS().WithReliable(), e.handler)
	return err
}

// brokenGraph refuses node registration, standing in for an unavailable
// execution context.
type brokenGraph struct {
	*rosnet.Bus
}

func (g brokenGraph) RegisterNode(fqn string) error {
	return errors.New("graph unavailable")
}

// stepToNull walks the controller back down the lattice.
func stepToNull(t *testing.T, ctrl *LifecycleController) {
	t.Helper()
	for ctrl.State() != StateNull {
		require.NoError(t, ctrl.Transition(ctrl.State()-1))
	}
}

func testController(t *testing.T, graph rosnet.Graph, endpoint Endpoint, wall clock.Clock) *LifecycleController {
	t.Helper()
	ctrl, err := NewLifecycleController(graph, endpoint, Config{Topic: "stream"},
		WithLogger(zaptest.NewLogger(t)),
		WithWallClock(wall),
		WithPipelineClock(&manualClock{}),
	)
	require.NoError(t, err)
	return ctrl
}

func TestLifecycle_ConnectionWindow(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := rosnet.NewBus()
	defer bus.Close()

	endpoint := &spyEndpoint{}
	ctrl := testController(t, bus, endpoint, clock.NewMock())

	// connection exists exactly while state is READY or above.
	walk := []State{StateReady, StatePaused, StatePlaying, StatePaused, StateReady, StateNull}
	assert.False(t, ctrl.Connected())
	for _, to := range walk {
		require.NoError(t, ctrl.Transition(to))
		assert.Equal(t, to, ctrl.State())
		assert.Equal(t, to != StateNull, ctrl.Connected(), "in %s", to)
	}
	assert.Equal(t, 1, endpoint.opens)
	assert.Equal(t, 1, endpoint.closes)
}

func TestLifecycle_InvalidTransitions(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := rosnet.NewBus()
	defer bus.Close()

	ctrl := testController(t, bus, &spyEndpoint{}, clock.NewMock())

	var invalid *InvalidTransitionError
	require.ErrorAs(t, ctrl.Transition(StatePaused), &invalid)
	require.ErrorAs(t, ctrl.Transition(StatePlaying), &invalid)
	assert.Equal(t, StateNull, ctrl.State())

	// requesting the current state is a no-op.
	require.NoError(t, ctrl.Transition(StateNull))
}

func TestLifecycle_OpenFailureLeavesNull(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := rosnet.NewBus()
	defer bus.Close()

	endpoint := &spyEndpoint{}
	ctrl := testController(t, brokenGraph{bus}, endpoint, clock.NewMock())

	err := ctrl.Transition(StateReady)
	var open *OpenError
	require.ErrorAs(t, err, &open)
	assert.Equal(t, StateNull, ctrl.State())
	assert.False(t, ctrl.Connected())
	assert.Zero(t, endpoint.opens)

	// a subsequent attempt to fall back to NULL must be a harmless no-op.
	require.NoError(t, ctrl.Transition(StateNull))
	assert.Zero(t, endpoint.closes)
}

func TestLifecycle_EndpointOpenFailureUnwinds(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := rosnet.NewBus()
	defer bus.Close()

	endpoint := &spyEndpoint{openErr: errors.New("publisher construction failed")}
	ctrl := testController(t, bus, endpoint, clock.NewMock())

	var open *OpenError
	require.ErrorAs(t, ctrl.Transition(StateReady), &open)
	assert.False(t, ctrl.Connected())

	// the node name went back to the graph; a retry can succeed.
	endpoint.openErr = nil
	require.NoError(t, ctrl.Transition(StateReady))
	stepToNull(t, ctrl)
}

func TestLifecycle_CloseFailureIsSwallowed(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := rosnet.NewBus()
	defer bus.Close()

	endpoint := &spyEndpoint{closeErr: errors.New("teardown hook failed")}
	ctrl := testController(t, bus, endpoint, clock.NewMock())

	require.NoError(t, ctrl.Transition(StateReady))
	require.NoError(t, ctrl.Transition(StateNull))
	assert.False(t, ctrl.Connected())
	assert.Equal(t, 1, endpoint.closes)

	// the connection was released despite the hook failure.
	require.NoError(t, ctrl.Transition(StateReady))
	stepToNull(t, ctrl)
}

func TestLifecycle_OffsetResampledPerPlayingEntry(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := rosnet.NewBus()
	defer bus.Close()

	wall := clock.NewMock()
	wall.Add(1000 * time.Second)
	ctrl := testController(t, bus, &spyEndpoint{}, wall)

	_, ok := ctrl.Offset()
	assert.False(t, ok)

	require.NoError(t, ctrl.Transition(StateReady))
	require.NoError(t, ctrl.Transition(StatePaused))
	_, ok = ctrl.Offset()
	assert.False(t, ok, "offset must not be valid before the first PLAYING entry")

	require.NoError(t, ctrl.Transition(StatePlaying))
	first, ok := ctrl.Offset()
	require.True(t, ok)

	// across a pause the wall clock moves while the pipeline clock is held;
	// the resample must observe the shift.
	require.NoError(t, ctrl.Transition(StatePaused))
	wall.Add(5 * time.Second)
	require.NoError(t, ctrl.Transition(StatePlaying))
	second, ok := ctrl.Offset()
	require.True(t, ok)
	assert.Equal(t, first+ClockOffset(5*time.Second), second)
	stepToNull(t, ctrl)
}

func TestLifecycle_ClockReplacementInvalidatesOffset(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := rosnet.NewBus()
	defer bus.Close()

	ctrl := testController(t, bus, &spyEndpoint{}, clock.NewMock())

	require.NoError(t, ctrl.Transition(StateReady))
	require.NoError(t, ctrl.Transition(StatePaused))
	require.NoError(t, ctrl.Transition(StatePlaying))
	_, ok := ctrl.Offset()
	require.True(t, ok)

	ctrl.SetPipelineClock(&manualClock{now: ClockTime(time.Hour)})
	_, ok = ctrl.Offset()
	assert.False(t, ok)

	// the next PLAYING entry resamples against the new clock.
	require.NoError(t, ctrl.Transition(StatePaused))
	require.NoError(t, ctrl.Transition(StatePlaying))
	offset, ok := ctrl.Offset()
	require.True(t, ok)
	assert.Equal(t, ClockOffset(-int64(time.Hour)), offset)
	stepToNull(t, ctrl)
}

func TestLifecycle_NullEntryCompletesWithCallbackInFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := rosnet.NewBus()
	defer bus.Close()

	pubCtx, err := rosnet.NewContext(bus, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer pubCtx.Shutdown("test done")
	talker, err := pubCtx.NewNode("talker", "")
	require.NoError(t, err)
	pub, err := talker.CreatePublisher("/audio", rosnet.SensorDataQoS().WithReliable())
	require.NoError(t, err)

	// the handler parks on the dispatch goroutine, then re-enters the
	// controller like Source.deliver does for every inbound message.
	var ctrl *LifecycleController
	entered := make(chan struct{})
	release := make(chan struct{})
	endpoint := &subscribingEndpoint{handler: func(rosmsg.Message) {
		close(entered)
		<-release
		ctrl.Node()
	}}
	ctrl, err = NewLifecycleController(bus, endpoint, Config{Topic: "/audio"},
		WithLogger(zaptest.NewLogger(t)),
		WithWallClock(clock.NewMock()),
		WithPipelineClock(&manualClock{}),
	)
	require.NoError(t, err)
	require.NoError(t, ctrl.Transition(StateReady))

	require.NoError(t, pub.Publish(&rosmsg.Audio{Encoding: "S16LE", Rate: 48000, Channels: 1}))
	<-entered

	// tearing down must drain the dispatch goroutine without holding the
	// lock the in-flight callback is about to take.
	done := make(chan struct{})
	go func() {
		assert.NoError(t, ctrl.Transition(StateNull))
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("transition to NULL did not complete with a callback in flight")
	}
	assert.Equal(t, StateNull, ctrl.State())
	assert.False(t, ctrl.Connected())
}

func TestLifecycle_OffsetInvalidatedOnReadyReentry(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := rosnet.NewBus()
	defer bus.Close()

	ctrl := testController(t, bus, &spyEndpoint{}, clock.NewMock())

	require.NoError(t, ctrl.Transition(StateReady))
	require.NoError(t, ctrl.Transition(StatePaused))
	require.NoError(t, ctrl.Transition(StatePlaying))
	_, ok := ctrl.Offset()
	require.True(t, ok)

	// still valid while paused within the same session.
	require.NoError(t, ctrl.Transition(StatePaused))
	_, ok = ctrl.Offset()
	assert.True(t, ok)

	// falling back to READY ends the session; re-entering PAUSED without a
	// PLAYING entry must not report the stale offset.
	require.NoError(t, ctrl.Transition(StateReady))
	_, ok = ctrl.Offset()
	assert.False(t, ok)
	require.NoError(t, ctrl.Transition(StatePaused))
	_, ok = ctrl.Offset()
	assert.False(t, ok, "offset must be invalid in PAUSED until the next PLAYING entry")

	require.NoError(t, ctrl.Transition(StatePlaying))
	_, ok = ctrl.Offset()
	assert.True(t, ok)
	stepToNull(t, ctrl)
}

func TestLifecycle_IdentityFrozenWhileConnected(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := rosnet.NewBus()
	defer bus.Close()

	ctrl := testController(t, bus, &spyEndpoint{}, clock.NewMock())

	require.NoError(t, ctrl.SetIdentity("my_bridge", "cameras"))
	require.NoError(t, ctrl.Transition(StateReady))

	assert.ErrorIs(t, ctrl.SetIdentity("other", ""), ErrIdentityFrozen)
	assert.Equal(t, "my_bridge", ctrl.Config().NodeName)

	require.NoError(t, ctrl.Transition(StateNull))
	require.NoError(t, ctrl.SetIdentity("other", ""))
}
