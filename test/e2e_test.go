package e2e

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/clydemcqueen/ros-gst-bridge/internal/rosnet"
	"github.com/clydemcqueen/ros-gst-bridge/internal/rosnet/grpcnet"
	"github.com/clydemcqueen/ros-gst-bridge/pkg/bridge"
)

type element interface {
	SetState(bridge.State) error
}

func up(t *testing.T, e element) {
	t.Helper()
	for _, s := range []bridge.State{bridge.StateReady, bridge.StatePaused, bridge.StatePlaying} {
		require.NoError(t, e.SetState(s))
	}
	t.Cleanup(func() {
		for _, s := range []bridge.State{bridge.StatePaused, bridge.StateReady, bridge.StateNull} {
			e.SetState(s)
		}
	})
}

// reliableQoS keeps the transport from shedding buffers so the tests can
// count exact deliveries.
func reliableQoS() bridge.QoSConfig {
	return bridge.QoSConfig{Reliability: "reliable", Depth: 32}
}

func runAudio(t *testing.T, sinkGraph, sourceGraph rosnet.Graph) {
	logger := zaptest.NewLogger(t)
	pclock := bridge.NewSystemClock()
	format := bridge.AudioFormat{Encoding: bridge.S16LE, Rate: 48000, Channels: 2}

	source, err := bridge.NewSource(sourceGraph, bridge.NewAudioSource(), bridge.Config{
		NodeName: "e2e_audio_source",
		Topic:    "/audio",
		QoS:      reliableQoS(),
	}, 32, bridge.WithLogger(logger), bridge.WithPipelineClock(pclock))
	require.NoError(t, err)

	sink, err := bridge.NewSink(sinkGraph, bridge.NewAudioSink(), bridge.Config{
		NodeName: "e2e_audio_sink",
		Topic:    "/audio",
		FrameID:  "mic",
		QoS:      reliableQoS(),
	}, bridge.WithLogger(logger), bridge.WithPipelineClock(pclock))
	require.NoError(t, err)

	_, err = source.SetCaps(format)
	require.NoError(t, err)
	_, err = sink.SetCaps(format)
	require.NoError(t, err)

	up(t, source)
	up(t, sink)

	const buffers = 10
	const duration = 20 * time.Millisecond
	step := format.FrameStep()
	frames := format.Rate * int(duration/time.Millisecond) / 1000

	// Start well past zero so offset-sampling skew between the two
	// elements cannot push the reconstructed timestamps negative.
	const basePTS = bridge.ClockTime(time.Second)

	for i := 0; i < buffers; i++ {
		err := sink.Render(bridge.Buffer{
			Data:     make([]byte, frames*step),
			PTS:      basePTS + bridge.ClockTime(i)*bridge.ClockTime(duration),
			Duration: bridge.ClockTime(duration),
		})
		require.NoError(t, err)
	}

	var last bridge.ClockTime = bridge.ClockTimeNone
	for i := 0; i < buffers; i++ {
		select {
		case buf := <-source.Buffers():
			require.Len(t, buf.Data, frames*step)
			require.True(t, buf.PTS.Valid())
			if last.Valid() {
				require.Equal(t, bridge.ClockTime(duration), buf.PTS-last)
			}
			// Both elements sample their clock offsets from the same
			// pair of clocks, so the reconstructed timeline matches the
			// rendered one up to the sampling skew.
			want := time.Duration(basePTS) + time.Duration(i)*duration
			require.InDelta(t, float64(want), float64(buf.PTS), float64(500*time.Millisecond))
			last = buf.PTS
		case <-time.After(5 * time.Second):
			t.Fatalf("buffer %d never arrived", i)
		}
	}
}

func TestAudioEndToEnd(t *testing.T) {
	bus := rosnet.NewBus()
	t.Cleanup(func() { bus.Close() })
	runAudio(t, bus, bus)
}

func TestImageEndToEnd(t *testing.T) {
	bus := rosnet.NewBus()
	t.Cleanup(func() { bus.Close() })

	logger := zaptest.NewLogger(t)
	pclock := bridge.NewSystemClock()
	format := bridge.VideoFormat{
		Encoding:  bridge.RGB,
		Width:     320,
		Height:    240,
		Framerate: bridge.Fraction{Num: 30, Den: 1},
	}

	source, err := bridge.NewSource(bus, bridge.NewImageSource(), bridge.Config{
		NodeName: "e2e_image_source",
		Topic:    "/image_raw",
		QoS:      reliableQoS(),
	}, 8, bridge.WithLogger(logger), bridge.WithPipelineClock(pclock))
	require.NoError(t, err)

	sink, err := bridge.NewSink(bus, bridge.NewImageSink(), bridge.Config{
		NodeName: "e2e_image_sink",
		Topic:    "/image_raw",
		FrameID:  "camera",
		QoS:      reliableQoS(),
	}, bridge.WithLogger(logger), bridge.WithPipelineClock(pclock))
	require.NoError(t, err)

	_, err = source.SetCaps(format)
	require.NoError(t, err)
	_, err = sink.SetCaps(format)
	require.NoError(t, err)

	up(t, source)
	up(t, sink)

	frame := make([]byte, format.RowStep()*format.Height)
	require.NoError(t, sink.Render(bridge.Buffer{
		Data: frame,
		PTS:  bridge.ClockTime(time.Second),
	}))

	select {
	case buf := <-source.Buffers():
		require.Len(t, buf.Data, len(frame))
		require.True(t, buf.PTS.Valid())
	case <-time.After(5 * time.Second):
		t.Fatal("frame never arrived")
	}
}

// TestAudioEndToEndOverBroker runs the same flow with the sink and source on
// separate graph connections joined by a gRPC broker.
func TestAudioEndToEndOverBroker(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	grpcnet.NewBroker(zaptest.NewLogger(t)).Register(srv)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})

	sinkGraph, err := grpcnet.Dial("passthrough:///broker", zaptest.NewLogger(t), dialer)
	require.NoError(t, err)
	t.Cleanup(func() { sinkGraph.Close() })

	sourceGraph, err := grpcnet.Dial("passthrough:///broker", zaptest.NewLogger(t), dialer)
	require.NoError(t, err)
	t.Cleanup(func() { sourceGraph.Close() })

	runAudio(t, sinkGraph, sourceGraph)
}
