package bridge

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

type manualClock struct {
	now ClockTime
}

func (c *manualClock) Now() ClockTime { return c.now }

func TestSingleSampleOffset(t *testing.T) {
	wall := clock.NewMock()
	wall.Add(1000 * time.Second)
	pipeline := &manualClock{now: ClockTime(42 * time.Second)}

	offset := SingleSampleOffset{}.Sample(pipeline, wall)

	// with both clocks frozen the read interval is zero, so the offset is
	// exact: wall − pipeline.
	want := ClockOffset(wall.Now().UnixNano() - int64(pipeline.now))
	assert.Equal(t, want, offset)
}

func TestSingleSampleOffsetBound(t *testing.T) {
	// against the real clocks the error is bounded by the interval between
	// the two reads. Generously allow 100ms for a loaded CI machine; raw
	// sampling is typically stable within tens of microseconds.
	pipeline := NewSystemClock()
	wall := clock.New()

	before := wall.Now().UnixNano() - int64(pipeline.Now())
	offset := SingleSampleOffset{}.Sample(pipeline, wall)
	after := wall.Now().UnixNano() - int64(pipeline.Now())

	eps := int64(100 * time.Millisecond)
	assert.GreaterOrEqual(t, int64(offset), before-eps)
	assert.LessOrEqual(t, int64(offset), after+eps)
}

func TestStampRoundTrip(t *testing.T) {
	base := ClockTime(3 * time.Second)
	offset := ClockOffset(1_700_000_000 * int64(time.Second))
	pts := ClockTime(250 * time.Millisecond)

	stamp := stampOutbound(pts, base, offset)
	assert.Equal(t, int64(pts)+int64(base)+int64(offset), stamp.UnixNano())

	assert.Equal(t, pts, ptsInbound(stamp, base, offset))
}

func TestClockTimeNone(t *testing.T) {
	assert.False(t, ClockTimeNone.Valid())
	assert.True(t, ClockTime(0).Valid())
	assert.True(t, ClockTime(time.Second).Valid())
}
