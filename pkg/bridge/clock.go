package bridge

import (
	"time"

	"github.com/benbjohnson/clock"
)

// ClockTime is a pipeline-clock timestamp or duration in nanoseconds.
type ClockTime time.Duration

// ClockTimeNone marks an unset timestamp.
const ClockTimeNone = ClockTime(-1)

func (t ClockTime) Valid() bool { return t >= 0 }

func (t ClockTime) Duration() time.Duration { return time.Duration(t) }

// PipelineClock is the pipeline's monotonic time source. The bridge only
// reads it; the pipeline may replace it, which invalidates any sampled
// offset until the next PAUSED→PLAYING transition.
type PipelineClock interface {
	Now() ClockTime
}

// NewSystemClock returns a pipeline clock backed by the process monotonic
// clock, starting at zero.
func NewSystemClock() PipelineClock {
	return &systemClock{epoch: time.Now()}
}

type systemClock struct {
	epoch time.Time
}

func (c *systemClock) Now() ClockTime { return ClockTime(time.Since(c.epoch)) }

// ClockOffset is the signed difference between the external wall clock and
// the pipeline clock, in nanoseconds:
//
//	offset = wall_sample − pipeline_sample
//
// It translates a pipeline timestamp into the wall-clock domain via
// stamp = pts + base_time + offset.
type ClockOffset int64

// OffsetSource samples the offset between the two clock domains. It is the
// drift-correction extension point: the default performs a single raw
// sample per PAUSED→PLAYING transition and no filtering.
type OffsetSource interface {
	Sample(pipeline PipelineClock, wall clock.Clock) ClockOffset
}

// SingleSampleOffset reads both clocks back to back. Raw sampling of the two
// clocks is stable within about 10us.
type SingleSampleOffset struct{}

func (SingleSampleOffset) Sample(pipeline PipelineClock, wall clock.Clock) ClockOffset {
	p := pipeline.Now()
	w := wall.Now()
	return ClockOffset(w.UnixNano() - int64(p))
}

// stampOutbound converts a buffer timestamp into the wall-clock domain.
func stampOutbound(pts, base ClockTime, offset ClockOffset) time.Time {
	return time.Unix(0, int64(pts)+int64(base)+int64(offset))
}

// ptsInbound is the inverse mapping, for source-side bridges.
func ptsInbound(stamp time.Time, base ClockTime, offset ClockOffset) ClockTime {
	return ClockTime(stamp.UnixNano() - int64(offset) - int64(base))
}
