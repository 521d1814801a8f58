package bridge

import (
	"fmt"
	"strings"
)

// MediaType distinguishes the two raw-media families the bridge handles.
type MediaType int

const (
	MediaAudio MediaType = iota
	MediaVideo
)

func (m MediaType) String() string {
	if m == MediaVideo {
		return "video/x-raw"
	}
	return "audio/x-raw"
}

// SampleFormat names a raw audio sample layout, e.g. "S16LE".
type SampleFormat string

// Only well behaved formats: fixed width, little-endian or endian-free.
const (
	S8    SampleFormat = "S8"
	U8    SampleFormat = "U8"
	S16LE SampleFormat = "S16LE"
	U16LE SampleFormat = "U16LE"
	S32LE SampleFormat = "S32LE"
	U32LE SampleFormat = "U32LE"
	F32LE SampleFormat = "F32LE"
	F64LE SampleFormat = "F64LE"
)

var sampleWidths = map[SampleFormat]int{
	S8: 1, U8: 1,
	S16LE: 2, U16LE: 2,
	S32LE: 4, U32LE: 4,
	F32LE: 4, F64LE: 8,
}

// Width is the size of one sample in bytes, or 0 for unknown formats.
func (f SampleFormat) Width() int { return sampleWidths[f] }

func (f SampleFormat) Known() bool { return f.Width() > 0 }

// PixelFormat names a raw video pixel layout, e.g. "RGB".
type PixelFormat string

const (
	GRAY8    PixelFormat = "GRAY8"
	GRAY16LE PixelFormat = "GRAY16_LE"
	RGB      PixelFormat = "RGB"
	BGR      PixelFormat = "BGR"
	RGBA     PixelFormat = "RGBA"
	BGRA     PixelFormat = "BGRA"
)

var pixelSizes = map[PixelFormat]int{
	GRAY8: 1, GRAY16LE: 2,
	RGB: 3, BGR: 3,
	RGBA: 4, BGRA: 4,
}

// PixelSize is the size of one pixel in bytes, or 0 for unknown formats.
func (f PixelFormat) PixelSize() int { return pixelSizes[f] }

func (f PixelFormat) Known() bool { return f.PixelSize() > 0 }

// RosEncoding maps a pixel format to its sensor_msgs image encoding name.
func (f PixelFormat) RosEncoding() (string, bool) {
	enc, ok := rosEncodings[f]
	return enc, ok
}

// PixelFormatFromRosEncoding is the inverse of RosEncoding.
func PixelFormatFromRosEncoding(enc string) (PixelFormat, bool) {
	f, ok := gstEncodings[enc]
	return f, ok
}

var rosEncodings = map[PixelFormat]string{
	GRAY8:    "mono8",
	GRAY16LE: "mono16",
	RGB:      "rgb8",
	BGR:      "bgr8",
	RGBA:     "rgba8",
	BGRA:     "bgra8",
}

var gstEncodings = func() map[string]PixelFormat {
	m := make(map[string]PixelFormat, len(rosEncodings))
	for f, enc := range rosEncodings {
		m[enc] = f
	}
	return m
}()

// Fraction is an exact rational, used for framerates.
type Fraction struct {
	Num, Den int
}

func (f Fraction) String() string { return fmt.Sprintf("%d/%d", f.Num, f.Den) }

// less compares two fractions without division.
func (f Fraction) less(g Fraction) bool {
	return int64(f.Num)*int64(g.Den) < int64(g.Num)*int64(f.Den)
}

// IntRange is an inclusive integer range.
type IntRange struct {
	Min, Max int
}

func (r IntRange) contains(v int) bool { return v >= r.Min && v <= r.Max }

func (r IntRange) String() string { return fmt.Sprintf("[%d,%d]", r.Min, r.Max) }

// FractionRange is an inclusive rational range.
type FractionRange struct {
	Min, Max Fraction
}

func (r FractionRange) contains(v Fraction) bool {
	return !v.less(r.Min) && !r.Max.less(v)
}

// Format is a fully fixed media layout, as proposed by the pipeline during
// negotiation. Once accepted it is frozen for the session.
type Format interface {
	Media() MediaType
	String() string
}

// AudioFormat fixes an interleaved raw audio layout.
type AudioFormat struct {
	Encoding SampleFormat
	Rate     int
	Channels int
}

func (f AudioFormat) Media() MediaType { return MediaAudio }

// FrameStep is the size in bytes of one interleaved frame.
func (f AudioFormat) FrameStep() int { return f.Encoding.Width() * f.Channels }

func (f AudioFormat) String() string {
	return fmt.Sprintf("audio/x-raw, format=%s, rate=%d, channels=%d, layout=interleaved",
		f.Encoding, f.Rate, f.Channels)
}

// VideoFormat fixes a raw video frame layout.
type VideoFormat struct {
	Encoding  PixelFormat
	Width     int
	Height    int
	Framerate Fraction
}

func (f VideoFormat) Media() MediaType { return MediaVideo }

// RowStep is the size in bytes of one row of pixels.
func (f VideoFormat) RowStep() int { return f.Encoding.PixelSize() * f.Width }

func (f VideoFormat) String() string {
	return fmt.Sprintf("video/x-raw, format=%s, width=%d, height=%d, framerate=%s",
		f.Encoding, f.Width, f.Height, f.Framerate)
}

// Template is the fixed capability set a bridge variant advertises: a format
// enumeration crossed with numeric ranges. Matching against a template has
// no side effects.
type Template interface {
	Media() MediaType
	Accepts(f Format) bool
	String() string
}

// AudioTemplate advertises acceptable raw audio layouts.
type AudioTemplate struct {
	Encodings []SampleFormat
	Rate      IntRange
	Channels  IntRange
}

func (t AudioTemplate) Media() MediaType { return MediaAudio }

func (t AudioTemplate) Accepts(f Format) bool {
	af, ok := f.(AudioFormat)
	if !ok || !af.Encoding.Known() {
		return false
	}
	found := false
	for _, e := range t.Encodings {
		if e == af.Encoding {
			found = true
			break
		}
	}
	return found && t.Rate.contains(af.Rate) && t.Channels.contains(af.Channels)
}

func (t AudioTemplate) String() string {
	names := make([]string, len(t.Encodings))
	for i, e := range t.Encodings {
		names[i] = string(e)
	}
	return fmt.Sprintf("audio/x-raw, format={ %s }, rate=%s, channels=%s, layout=interleaved",
		strings.Join(names, ", "), t.Rate, t.Channels)
}

// VideoTemplate advertises acceptable raw video layouts.
type VideoTemplate struct {
	Encodings []PixelFormat
	Width     IntRange
	Height    IntRange
	Framerate FractionRange
}

func (t VideoTemplate) Media() MediaType { return MediaVideo }

func (t VideoTemplate) Accepts(f Format) bool {
	vf, ok := f.(VideoFormat)
	if !ok || !vf.Encoding.Known() {
		return false
	}
	found := false
	for _, e := range t.Encodings {
		if e == vf.Encoding {
			found = true
			break
		}
	}
	return found &&
		t.Width.contains(vf.Width) &&
		t.Height.contains(vf.Height) &&
		t.Framerate.contains(vf.Framerate)
}

func (t VideoTemplate) String() string {
	names := make([]string, len(t.Encodings))
	for i, e := range t.Encodings {
		names[i] = string(e)
	}
	return fmt.Sprintf("video/x-raw, format={ %s }, width=%s, height=%s",
		strings.Join(names, ", "), t.Width, t.Height)
}

// DefaultAudioTemplate matches the audio caps the bridge elements advertise.
func DefaultAudioTemplate() AudioTemplate {
	return AudioTemplate{
		Encodings: []SampleFormat{S8, U8, S16LE, U16LE, S32LE, U32LE, F32LE, F64LE},
		Rate:      IntRange{Min: 1, Max: 192000},
		Channels:  IntRange{Min: 1, Max: 64},
	}
}

// DefaultVideoTemplate matches the video caps the bridge elements advertise.
func DefaultVideoTemplate() VideoTemplate {
	return VideoTemplate{
		Encodings: []PixelFormat{GRAY8, GRAY16LE, RGB, BGR, RGBA, BGRA},
		Width:     IntRange{Min: 1, Max: 32767},
		Height:    IntRange{Min: 1, Max: 32767},
		Framerate: FractionRange{Min: Fraction{0, 1}, Max: Fraction{2147483647, 1}},
	}
}

// Negotiate accepts the first proposal satisfying the template, or rejects.
// It is a pure function of its arguments: calling it repeatedly with the
// same inputs yields the same result, so callers may probe before freezing.
func Negotiate(t Template, proposals []Format) (Format, error) {
	for _, f := range proposals {
		if t.Accepts(f) {
			return f, nil
		}
	}
	return nil, &NegotiationReject{Template: t.String(), Proposals: len(proposals)}
}
