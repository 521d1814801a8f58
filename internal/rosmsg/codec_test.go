package rosmsg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	in := &Audio{
		Header:   Header{Stamp: time.Unix(1700000000, 250), FrameID: "mic"},
		Seq:      42,
		Encoding: "S16LE",
		Rate:     48000,
		Channels: 2,
		Step:     4,
		Frames:   3,
		Data:     []byte{1, 0, 2, 0, 3, 0, 4, 0, 5, 0, 6, 0},
	}

	out, err := Decode(Encode(in))
	require.NoError(t, err)

	got, ok := out.(*Audio)
	require.True(t, ok, "decoded type %T", out)
	assert.Equal(t, in, got)
	assert.True(t, got.Header.Stamp.Equal(in.Header.Stamp))
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	img := Encode(&Image{Encoding: "rgb8", Width: 2, Height: 2, Step: 6, Data: make([]byte, 12)})

	if _, err := Decode(img[:len(img)-3]); err == nil {
		t.Error("expected error for truncated frame")
	}
	if _, err := Decode([]byte("xxxx")); err == nil {
		t.Error("expected error for bad magic")
	}

	bad := append([]byte{}, frameMagic[:]...)
	bad = append(bad, 0, 0, 0, 5, 'b', 'o', 'g', 'u', 's')
	if _, err := Decode(bad); err == nil {
		t.Error("expected error for unknown type name")
	}
}
