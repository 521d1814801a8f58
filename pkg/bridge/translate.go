package bridge

import (
	"fmt"
	"time"

	"github.com/clydemcqueen/ros-gst-bridge/internal/rosmsg"
)

// translateAudioOut reinterprets a raw buffer as interleaved audio in the
// negotiated format and packages it as a typed message.
func translateAudioOut(buf Buffer, f AudioFormat, stamp time.Time, seq uint64, frameID string) (*rosmsg.Audio, error) {
	step := f.FrameStep()
	if step == 0 {
		return nil, &TranslationDrop{Kind: "bad_format", Reason: "unknown sample format " + string(f.Encoding)}
	}
	if len(buf.Data)%step != 0 {
		return nil, &TranslationDrop{
			Kind:   "bad_payload",
			Reason: fmt.Sprintf("payload of %d bytes is not a whole number of %d-byte frames", len(buf.Data), step),
		}
	}
	return &rosmsg.Audio{
		Header:   rosmsg.Header{Stamp: stamp, FrameID: frameID},
		Seq:      seq,
		Encoding: string(f.Encoding),
		Rate:     f.Rate,
		Channels: f.Channels,
		Step:     step,
		Frames:   len(buf.Data) / step,
		Data:     buf.Data,
	}, nil
}

// translateAudioIn is the structural mirror, reconstructing a raw payload
// from an inbound message. The message must match the negotiated format.
func translateAudioIn(msg *rosmsg.Audio, f AudioFormat) ([]byte, error) {
	if msg.Encoding != string(f.Encoding) || msg.Rate != f.Rate || msg.Channels != f.Channels {
		return nil, &TranslationDrop{
			Kind:   "format_mismatch",
			Reason: fmt.Sprintf("message format %s/%d/%d does not match negotiated %s", msg.Encoding, msg.Rate, msg.Channels, f),
		}
	}
	if msg.IsBigendian {
		return nil, &TranslationDrop{Kind: "format_mismatch", Reason: "big-endian payloads are not supported"}
	}
	if msg.Step > 0 && len(msg.Data) != msg.Step*msg.Frames {
		return nil, &TranslationDrop{
			Kind:   "bad_payload",
			Reason: fmt.Sprintf("payload of %d bytes does not match %d frames of %d bytes", len(msg.Data), msg.Frames, msg.Step),
		}
	}
	return msg.Data, nil
}

// translateVideoOut reinterprets a raw buffer as one video frame in the
// negotiated format.
func translateVideoOut(buf Buffer, f VideoFormat, stamp time.Time, seq uint64, frameID string) (*rosmsg.Image, error) {
	step := f.RowStep()
	if step == 0 {
		return nil, &TranslationDrop{Kind: "bad_format", Reason: "unknown pixel format " + string(f.Encoding)}
	}
	if len(buf.Data) != step*f.Height {
		return nil, &TranslationDrop{
			Kind:   "bad_payload",
			Reason: fmt.Sprintf("payload of %d bytes is not a %dx%d %s frame", len(buf.Data), f.Width, f.Height, f.Encoding),
		}
	}
	enc, ok := f.Encoding.RosEncoding()
	if !ok {
		return nil, &TranslationDrop{Kind: "bad_format", Reason: "no graph encoding for " + string(f.Encoding)}
	}
	return &rosmsg.Image{
		Header:   rosmsg.Header{Stamp: stamp, FrameID: frameID},
		Seq:      seq,
		Encoding: enc,
		Width:    f.Width,
		Height:   f.Height,
		Step:     step,
		Data:     buf.Data,
	}, nil
}

// translateVideoIn reconstructs a raw frame from an inbound image message.
func translateVideoIn(msg *rosmsg.Image, f VideoFormat) ([]byte, error) {
	enc, ok := f.Encoding.RosEncoding()
	if !ok || msg.Encoding != enc || msg.Width != f.Width || msg.Height != f.Height {
		return nil, &TranslationDrop{
			Kind:   "format_mismatch",
			Reason: fmt.Sprintf("message format %s %dx%d does not match negotiated %s", msg.Encoding, msg.Width, msg.Height, f),
		}
	}
	if len(msg.Data) != f.RowStep()*f.Height {
		return nil, &TranslationDrop{
			Kind:   "bad_payload",
			Reason: fmt.Sprintf("payload of %d bytes is not a %dx%d %s frame", len(msg.Data), f.Width, f.Height, f.Encoding),
		}
	}
	return msg.Data, nil
}
