package rosmsg

import "time"

const audioTypeName = "audio_msgs/msg/Audio"

// Header carries the stamp and originating frame of a message, mirroring
// std_msgs/Header.
type Header struct {
	Stamp   time.Time
	FrameID string
}

// Audio is a chunk of raw interleaved audio, mirroring audio_msgs/msg/Audio.
type Audio struct {
	Header      Header
	Seq         uint64
	Encoding    string // sample format name, e.g. "S16LE"
	Rate        int
	Channels    int
	Step        int // bytes per interleaved frame: channels * sample width
	Frames      int
	IsBigendian bool
	Data        []byte
}

func (m *Audio) TypeName() string { return audioTypeName }

func (m *Audio) encode(w *writer) {
	w.stamp(m.Header.Stamp)
	w.str(m.Header.FrameID)
	w.u64(m.Seq)
	w.str(m.Encoding)
	w.u32(uint32(m.Rate))
	w.u32(uint32(m.Channels))
	w.u32(uint32(m.Step))
	w.u32(uint32(m.Frames))
	w.bool(m.IsBigendian)
	w.blob(m.Data)
}

func (m *Audio) decode(r *reader) error {
	m.Header.Stamp = r.stamp()
	m.Header.FrameID = r.str()
	m.Seq = r.u64()
	m.Encoding = r.str()
	m.Rate = int(r.u32())
	m.Channels = int(r.u32())
	m.Step = int(r.u32())
	m.Frames = int(r.u32())
	m.IsBigendian = r.bool()
	m.Data = r.blob()
	return r.err
}
