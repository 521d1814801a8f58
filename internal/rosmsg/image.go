package rosmsg

const imageTypeName = "sensor_msgs/msg/Image"

// Image is a single raw video frame, mirroring sensor_msgs/msg/Image.
type Image struct {
	Header      Header
	Seq         uint64
	Encoding    string // ros encoding name, e.g. "rgb8"
	Width       int
	Height      int
	Step        int // bytes per row
	IsBigendian bool
	Data        []byte
}

func (m *Image) TypeName() string { return imageTypeName }

func (m *Image) encode(w *writer) {
	w.stamp(m.Header.Stamp)
	w.str(m.Header.FrameID)
	w.u64(m.Seq)
	w.str(m.Encoding)
	w.u32(uint32(m.Width))
	w.u32(uint32(m.Height))
	w.u32(uint32(m.Step))
	w.bool(m.IsBigendian)
	w.blob(m.Data)
}

func (m *Image) decode(r *reader) error {
	m.Header.Stamp = r.stamp()
	m.Header.FrameID = r.str()
	m.Seq = r.u64()
	m.Encoding = r.str()
	m.Width = int(r.u32())
	m.Height = int(r.u32())
	m.Step = int(r.u32())
	m.IsBigendian = r.bool()
	m.Data = r.blob()
	return r.err
}
