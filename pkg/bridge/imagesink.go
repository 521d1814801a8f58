package bridge

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/clydemcqueen/ros-gst-bridge/internal/rosnet"
)

// ImageSink publishes raw video frames as typed image messages.
type ImageSink struct {
	mu     sync.Mutex
	pub    *rosnet.Publisher
	format *VideoFormat
	frame  string
	seq    uint64
}

func NewImageSink() *ImageSink { return &ImageSink{} }

func (e *ImageSink) DefaultNodeName() string { return "gst_image_sink_node" }

func (e *ImageSink) Template() Template { return DefaultVideoTemplate() }

func (e *ImageSink) Open(node *rosnet.Node, cfg Config) error {
	pub, err := node.CreatePublisher(cfg.Topic, cfg.qos())
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.pub = pub
	e.frame = cfg.FrameID
	e.seq = 0
	e.mu.Unlock()
	return nil
}

func (e *ImageSink) Negotiate(f Format) error {
	vf, ok := f.(VideoFormat)
	if !ok {
		return errors.Errorf("imagesink: cannot accept %s", f)
	}
	e.mu.Lock()
	e.format = &vf
	e.mu.Unlock()
	return nil
}

func (e *ImageSink) Render(buf Buffer, stamp time.Time) error {
	e.mu.Lock()
	pub, format := e.pub, e.format
	e.seq++
	seq := e.seq
	frame := e.frame
	e.mu.Unlock()

	if pub == nil {
		return &TranslationDrop{Kind: "no_connection", Reason: "publisher not open"}
	}
	if format == nil {
		return &TranslationDrop{Kind: "no_format", Reason: "no format negotiated"}
	}
	msg, err := translateVideoOut(buf, *format, stamp, seq, frame)
	if err != nil {
		return err
	}
	return pub.Publish(msg)
}

func (e *ImageSink) Close() error {
	e.mu.Lock()
	e.pub = nil
	e.format = nil
	e.mu.Unlock()
	return nil
}
