package bridge

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/clydemcqueen/ros-gst-bridge/internal/rosnet"
)

// AudioSink publishes raw interleaved audio buffers as typed audio messages.
type AudioSink struct {
	mu     sync.Mutex
	pub    *rosnet.Publisher
	format *AudioFormat
	frame  string
	seq    uint64
}

func NewAudioSink() *AudioSink { return &AudioSink{} }

func (e *AudioSink) DefaultNodeName() string { return "gst_audio_sink_node" }

func (e *AudioSink) Template() Template { return DefaultAudioTemplate() }

func (e *AudioSink) Open(node *rosnet.Node, cfg Config) error {
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

func (e *AudioSink) Negotiate(f Format) error {
	af, ok := f.(AudioFormat)
	if !ok {
		return errors.Errorf("audiosink: cannot accept %s", f)
	}
	e.mu.Lock()
	e.format = &af
	e.mu.Unlock()
	return nil
}

func (e *AudioSink) Render(buf Buffer, stamp time.Time) error {
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
	msg, err := translateAudioOut(buf, *format, stamp, seq, frame)
	if err != nil {
		return err
	}
	return pub.Publish(msg)
}

func (e *AudioSink) Close() error {
	e.mu.Lock()
	e.pub = nil
	e.format = nil
	e.mu.Unlock()
	return nil
}
