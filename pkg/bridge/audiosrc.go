package bridge

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/clydemcqueen/ros-gst-bridge/internal/metrics"
	"github.com/clydemcqueen/ros-gst-bridge/internal/rosmsg"
	"github.com/clydemcqueen/ros-gst-bridge/internal/rosnet"
)

// AudioSource subscribes to typed audio messages and reconstructs raw
// interleaved buffers.
type AudioSource struct {
	mu      sync.Mutex
	sub     *rosnet.Subscription
	logger  *zap.Logger
	fqn     string
	format  *AudioFormat
	deliver func(payload []byte, stamp time.Time)
}

func NewAudioSource() *AudioSource { return &AudioSource{} }

func (e *AudioSource) DefaultNodeName() string { return "gst_audio_src_node" }

func (e *AudioSource) Template() Template { return DefaultAudioTemplate() }

func (e *AudioSource) SetDeliver(deliver func(payload []byte, stamp time.Time)) {
	e.mu.Lock()
	e.deliver = deliver
	e.mu.Unlock()
}

func (e *AudioSource) Open(node *rosnet.Node, cfg Config) error {
	e.mu.Lock()
	deliver := e.deliver
	e.mu.Unlock()
	if deliver == nil {
		return errors.New("audiosrc: no consumer installed")
	}

	sub, err := node.CreateSubscription(cfg.Topic, cfg.qos(), e.onMessage)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.sub = sub
	e.logger = node.Logger()
	e.fqn = node.FullyQualifiedName()
	e.mu.Unlock()
	return nil
}

func (e *AudioSource) Negotiate(f Format) error {
	af, ok := f.(AudioFormat)
	if !ok {
		return errors.Errorf("audiosrc: cannot accept %s", f)
	}
	e.mu.Lock()
	e.format = &af
	e.mu.Unlock()
	return nil
}

// onMessage runs on the context dispatch goroutine.
func (e *AudioSource) onMessage(msg rosmsg.Message) {
	e.mu.Lock()
	format, deliver := e.format, e.deliver
	logger, fqn := e.logger, e.fqn
	e.mu.Unlock()
	if format == nil || deliver == nil {
		return
	}
	audio, ok := msg.(*rosmsg.Audio)
	if !ok {
		logger.Warn("dropping inbound message", zap.String("type", msg.TypeName()))
		metrics.BuffersDropped.WithLabelValues(fqn, "wrong_type").Inc()
		return
	}
	payload, err := translateAudioIn(audio, *format)
	if err != nil {
		logger.Warn("dropping inbound message", zap.Error(err))
		metrics.BuffersDropped.WithLabelValues(fqn, dropReason(err)).Inc()
		return
	}
	deliver(payload, audio.Header.Stamp)
}

func (e *AudioSource) Close() error {
	e.mu.Lock()
	e.sub = nil
	e.format = nil
	e.mu.Unlock()
	return nil
}
