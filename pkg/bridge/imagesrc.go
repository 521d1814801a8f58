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

// ImageSource subscribes to typed image messages and reconstructs raw video
// frames.
type ImageSource struct {
	mu      sync.Mutex
	sub     *rosnet.Subscription
	logger  *zap.Logger
	fqn     string
	format  *VideoFormat
	deliver func(payload []byte, stamp time.Time)
}

func NewImageSource() *ImageSource { return &ImageSource{} }

func (e *ImageSource) DefaultNodeName() string { return "gst_image_src_node" }

func (e *ImageSource) Template() Template { return DefaultVideoTemplate() }

func (e *ImageSource) SetDeliver(deliver func(payload []byte, stamp time.Time)) {
	e.mu.Lock()
	e.deliver = deliver
	e.mu.Unlock()
}

func (e *ImageSource) Open(node *rosnet.Node, cfg Config) error {
	e.mu.Lock()
	deliver := e.deliver
	e.mu.Unlock()
	if deliver == nil {
		return errors.New("imagesrc: no consumer installed")
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

func (e *ImageSource) Negotiate(f Format) error {
	vf, ok := f.(VideoFormat)
	if !ok {
		return errors.Errorf("imagesrc: cannot accept %s", f)
	}
	e.mu.Lock()
	e.format = &vf
	e.mu.Unlock()
	return nil
}

// onMessage runs on the context dispatch goroutine.
func (e *ImageSource) onMessage(msg rosmsg.Message) {
	e.mu.Lock()
	format, deliver := e.format, e.deliver
	logger, fqn := e.logger, e.fqn
	e.mu.Unlock()
	if format == nil || deliver == nil {
		return
	}
	img, ok := msg.(*rosmsg.Image)
	if !ok {
		logger.Warn("dropping inbound message", zap.String("type", msg.TypeName()))
		metrics.BuffersDropped.WithLabelValues(fqn, "wrong_type").Inc()
		return
	}
	payload, err := translateVideoIn(img, *format)
	if err != nil {
		logger.Warn("dropping inbound message", zap.Error(err))
		metrics.BuffersDropped.WithLabelValues(fqn, dropReason(err)).Inc()
		return
	}
	deliver(payload, img.Header.Stamp)
}

func (e *ImageSource) Close() error {
	e.mu.Lock()
	e.sub = nil
	e.format = nil
	e.mu.Unlock()
	return nil
}
