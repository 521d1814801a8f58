// Package bridge implements the element core shared by every gst↔graph
// bridging element: the lifecycle controller that opens and closes the graph
// connection in lock-step with pipeline state changes, clock-offset sampling
// between the pipeline clock and the graph's wall clock, capability
// negotiation, and per-buffer timestamp translation.
package bridge

import (
	"time"

	"github.com/clydemcqueen/ros-gst-bridge/internal/rosnet"
)

// Buffer is a chunk of raw media handed to (or produced by) the element,
// with its pipeline-relative presentation timestamp.
type Buffer struct {
	Data     []byte
	PTS      ClockTime
	Duration ClockTime
}

// Endpoint is the per-variant hook set. A concrete endpoint (audio sink,
// image source, ...) creates its publishers or subscriptions in Open,
// destroys them in Close, and learns the session format via Negotiate.
//
// Open and Close are only ever called by the lifecycle controller, from the
// pipeline's transition call; they never race with each other or with the
// render path.
type Endpoint interface {
	// Template is the fixed capability set the variant advertises.
	Template() Template
	// Open creates the variant's endpoints on the node.
	Open(node *rosnet.Node, cfg Config) error
	// Negotiate freezes the session format. The format has already been
	// checked against Template.
	Negotiate(f Format) error
	// Close destroys the variant's endpoints. Best effort; errors are
	// logged by the controller, never propagated.
	Close() error
	// DefaultNodeName is the placeholder node name for this variant.
	DefaultNodeName() string
}

// SinkEndpoint renders buffers into the graph.
type SinkEndpoint interface {
	Endpoint
	// Render translates the buffer to a typed message stamped with the
	// given wall-clock time and publishes it.
	Render(buf Buffer, stamp time.Time) error
}

// SourceEndpoint turns inbound graph messages into raw payloads.
type SourceEndpoint interface {
	Endpoint
	// SetDeliver installs the element's consumer. Must be called before
	// Open; the endpoint hands each inbound payload and its wall-clock
	// stamp to the callback.
	SetDeliver(func(payload []byte, stamp time.Time))
}
