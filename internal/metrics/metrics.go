// Package metrics exposes the bridge's prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BuffersRendered counts buffers successfully translated and handed to
	// the graph transport.
	BuffersRendered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gst_bridge",
		Name:      "buffers_rendered_total",
		Help:      "Buffers translated and published to the graph.",
	}, []string{"node"})

	// BuffersDropped counts buffers discarded without interrupting flow.
	BuffersDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gst_bridge",
		Name:      "buffers_dropped_total",
		Help:      "Buffers dropped instead of translated.",
	}, []string{"node", "reason"})

	// ClockOffsetSamples counts PAUSED→PLAYING offset samples.
	ClockOffsetSamples = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gst_bridge",
		Name:      "clock_offset_samples_total",
		Help:      "Clock offset samples taken on transitions to PLAYING.",
	}, []string{"node"})

	// ClockOffsetSeconds is the last sampled offset between the wall clock
	// and the pipeline clock.
	ClockOffsetSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gst_bridge",
		Name:      "clock_offset_seconds",
		Help:      "Last sampled wall-minus-pipeline clock offset.",
	}, []string{"node"})
)
