package bridge

import (
	"github.com/pkg/errors"

	"github.com/clydemcqueen/ros-gst-bridge/internal/rosnet"
)

// Config is the element configuration. Node identity (name and namespace)
// is only mutable while the element is in NULL; the rest is fixed at
// construction.
type Config struct {
	// NodeName is the graph node name. Empty selects the variant's default.
	NodeName string `yaml:"node_name"`
	// NodeNamespace prefixes the node name and relative topics.
	NodeNamespace string `yaml:"node_namespace"`
	// Topic is the stream topic, resolved against the namespace unless it
	// starts with "/".
	Topic string `yaml:"topic"`
	// FrameID is stamped into outbound message headers.
	FrameID string    `yaml:"frame_id"`
	QoS     QoSConfig `yaml:"qos"`
}

// QoSConfig overrides the sensor-data delivery profile.
type QoSConfig struct {
	// Reliability is "best-effort" or "reliable". Empty keeps best-effort.
	Reliability string `yaml:"reliability"`
	// Depth is the history depth. Zero keeps the profile default.
	Depth int `yaml:"depth"`
}

func (c Config) Validate() error {
	if c.Topic == "" {
		return errors.New("bridge: config: topic must not be empty")
	}
	switch c.QoS.Reliability {
	case "", "best-effort", "reliable":
	default:
		return errors.Errorf("bridge: config: unknown reliability %q", c.QoS.Reliability)
	}
	if c.QoS.Depth < 0 {
		return errors.New("bridge: config: qos depth must not be negative")
	}
	return nil
}

// qos resolves the overrides against the sensor-data profile.
func (c Config) qos() rosnet.QoS {
	q := rosnet.SensorDataQoS()
	if c.QoS.Reliability == "reliable" {
		q = q.WithReliable()
	}
	if c.QoS.Depth > 0 {
		q = q.WithDepth(c.QoS.Depth)
	}
	return q
}

// withDefaultNodeName fills in the variant's placeholder name.
func (c Config) withDefaultNodeName(name string) Config {
	if c.NodeName == "" {
		c.NodeName = name
	}
	return c
}
