package mqttnet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clydemcqueen/ros-gst-bridge/internal/rosnet"
)

func TestMQTTTopicMapping(t *testing.T) {
	g := &Graph{prefix: "rosnet"}
	require.Equal(t, "rosnet/audio", g.mqttTopic("/audio"))
	require.Equal(t, "rosnet/cam/image_raw", g.mqttTopic("/cam/image_raw"))
	require.Equal(t, "rosnet/audio", g.mqttTopic("audio"))
}

func TestMQTTQoSMapping(t *testing.T) {
	require.Equal(t, byte(0), mqttQoS(rosnet.SensorDataQoS()))
	require.Equal(t, byte(1), mqttQoS(rosnet.SensorDataQoS().WithReliable()))
}

func TestRegisterNode_LocalClaims(t *testing.T) {
	g := &Graph{nodes: make(map[string]struct{})}
	require.NoError(t, g.RegisterNode("/talker"))
	require.Error(t, g.RegisterNode("/talker"))
	g.UnregisterNode("/talker")
	require.NoError(t, g.RegisterNode("/talker"))
}
