// Package grpcnet carries the rosnet graph over a gRPC broker. Every
// endpoint holds one bidirectional Attach stream to the broker; the first
// frame declares what the stream is for (a node-name claim, a publisher, or
// a subscriber) and the broker fans published frames out to subscribers.
package grpcnet

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"google.golang.org/grpc/encoding"
)

// codecName selects the frame codec via the gRPC content-subtype.
const codecName = "rosnet-frame"

type frameKind uint8

const (
	frameRegister frameKind = iota + 1
	frameAdvertise
	frameSubscribe
	framePublish
	frameAck
)

// frame is the single wire message of the Attach stream.
type frame struct {
	Kind frameKind
	// Name is a node name for register frames, a topic otherwise.
	Name string
	// Reliability and Depth mirror rosnet.QoS for advertise/subscribe.
	Reliability uint8
	Depth       uint32
	// Payload is a rosmsg-framed message for publish frames.
	Payload []byte
}

func init() {
	encoding.RegisterCodec(frameCodec{})
}

// frameCodec is the gRPC codec for *frame. The broker methods are declared
// with a hand-written service descriptor, so there is no generated protobuf
// type to marshal; the codec writes the frame layout directly.
type frameCodec struct{}

func (frameCodec) Name() string { return codecName }

func (frameCodec) Marshal(v interface{}) ([]byte, error) {
	f, ok := v.(*frame)
	if !ok {
		return nil, errors.Errorf("grpcnet: cannot marshal %T", v)
	}
	buf := []byte{byte(f.Kind), f.Reliability}
	buf = binary.BigEndian.AppendUint32(buf, f.Depth)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.Name)))
	buf = append(buf, f.Name...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.Payload)))
	buf = append(buf, f.Payload...)
	return buf, nil
}

func (frameCodec) Unmarshal(data []byte, v interface{}) error {
	f, ok := v.(*frame)
	if !ok {
		return errors.Errorf("grpcnet: cannot unmarshal into %T", v)
	}
	if len(data) < 14 {
		return errors.New("grpcnet: short frame")
	}
	f.Kind = frameKind(data[0])
	f.Reliability = data[1]
	f.Depth = binary.BigEndian.Uint32(data[2:6])

	nameLen := binary.BigEndian.Uint32(data[6:10])
	rest := data[10:]
	if uint64(nameLen)+4 > uint64(len(rest)) {
		return errors.New("grpcnet: short frame")
	}
	f.Name = string(rest[:nameLen])
	rest = rest[nameLen:]

	payloadLen := binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]
	if uint64(payloadLen) != uint64(len(rest)) {
		return errors.New("grpcnet: frame length mismatch")
	}
	f.Payload = append([]byte(nil), rest...)
	return nil
}
