// Package rosmsg defines the typed messages the bridge exchanges with the
// runtime graph, and the wire framing used by the remote graph transports.
package rosmsg

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/pkg/errors"
)

// Message is a typed graph message. Concrete types register themselves with
// the frame codec so transports can reconstruct them by type name.
type Message interface {
	TypeName() string
	encode(w *writer)
	decode(r *reader) error
}

var frameMagic = [4]byte{'r', 'g', 'b', '1'}

var registry = map[string]func() Message{
	audioTypeName: func() Message { return &Audio{} },
	imageTypeName: func() Message { return &Image{} },
}

// Encode frames a message for transport: magic, type name, then the
// message's own field layout. All integers are big-endian.
func Encode(msg Message) []byte {
	w := &writer{}
	w.bytes(frameMagic[:])
	w.str(msg.TypeName())
	msg.encode(w)
	return w.buf
}

// Decode reconstructs a framed message, dispatching on the embedded type name.
func Decode(b []byte) (Message, error) {
	r := &reader{buf: b}
	var magic [4]byte
	r.read(magic[:])
	if r.err == nil && magic != frameMagic {
		return nil, errors.New("rosmsg: bad frame magic")
	}
	name := r.str()
	if r.err != nil {
		return nil, errors.Wrap(r.err, "rosmsg: bad frame header")
	}
	ctor, ok := registry[name]
	if !ok {
		return nil, errors.Errorf("rosmsg: unknown message type %q", name)
	}
	msg := ctor()
	if err := msg.decode(r); err != nil {
		return nil, errors.Wrapf(err, "rosmsg: decoding %s", name)
	}
	return msg, nil
}

// writer accumulates frame fields. Encoding cannot fail, so unlike the
// reader it carries no error state.
type writer struct {
	buf []byte
}

func (w *writer) bytes(b []byte) { w.buf = append(w.buf, b...) }
func (w *writer) u8(v uint8)     { w.buf = append(w.buf, v) }
func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}
func (w *writer) u32(v uint32)      { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64)      { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }
func (w *writer) i64(v int64)       { w.u64(uint64(v)) }
func (w *writer) str(s string)      { w.u32(uint32(len(s))); w.bytes([]byte(s)) }
func (w *writer) blob(b []byte)     { w.u32(uint32(len(b))); w.bytes(b) }
func (w *writer) stamp(t time.Time) { w.i64(t.UnixNano()) }

type reader struct {
	buf []byte
	off int
	err error
}

var errShortFrame = errors.New("rosmsg: frame truncated")

func (r *reader) read(dst []byte) {
	if r.err != nil {
		return
	}
	if r.off+len(dst) > len(r.buf) {
		r.err = errShortFrame
		return
	}
	copy(dst, r.buf[r.off:])
	r.off += len(dst)
}

func (r *reader) u8() uint8 {
	var b [1]byte
	r.read(b[:])
	return b[0]
}

func (r *reader) bool() bool { return r.u8() != 0 }

func (r *reader) u32() uint32 {
	var b [4]byte
	r.read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

func (r *reader) u64() uint64 {
	var b [8]byte
	r.read(b[:])
	return binary.BigEndian.Uint64(b[:])
}

func (r *reader) i64() int64 { return int64(r.u64()) }

func (r *reader) str() string {
	n := r.u32()
	if r.err != nil {
		return ""
	}
	if uint64(n) > uint64(len(r.buf)-r.off) {
		r.err = errShortFrame
		return ""
	}
	b := make([]byte, n)
	r.read(b)
	return string(b)
}

func (r *reader) blob() []byte {
	n := r.u32()
	if r.err != nil {
		return nil
	}
	if uint64(n) > uint64(len(r.buf)-r.off) || n > math.MaxInt32 {
		r.err = errShortFrame
		return nil
	}
	b := make([]byte, n)
	r.read(b)
	return b
}

func (r *reader) stamp() time.Time {
	ns := r.i64()
	return time.Unix(0, ns)
}
