package frame

import (
	"errors"

	"github.com/veilconnect/mplex/bytelist"
	"github.com/veilconnect/mplex/varint"
)

// ErrInvalidType is fatal: the peer sent a frame whose type byte decodes
// to a value outside 0..6. The connection that produced it must be torn
// down; this error is never swallowed the way a short-input varint is.
var ErrInvalidType = errors.New("frame: invalid message type")

type pendingHeader struct {
	id            uint64
	typ           Type
	payloadOffset int
	payloadLength int
}

// Decoder is a stateful frame reader: feed it arbitrarily sized chunks of
// the wire stream via Write, and it emits every Message that becomes
// complete as a result, in wire order. At any quiescent moment (after
// Write has emitted everything it can from what it has been given so far)
// the internal accumulator holds at most one partial frame's worth of
// bytes.
type Decoder struct {
	acc     *bytelist.List
	pending *pendingHeader
}

// NewDecoder returns a ready-to-use Decoder.
func NewDecoder() *Decoder {
	return &Decoder{acc: bytelist.New()}
}

// Write appends chunk to the accumulator and decodes as many complete
// Messages as are now available, returning them in order. It returns
// ErrInvalidType, without returning any further messages, the first time
// it observes a type outside 0..6 — from that point the Decoder must not
// be reused.
func (d *Decoder) Write(chunk []byte) ([]Message, error) {
	d.acc.Append(chunk)

	var out []Message
	for {
		if d.pending == nil {
			id, typeOff, err := varint.Decode(d.acc, 0)
			if err != nil {
				// Short input: wait for more bytes.
				return out, nil
			}
			typ := Type(id & 0x7)
			streamID := id >> 3
			if !typ.Valid() {
				return out, ErrInvalidType
			}

			length, lengthConsumed, err := varint.Decode(d.acc, typeOff)
			if err != nil {
				return out, nil
			}

			d.pending = &pendingHeader{
				id:            streamID,
				typ:           typ,
				payloadOffset: typeOff + lengthConsumed,
				payloadLength: int(length),
			}
		}

		p := d.pending
		if d.acc.Len()-p.payloadOffset < p.payloadLength {
			return out, nil
		}

		m := Message{ID: p.id, Type: p.typ}
		if p.typ.HasData() {
			m.Data = d.acc.Sublist(p.payloadOffset, p.payloadOffset+p.payloadLength)
		}
		d.acc.Consume(p.payloadOffset + p.payloadLength)
		d.pending = nil
		out = append(out, m)
	}
}
