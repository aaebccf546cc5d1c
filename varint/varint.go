// Package varint implements the unsigned LEB128 integer encoding used by
// the mplex wire format: 7 payload bits per byte, MSB set to signal a
// continuation byte.
//
// Decode reads from a bytelist.List starting at a given byte offset so the
// frame decoder can probe a header without copying or consuming anything
// until it knows a complete varint is present.
package varint

import (
	"errors"

	"github.com/veilconnect/mplex/bytelist"
)

// maxBytes bounds how many continuation bytes Decode will read before
// giving up, matching spec's 10-byte ceiling for a 64-bit-range value.
const maxBytes = 10

// ErrMalformedVarint is returned when the source is exhausted before a
// terminating byte is seen, or when maxBytes bytes have been read without
// termination. Callers that are still accumulating bytes
// (e.g. the frame decoder mid-stream) should treat exhaustion as
// recoverable and simply wait for more input; Decode does not distinguish
// the two cases itself, since it cannot tell "no more bytes will ever
// come" from "not yet".
var ErrMalformedVarint = errors.New("varint: malformed or truncated")

// Encode appends the LEB128 encoding of x to dst and returns the extended
// slice, in the style of append.
func Encode(dst []byte, x uint64) []byte {
	for x >= 0x80 {
		dst = append(dst, byte(x)|0x80)
		x >>= 7
	}
	return append(dst, byte(x))
}

// Size returns the number of bytes Encode would append for x.
func Size(x uint64) int {
	n := 1
	for x >= 0x80 {
		n++
		x >>= 7
	}
	return n
}

// Decode reads one LEB128-encoded value from bl starting at byte offset
// off. It returns the decoded value and the number of bytes consumed.
//
// Unlike a JavaScript implementation, Go's uint64 arithmetic is exact over
// the full range a varint can encode, so there is no need for the
// shift-vs-multiply split spec'd for 53-bit-safe-integer hosts; plain
// shifting is correct here for every representable value.
func Decode(bl *bytelist.List, off int) (value uint64, consumed int, err error) {
	var shift uint
	n := bl.Len()
	for i := 0; i < maxBytes; i++ {
		pos := off + i
		if pos >= n {
			return 0, 0, ErrMalformedVarint
		}
		b := bl.Get(pos)
		value |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, ErrMalformedVarint
}
