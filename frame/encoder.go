package frame

import "github.com/veilconnect/mplex/varint"

// headerPoolSize is the size of each arena block the Encoder carves
// small header chunks from. Correctness does not depend on this value;
// it only affects how often a fresh block is allocated.
const headerPoolSize = 10 * 1024

// headerPoolRefillThreshold is how much free space must remain in the
// current arena before the Encoder reuses it for the next header.
const headerPoolRefillThreshold = 100

// Encoder serializes Messages into the ordered wire chunks that make up
// their encoding. The header chunks it returns are carved from a small
// bump-allocated arena shared across calls, so each header does not get
// its own backing array; payload bytes are never copied.
type Encoder struct {
	pool   []byte
	offset int
}

// NewEncoder returns a ready-to-use Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode serializes m and returns the ordered wire chunks whose
// concatenation is m's encoding: a header chunk, followed by the payload
// chunks (passed through by reference, never copied) when m.Type carries
// data.
func (e *Encoder) Encode(m Message) [][]byte {
	header := varint.Encode(nil, m.ID<<3|uint64(m.Type))

	length := uint64(0)
	if m.Type.HasData() && m.Data != nil {
		length = uint64(m.Data.Len())
	}
	header = varint.Encode(header, length)

	h := e.allocHeader(len(header))
	copy(h, header)

	if length == 0 || !m.Type.HasData() {
		return [][]byte{h}
	}

	data := m.Data.Chunks()
	chunks := make([][]byte, 0, 1+len(data))
	chunks = append(chunks, h)
	// Data's chunks share backing storage with whatever produced them; the
	// encoder passes them straight through, copying no payload bytes.
	chunks = append(chunks, data...)
	return chunks
}

// allocHeader returns an n-byte slice carved from the arena, refilling it
// first if too little room remains.
func (e *Encoder) allocHeader(n int) []byte {
	if e.pool == nil || len(e.pool)-e.offset < headerPoolRefillThreshold {
		size := headerPoolSize
		if n > size {
			size = n
		}
		e.pool = make([]byte, size)
		e.offset = 0
	}
	h := e.pool[e.offset : e.offset+n : e.offset+n]
	e.offset += n
	return h
}
