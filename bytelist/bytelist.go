// Package bytelist implements an append-only rope of byte chunks: the
// accumulator the frame decoder uses to hold partial frames, and the
// pending-outbound queue a stream uses to fragment writes at maxMsgSize.
//
// Append and Consume are O(1) amortized (Consume is O(number of chunks
// fully discarded)); Sublist shares the underlying chunk slices by
// reference and never copies payload bytes. A List's chunks are treated as
// immutable once appended, so a Sublist taken before a Consume remains
// valid and unchanged after it: Consume only forgets chunks (or trims the
// front chunk's window), it never writes through a chunk's backing array.
package bytelist

// List is a chunk deque representing a contiguous logical byte sequence.
type List struct {
	chunks [][]byte
	// off is how many bytes at the front of chunks[0] have already been
	// logically consumed.
	off int
	// length is the total number of unconsumed bytes across all chunks.
	length int
}

// New returns an empty List.
func New() *List {
	return &List{}
}

// Append takes ownership of chunk by reference and adds it to the end of
// the list. The caller must not mutate chunk afterward.
func (l *List) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	l.chunks = append(l.chunks, chunk)
	l.length += len(chunk)
}

// Len returns the total number of unconsumed bytes in the list.
func (l *List) Len() int {
	return l.length
}

// Get returns the byte at logical offset i. It panics if i is out of
// range, mirroring slice indexing semantics.
func (l *List) Get(i int) byte {
	if i < 0 || i >= l.length {
		panic("bytelist: index out of range")
	}
	pos := i + l.off
	for _, c := range l.chunks {
		if pos < len(c) {
			return c[pos]
		}
		pos -= len(c)
	}
	panic("bytelist: index out of range")
}

// Sublist returns a new List covering the logical half-open range
// [start, end) of the receiver, sharing the underlying chunk backing
// arrays by reference. It performs no byte copies.
func (l *List) Sublist(start, end int) *List {
	if start < 0 || end > l.length || start > end {
		panic("bytelist: invalid sublist range")
	}
	out := &List{}
	if start == end {
		return out
	}

	remainingSkip := start + l.off
	remainingTake := end - start
	for _, c := range l.chunks {
		if remainingSkip >= len(c) {
			remainingSkip -= len(c)
			continue
		}
		avail := len(c) - remainingSkip
		take := avail
		if take > remainingTake {
			take = remainingTake
		}
		out.chunks = append(out.chunks, c[remainingSkip:remainingSkip+take])
		out.length += take
		remainingTake -= take
		remainingSkip = 0
		if remainingTake == 0 {
			break
		}
	}
	return out
}

// Chunks returns the list's content as an ordered slice of byte slices,
// each sharing backing storage with the list's own chunks (no payload
// bytes are copied). The returned [][]byte itself is a fresh allocation;
// only the byte slices it contains are shared.
func (l *List) Chunks() [][]byte {
	if l.length == 0 {
		return nil
	}
	out := make([][]byte, 0, len(l.chunks))
	remainingSkip := l.off
	for _, c := range l.chunks {
		if remainingSkip >= len(c) {
			remainingSkip -= len(c)
			continue
		}
		out = append(out, c[remainingSkip:])
		remainingSkip = 0
	}
	return out
}

// Bytes copies the full logical content of the list into a single new
// slice. Prefer Sublist or Chunks for zero-copy access when a view
// suffices.
func (l *List) Bytes() []byte {
	out := make([]byte, 0, l.length)
	remainingSkip := l.off
	for _, c := range l.chunks {
		if remainingSkip >= len(c) {
			remainingSkip -= len(c)
			continue
		}
		out = append(out, c[remainingSkip:]...)
		remainingSkip = 0
	}
	return out
}

// CopyOut copies up to len(dst) bytes from the front of the list into dst,
// without consuming them, and returns the number of bytes copied. Callers
// that want those bytes removed from the list must follow up with
// Consume(n).
func (l *List) CopyOut(dst []byte) int {
	total := 0
	remainingSkip := l.off
	for _, c := range l.chunks {
		if len(dst) == total {
			break
		}
		if remainingSkip >= len(c) {
			remainingSkip -= len(c)
			continue
		}
		n := copy(dst[total:], c[remainingSkip:])
		total += n
		remainingSkip = 0
	}
	return total
}

// Consume drops the first n bytes of the list, discarding or trimming
// chunks as needed. It panics if n exceeds Len().
func (l *List) Consume(n int) {
	if n < 0 || n > l.length {
		panic("bytelist: consume exceeds length")
	}
	l.length -= n
	for n > 0 {
		c := l.chunks[0]
		avail := len(c) - l.off
		if n < avail {
			l.off += n
			n = 0
			break
		}
		n -= avail
		l.chunks = l.chunks[1:]
		l.off = 0
	}
	if len(l.chunks) == 0 {
		// Release references to fully-drained chunks promptly.
		l.chunks = nil
	}
}
