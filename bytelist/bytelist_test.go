package bytelist

import "testing"

func TestAppendAndLen(t *testing.T) {
	l := New()
	l.Append([]byte("abc"))
	l.Append([]byte("de"))
	if l.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", l.Len())
	}
}

func TestGet(t *testing.T) {
	l := New()
	l.Append([]byte("abc"))
	l.Append([]byte("de"))
	want := "abcde"
	for i := 0; i < len(want); i++ {
		if got := l.Get(i); got != want[i] {
			t.Fatalf("Get(%d) = %q, want %q", i, got, want[i])
		}
	}
}

func TestGetOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on out-of-range Get")
		}
	}()
	l := New()
	l.Append([]byte("a"))
	l.Get(5)
}

func TestSublistSharesAndDoesNotCopy(t *testing.T) {
	backing := []byte("hello world")
	l := New()
	l.Append(backing)

	sub := l.Sublist(6, 11)
	if string(sub.Bytes()) != "world" {
		t.Fatalf("Sublist content = %q, want %q", sub.Bytes(), "world")
	}

	// Mutate the shared backing array and confirm the sublist observes it,
	// proving no copy was made.
	backing[6] = 'W'
	if string(sub.Bytes()) != "World" {
		t.Fatalf("expected sublist to share backing array, got %q", sub.Bytes())
	}
}

func TestSublistAcrossChunkBoundary(t *testing.T) {
	l := New()
	l.Append([]byte("abc"))
	l.Append([]byte("def"))
	l.Append([]byte("ghi"))

	sub := l.Sublist(2, 7)
	if string(sub.Bytes()) != "cdefg" {
		t.Fatalf("got %q, want %q", sub.Bytes(), "cdefg")
	}
}

func TestSublistRemainsValidAfterConsume(t *testing.T) {
	l := New()
	l.Append([]byte("abcdef"))
	sub := l.Sublist(2, 4)
	l.Consume(6)
	if string(sub.Bytes()) != "cd" {
		t.Fatalf("sublist invalidated by consume: got %q", sub.Bytes())
	}
}

func TestConsumePartialChunk(t *testing.T) {
	l := New()
	l.Append([]byte("abcdef"))
	l.Consume(2)
	if l.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", l.Len())
	}
	if got := l.Get(0); got != 'c' {
		t.Fatalf("Get(0) after consume = %q, want 'c'", got)
	}
}

func TestConsumeAcrossChunks(t *testing.T) {
	l := New()
	l.Append([]byte("abc"))
	l.Append([]byte("def"))
	l.Append([]byte("ghi"))
	l.Consume(4)
	if l.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", l.Len())
	}
	if string(l.Bytes()) != "efghi" {
		t.Fatalf("Bytes() = %q, want %q", l.Bytes(), "efghi")
	}
}

func TestConsumeAll(t *testing.T) {
	l := New()
	l.Append([]byte("abc"))
	l.Consume(3)
	if l.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", l.Len())
	}
	l.Append([]byte("xyz"))
	if string(l.Bytes()) != "xyz" {
		t.Fatalf("Bytes() after refill = %q", l.Bytes())
	}
}

func TestSublistEmptyRange(t *testing.T) {
	l := New()
	l.Append([]byte("abc"))
	sub := l.Sublist(1, 1)
	if sub.Len() != 0 {
		t.Fatalf("expected empty sublist, got len %d", sub.Len())
	}
}

func TestChunksSharesBackingArrays(t *testing.T) {
	a := []byte("abc")
	b := []byte("def")
	l := New()
	l.Append(a)
	l.Append(b)

	chunks := l.Chunks()
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	a[0] = 'X'
	if chunks[0][0] != 'X' {
		t.Fatalf("expected Chunks() to share backing array with Append'd data")
	}
}

func TestChunksAfterPartialConsume(t *testing.T) {
	l := New()
	l.Append([]byte("abc"))
	l.Append([]byte("def"))
	l.Consume(1)

	var got []byte
	for _, c := range l.Chunks() {
		got = append(got, c...)
	}
	if string(got) != "bcdef" {
		t.Fatalf("Chunks() after consume = %q, want %q", got, "bcdef")
	}
}

func TestCopyOutDoesNotConsume(t *testing.T) {
	l := New()
	l.Append([]byte("abc"))
	l.Append([]byte("def"))

	dst := make([]byte, 4)
	n := l.CopyOut(dst)
	if n != 4 || string(dst) != "abcd" {
		t.Fatalf("CopyOut = %q (n=%d), want %q (n=4)", dst, n, "abcd")
	}
	if l.Len() != 6 {
		t.Fatalf("CopyOut must not consume, Len() = %d, want 6", l.Len())
	}

	l.Consume(4)
	dst2 := make([]byte, 4)
	n2 := l.CopyOut(dst2)
	if n2 != 2 || string(dst2[:2]) != "ef" {
		t.Fatalf("CopyOut after consume = %q (n=%d), want %q (n=2)", dst2[:n2], n2, "ef")
	}
}

func TestAppendEmptyChunkIsNoop(t *testing.T) {
	l := New()
	l.Append(nil)
	l.Append([]byte{})
	if l.Len() != 0 {
		t.Fatalf("expected len 0, got %d", l.Len())
	}
}
