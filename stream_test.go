package mplex

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/veilconnect/mplex/bytelist"
)

// discardConn is a minimal io.ReadWriteCloser whose Read blocks forever
// (until Close), letting unit tests exercise a single Stream without
// driving an actual readLoop dispatch cycle.
type discardConn struct {
	mu     sync.Mutex
	closed bool
	writes [][]byte
	block  chan struct{}
}

func newDiscardConn() *discardConn {
	return &discardConn{block: make(chan struct{})}
}

func (c *discardConn) Read(p []byte) (int, error) {
	<-c.block
	return 0, io.EOF
}

func (c *discardConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, errors.New("discardConn: write after close")
	}
	cp := append([]byte(nil), p...)
	c.writes = append(c.writes, cp)
	return len(p), nil
}

func (c *discardConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.block)
	}
	return nil
}

func (c *discardConn) allWrites() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []byte
	for _, w := range c.writes {
		out = append(out, w...)
	}
	return out
}

func newTestMux(opts ...Option) (*Multiplexer, *discardConn) {
	conn := newDiscardConn()
	return New(conn, opts...), conn
}

func TestNewStreamSendsNewStreamFrame(t *testing.T) {
	m, conn := newTestMux()
	defer m.Close()

	s, err := m.NewStream("greeter")
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if s.Name() != "greeter" {
		t.Fatalf("Name() = %q, want %q", s.Name(), "greeter")
	}
	if !s.IsInitiator() {
		t.Fatalf("expected initiator stream")
	}

	wire := conn.allWrites()
	if len(wire) == 0 {
		t.Fatalf("expected a NEW_STREAM frame on the wire")
	}
}

func TestNewStreamDefaultNameIsDecimalID(t *testing.T) {
	m, _ := newTestMux()
	defer m.Close()

	s, err := m.NewStream("")
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if s.Name() != "0" {
		t.Fatalf("Name() = %q, want %q", s.Name(), "0")
	}
}

func TestWriteFragmentsAtMaxMsgSize(t *testing.T) {
	m, conn := newTestMux(WithMaxMsgSize(4))
	defer m.Close()

	s, err := m.NewStream("s")
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}

	payload := []byte("0123456789")
	n, err := s.Write(payload)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("Write returned %d, want %d", n, len(payload))
	}

	// The NEW_STREAM frame plus three fragments (4+4+2 bytes) must all be
	// on the wire; since frame headers interleave with them, we only assert
	// that the first fragment ("0123") and the last ("89") appear.
	wire := conn.allWrites()
	if !bytes.Contains(wire, []byte("0123")) || !bytes.Contains(wire, []byte("89")) {
		t.Fatalf("expected fragmented payload on wire, got % x", wire)
	}
}

func TestReadBlocksThenDeliversPushedData(t *testing.T) {
	m, _ := newTestMux()
	defer m.Close()

	s, err := m.NewStream("s")
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}

	done := make(chan struct{})
	var n int
	var readErr error
	buf := make([]byte, 16)
	go func() {
		n, readErr = s.Read(buf)
		close(done)
	}()

	l := bytelist.New()
	l.Append([]byte("hello"))
	s.sourcePush(l)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Read did not return after sourcePush")
	}
	if readErr != nil {
		t.Fatalf("Read error: %v", readErr)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("Read() = %q, want %q", buf[:n], "hello")
	}
}

func TestReadReturnsEOFAfterSourceEnded(t *testing.T) {
	m, _ := newTestMux()
	defer m.Close()

	s, err := m.NewStream("s")
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	_ = s.CloseRead()

	buf := make([]byte, 4)
	n, err := s.Read(buf)
	if n != 0 || err != io.EOF {
		t.Fatalf("Read() = (%d, %v), want (0, io.EOF)", n, err)
	}
}

func TestReadReturnsQueuedDataBeforeEOF(t *testing.T) {
	m, _ := newTestMux()
	defer m.Close()

	s, err := m.NewStream("s")
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}

	l := bytelist.New()
	l.Append([]byte("buffered"))
	s.sourcePush(l)
	_ = s.CloseRead()

	buf := make([]byte, 8)
	n, err := s.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "buffered" {
		t.Fatalf("Read() = %q, want %q", buf[:n], "buffered")
	}

	n, err = s.Read(buf)
	if n != 0 || err != io.EOF {
		t.Fatalf("second Read() = (%d, %v), want (0, io.EOF)", n, err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	m, _ := newTestMux()
	defer m.Close()

	s, err := m.NewStream("s")
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestWriteAfterCloseWriteFails(t *testing.T) {
	m, _ := newTestMux()
	defer m.Close()

	s, err := m.NewStream("s")
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if err := s.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite: %v", err)
	}
	if _, err := s.Write([]byte("x")); !errors.Is(err, ErrSinkEnded) {
		t.Fatalf("Write after CloseWrite = %v, want ErrSinkEnded", err)
	}
}

func TestResetEndsBothHalvesWithErrStreamReset(t *testing.T) {
	m, _ := newTestMux()
	defer m.Close()

	s, err := m.NewStream("s")
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	s.Reset()

	if !errors.Is(s.Err(), ErrStreamReset) {
		t.Fatalf("Err() = %v, want ErrStreamReset", s.Err())
	}
	buf := make([]byte, 1)
	if _, err := s.Read(buf); !errors.Is(err, ErrStreamReset) {
		t.Fatalf("Read() after Reset = %v, want ErrStreamReset", err)
	}
	if _, err := s.Write([]byte("x")); !errors.Is(err, ErrStreamReset) {
		t.Fatalf("Write() after Reset = %v, want ErrStreamReset", err)
	}
}

func TestAbortRecordsGivenError(t *testing.T) {
	m, _ := newTestMux()
	defer m.Close()

	s, err := m.NewStream("s")
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	cause := errors.New("boom")
	s.Abort(cause)

	if !errors.Is(s.Err(), cause) {
		t.Fatalf("Err() = %v, want %v", s.Err(), cause)
	}
}

func TestCloseTimeSetOnceBothHalvesEnd(t *testing.T) {
	m, _ := newTestMux()
	defer m.Close()

	s, err := m.NewStream("s")
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if _, ok := s.CloseTime(); ok {
		t.Fatalf("CloseTime reported set before either half ended")
	}
	_ = s.CloseRead()
	if _, ok := s.CloseTime(); ok {
		t.Fatalf("CloseTime reported set after only one half ended")
	}
	_ = s.CloseWrite()
	if _, ok := s.CloseTime(); !ok {
		t.Fatalf("CloseTime not set after both halves ended")
	}
}

func TestDoubleStartPanics(t *testing.T) {
	m, _ := newTestMux()
	defer m.Close()

	s, err := m.NewStream("s")
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on double start")
		}
	}()
	_ = s.start()
}

func TestIDReflectsRole(t *testing.T) {
	m, _ := newTestMux()
	defer m.Close()

	s, err := m.NewStream("s")
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if s.ID() != "i0" {
		t.Fatalf("ID() = %q, want %q", s.ID(), "i0")
	}

	r := newStream(m, 7, RoleReceiver, "7")
	if r.ID() != "r7" {
		t.Fatalf("ID() = %q, want %q", r.ID(), "r7")
	}
}
