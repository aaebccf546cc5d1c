// Package mplex implements a stream multiplexer: many independent,
// ordered, bytewise duplex streams carried over a single underlying
// connection, framed with a varint-prefixed wire codec and a small
// fixed vocabulary of control messages.
package mplex

import (
	"io"
	"strconv"
	"sync"

	"github.com/veilconnect/mplex/frame"
	"github.com/veilconnect/mplex/internal/logging"
	"github.com/veilconnect/mplex/internal/ratelimit"
)

// Multiplexer multiplexes Streams over a single underlying connection. It
// owns exactly one goroutine that reads and dispatches incoming frames;
// all outbound writes are serialized through a dedicated mutex so that
// concurrent Stream.Write calls on different streams never interleave a
// frame's header with another frame's payload.
type Multiplexer struct {
	conn io.ReadWriteCloser
	opts *options

	writeMu sync.Mutex
	enc     *frame.Encoder

	mu         sync.Mutex
	initiators map[uint64]*Stream
	receivers  map[uint64]*Stream
	nextID     uint64
	closed     bool
	closeErr   error

	limiter *ratelimit.KeyedLimiter

	closeOnce sync.Once
	doneCh    chan struct{}
}

// New wraps conn in a Multiplexer. The multiplexer takes ownership of conn:
// it will be closed when the multiplexer is, and must not be used directly
// by the caller afterward. A background goroutine begins reading from conn
// immediately.
func New(conn io.ReadWriteCloser, opts ...Option) *Multiplexer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	m := &Multiplexer{
		conn:       conn,
		opts:       o,
		enc:        frame.NewEncoder(),
		initiators: make(map[uint64]*Stream),
		receivers:  make(map[uint64]*Stream),
		limiter:    ratelimit.New(o.disconnectThreshold, o.disconnectThreshold),
		doneCh:     make(chan struct{}),
	}
	go m.readLoop()
	return m
}

// NewStream opens a new initiator-side stream and announces it to the peer
// with NEW_STREAM. If name is empty, the stream's decimal wire id is used,
// matching what a peer that sent no name for one of its own streams sees.
func (m *Multiplexer) NewStream(name string) (*Stream, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrMuxerClosed
	}
	if len(m.initiators) >= m.opts.maxOutboundStreams {
		m.mu.Unlock()
		return nil, ErrTooManyOutboundStreams
	}
	id := m.nextID
	m.nextID++
	if name == "" {
		name = strconv.FormatUint(id, 10)
	}
	s := newStream(m, id, RoleInitiator, name)
	m.initiators[id] = s
	m.mu.Unlock()

	if err := s.start(); err != nil {
		return nil, err
	}
	return s, nil
}

// Streams returns a snapshot of every stream currently registered,
// initiator- and receiver-side alike. The slice is owned by the caller;
// mutating it has no effect on the multiplexer.
func (m *Multiplexer) Streams() []*Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Stream, 0, len(m.initiators)+len(m.receivers))
	for _, s := range m.initiators {
		out = append(out, s)
	}
	for _, s := range m.receivers {
		out = append(out, s)
	}
	return out
}

// Close tears the multiplexer down cleanly: every live stream is aborted
// with a nil cause, and the underlying connection is closed. Close is
// idempotent; subsequent calls are no-ops returning nil.
func (m *Multiplexer) Close() error {
	return m.closeWithErr(nil)
}

// Done returns a channel that is closed once teardown is complete: every
// live stream has been aborted and the connection closed. It does not wait
// for the read loop goroutine to return.
func (m *Multiplexer) Done() <-chan struct{} {
	return m.doneCh
}

// Err returns the error that caused the multiplexer to close, or nil if it
// was closed cleanly or is still open.
func (m *Multiplexer) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeErr
}

func (m *Multiplexer) closeWithErr(err error) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.closeErr = err
	streams := make([]*Stream, 0, len(m.initiators)+len(m.receivers))
	for _, s := range m.initiators {
		streams = append(streams, s)
	}
	for _, s := range m.receivers {
		streams = append(streams, s)
	}
	m.initiators = make(map[uint64]*Stream)
	m.receivers = make(map[uint64]*Stream)
	m.mu.Unlock()

	for _, s := range streams {
		s.Abort(err)
	}

	closeErr := m.conn.Close()
	m.closeOnce.Do(func() { close(m.doneCh) })

	if err != nil {
		return err
	}
	return closeErr
}

// sendFrame encodes and writes msg, serialized against every other sender
// on this multiplexer. The encoder's header arena is not safe for
// concurrent use, so encoding happens under the same lock as the write.
func (m *Multiplexer) sendFrame(msg frame.Message) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrMuxerClosed
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	for _, chunk := range m.enc.Encode(msg) {
		if len(chunk) == 0 {
			continue
		}
		if _, err := m.conn.Write(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (m *Multiplexer) removeStream(s *Stream) {
	m.mu.Lock()
	if s.role == RoleInitiator {
		delete(m.initiators, s.id)
	} else {
		delete(m.receivers, s.id)
	}
	m.mu.Unlock()
}

// readLoop is the multiplexer's single owning goroutine: it is the only
// reader of conn and the only goroutine that registers receiver-side
// streams. Initiator-side streams are registered by NewStream on the
// caller's goroutine, streams call removeStream from their own goroutines
// once both their halves have ended, and closeWithErr empties both
// registries; all of these go through m.mu.
func (m *Multiplexer) readLoop() {
	dec := frame.NewDecoder()
	for {
		buf := make([]byte, 32*1024)
		n, readErr := m.conn.Read(buf)
		if n > 0 {
			msgs, decErr := dec.Write(buf[:n])
			for _, msg := range msgs {
				m.dispatch(msg)
			}
			if decErr != nil {
				m.opts.logger.Error("invalid frame, closing connection", logging.Fields{"error": decErr.Error()})
				m.closeWithErr(decErr)
				return
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				m.opts.logger.Debug("connection read ended", logging.Fields{"error": readErr.Error()})
			}
			m.closeWithErr(readErr)
			return
		}
	}
}

func (m *Multiplexer) dispatch(msg frame.Message) {
	if msg.Type == frame.NewStream {
		m.handleNewStream(msg)
		return
	}

	m.mu.Lock()
	var s *Stream
	var ok bool
	if msg.Type.IsReceiverFamily() {
		s, ok = m.initiators[msg.ID]
	} else {
		s, ok = m.receivers[msg.ID]
	}
	m.mu.Unlock()
	if !ok {
		m.opts.logger.ForMultiplexer().Debug("frame for unknown stream", logging.Fields{"id": msg.ID, "type": msg.Type.String()})
		return
	}

	switch msg.Type {
	case frame.MessageReceiver, frame.MessageInitiator:
		m.handleMessage(s, msg)
	case frame.CloseReceiver, frame.CloseInitiator:
		_ = s.CloseRead()
	case frame.ResetReceiver, frame.ResetInitiator:
		s.Reset()
	}
}

func (m *Multiplexer) handleNewStream(msg frame.Message) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if _, exists := m.receivers[msg.ID]; exists {
		m.mu.Unlock()
		m.opts.logger.Warn("duplicate NEW_STREAM id", logging.Fields{"id": msg.ID})
		return
	}
	if len(m.receivers) == m.opts.maxInboundStreams {
		m.mu.Unlock()
		m.rejectInboundStream(msg.ID)
		return
	}

	name := strconv.FormatUint(msg.ID, 10)
	if msg.Data != nil && msg.Data.Len() > 0 {
		name = string(msg.Data.Bytes())
	}
	s := newStream(m, msg.ID, RoleReceiver, name)
	m.receivers[msg.ID] = s
	m.mu.Unlock()

	_ = s.start()
	if cb := m.opts.onIncomingStream; cb != nil {
		cb(s)
	}
}

// rejectInboundStream implements the over-cap policy: the offending id
// always gets its own RESET_RECEIVER first, regardless of what happens
// next. Only then is a token charged against the rate limiter; a peer that
// keeps opening streams fast enough to exhaust it gets the whole connection
// torn down on top of that per-id reset.
func (m *Multiplexer) rejectInboundStream(id uint64) {
	m.opts.logger.Warn("inbound stream cap exceeded, resetting new stream", logging.Fields{"id": id})
	_ = m.sendFrame(frame.Message{ID: id, Type: frame.ResetReceiver})

	if !m.limiter.Allow("new-stream") {
		m.opts.logger.Error("inbound stream cap exceeded repeatedly, closing connection", logging.Fields{"id": id})
		m.closeWithErr(ErrTooManyOpenStreams)
	}
}

func (m *Multiplexer) handleMessage(s *Stream, msg frame.Message) {
	if msg.DataLen() == 0 {
		return
	}
	if s.sourceReadableLength() > m.opts.maxStreamBufferSize {
		m.opts.logger.ForStream(s.ID()).Warn("stream input buffer full, resetting", nil)
		s.resetLocally(ErrInputBufferFull)
		_ = m.sendFrame(frame.Message{ID: s.id, Type: s.resetType()})
		return
	}
	s.sourcePush(msg.Data)
}
