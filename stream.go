package mplex

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/veilconnect/mplex/bytelist"
	"github.com/veilconnect/mplex/frame"
)

// Role identifies which side of a stream's id a Stream plays: the peer
// that first emitted NEW_STREAM for a given id is its initiator; the
// other is its receiver.
type Role int

const (
	RoleInitiator Role = iota
	RoleReceiver
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "receiver"
}

// Stream is one logical, ordered, bytewise duplex channel multiplexed
// within a connection. It implements io.Reader, io.Writer and io.Closer.
// A Stream is owned exclusively by the Multiplexer that created it and
// must not be shared across multiplexers.
type Stream struct {
	id   uint64
	role Role
	name string
	mux  *Multiplexer

	openTime time.Time

	mu   sync.Mutex
	cond *sync.Cond

	sourceEnded bool
	sinkEnded   bool
	sinkStarted bool
	destroyed   bool
	endErr      error

	closeTime    time.Time
	hasCloseTime bool

	// One-shot signals inspected only while an in-flight NEW_STREAM send
	// (triggered by start) is racing a local teardown call; see
	// handleStartSendFailure.
	calledClose bool
	calledReset bool
	calledAbort bool

	// readBuf holds inbound bytes pushed by the multiplexer via
	// sourcePush that the application has not yet consumed via Read.
	readBuf *bytelist.List

	// writeMu serializes Write calls on this stream so concurrent callers
	// cannot interleave fragments of two different writes.
	writeMu sync.Mutex
}

func newStream(mux *Multiplexer, id uint64, role Role, name string) *Stream {
	s := &Stream{
		id:       id,
		role:     role,
		name:     name,
		mux:      mux,
		openTime: time.Now(),
		readBuf:  bytelist.New(),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// ID returns the external identifier for the stream: "i<id>" for an
// initiator-side stream, "r<id>" for a receiver-side one. It is unique
// within the owning Multiplexer only.
func (s *Stream) ID() string {
	prefix := "r"
	if s.role == RoleInitiator {
		prefix = "i"
	}
	return fmt.Sprintf("%s%d", prefix, s.id)
}

// Name returns the stream's human-readable name (defaults to the decimal
// wire id if none was supplied at open time).
func (s *Stream) Name() string { return s.name }

// IsInitiator reports whether this side opened the stream.
func (s *Stream) IsInitiator() bool { return s.role == RoleInitiator }

// OpenTime returns when the stream was created.
func (s *Stream) OpenTime() time.Time { return s.openTime }

// CloseTime returns when the stream was fully destroyed (both halves
// ended) and whether that has happened yet.
func (s *Stream) CloseTime() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeTime, s.hasCloseTime
}

// Err returns the error that ended the stream, or nil for a graceful
// close. The first error recorded wins; later ends cannot overwrite it.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endErr
}

func (s *Stream) messageType() frame.Type {
	if s.role == RoleInitiator {
		return frame.MessageInitiator
	}
	return frame.MessageReceiver
}

func (s *Stream) closeType() frame.Type {
	if s.role == RoleInitiator {
		return frame.CloseInitiator
	}
	return frame.CloseReceiver
}

func (s *Stream) resetType() frame.Type {
	if s.role == RoleInitiator {
		return frame.ResetInitiator
	}
	return frame.ResetReceiver
}

// start runs the stream's one-shot construction action: an initiator
// announces itself with NEW_STREAM; a receiver has nothing to announce.
// Calling start twice is a programmer error (DoubleSink) since it can
// only be triggered by this package's own constructors.
func (s *Stream) start() error {
	s.mu.Lock()
	if s.sinkStarted {
		s.mu.Unlock()
		panic(ErrDoubleSink)
	}
	s.sinkStarted = true
	s.mu.Unlock()

	if s.role != RoleInitiator {
		return nil
	}

	err := s.mux.sendFrame(frame.Message{ID: s.id, Type: frame.NewStream, Data: stringToList(s.name)})
	if err == nil {
		return nil
	}
	return s.handleStartSendFailure(err)
}

// handleStartSendFailure implements the translation table from spec §4.5
// / §9: a send failure during start is benign if it was caused by this
// same stream's own close/reset/abort path racing the send; otherwise the
// multiplexer attempts a best-effort RESET_* and the stream ends with the
// real error.
func (s *Stream) handleStartSendFailure(sendErr error) error {
	s.mu.Lock()
	closed, reset, aborted := s.calledClose, s.calledReset, s.calledAbort
	s.mu.Unlock()

	switch {
	case closed:
		return nil
	case reset:
		return ErrStreamReset
	case aborted:
		return ErrStreamAborted
	}

	_ = s.mux.sendFrame(frame.Message{ID: s.id, Type: s.resetType()})
	s.endBothSilently(sendErr)
	return sendErr
}

func stringToList(str string) *bytelist.List {
	l := bytelist.New()
	if len(str) > 0 {
		l.Append([]byte(str))
	}
	return l
}

// Read implements io.Reader. It blocks until data is available, the
// source half has ended (returning io.EOF, or Err() if the end was
// abnormal), or p is zero-length.
func (s *Stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.readBuf.Len() == 0 && !s.sourceEnded {
		s.cond.Wait()
	}
	if s.readBuf.Len() == 0 {
		if s.endErr != nil {
			return 0, s.endErr
		}
		return 0, io.EOF
	}
	n := s.readBuf.CopyOut(p)
	s.readBuf.Consume(n)
	return n, nil
}

// Write implements io.Writer: it fragments p into MESSAGE_* frames of at
// most the multiplexer's maxMsgSize and sends each in turn.
func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	sinkEnded := s.sinkEnded
	endErr := s.endErr
	s.mu.Unlock()
	if sinkEnded {
		if endErr != nil {
			return 0, endErr
		}
		return 0, ErrSinkEnded
	}
	if len(p) == 0 {
		return 0, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	pending := bytelist.New()
	pending.Append(append([]byte(nil), p...))

	maxMsgSize := s.mux.opts.maxMsgSize
	written := 0
	for pending.Len() > 0 {
		n := pending.Len()
		if n > maxMsgSize {
			n = maxMsgSize
		}
		chunk := pending.Sublist(0, n)
		if err := s.mux.sendFrame(frame.Message{ID: s.id, Type: s.messageType(), Data: chunk}); err != nil {
			return written, err
		}
		pending.Consume(n)
		written += n
	}
	return written, nil
}

// CloseRead ends the read half once: it is called both by the
// application and, internally, by the multiplexer when a CLOSE_* frame
// arrives from the peer. It sends no frame.
func (s *Stream) CloseRead() error {
	s.mu.Lock()
	if s.sourceEnded {
		s.mu.Unlock()
		return nil
	}
	s.sourceEnded = true
	s.calledClose = true
	bothEnded := s.sinkEnded
	s.mu.Unlock()
	s.cond.Broadcast()

	if bothEnded {
		s.destroy()
	}
	return nil
}

// CloseWrite ends the write half once, sending CLOSE_* to the peer.
func (s *Stream) CloseWrite() error {
	s.mu.Lock()
	if s.sinkEnded {
		s.mu.Unlock()
		return nil
	}
	s.sinkEnded = true
	s.calledClose = true
	bothEnded := s.sourceEnded
	s.mu.Unlock()

	err := s.mux.sendFrame(frame.Message{ID: s.id, Type: s.closeType()})
	if bothEnded {
		s.destroy()
	}
	return err
}

// End is an alias for CloseWrite, named to match the write-half-ending
// vocabulary used elsewhere for duplex streams.
func (s *Stream) End() error { return s.CloseWrite() }

// Close half-closes both directions locally: equivalent to
// CloseRead() followed by CloseWrite().
func (s *Stream) Close() error {
	_ = s.CloseRead()
	return s.CloseWrite()
}

// Abort is the local error path: it ends both halves immediately with
// err (ErrStreamAborted if err is nil) and does not itself notify the
// peer with any frame.
func (s *Stream) Abort(err error) {
	if err == nil {
		err = ErrStreamAborted
	}
	s.mu.Lock()
	s.calledAbort = true
	s.mu.Unlock()
	s.endBothSilently(err)
}

// Reset ends both halves immediately with ErrStreamReset and sends no
// frame. The multiplexer calls this when the peer sends a RESET_* frame;
// it is also safe to call directly, with the same no-frame behavior.
func (s *Stream) Reset() {
	s.resetLocally(ErrStreamReset)
}

// resetLocally is Reset's implementation, parameterized over the recorded
// error so the multiplexer can tag a buffer-overflow teardown with
// ErrInputBufferFull instead of the generic ErrStreamReset.
func (s *Stream) resetLocally(err error) {
	s.mu.Lock()
	s.calledReset = true
	s.mu.Unlock()
	s.endBothSilently(err)
}

func (s *Stream) endBothSilently(err error) {
	s.mu.Lock()
	if s.endErr == nil {
		s.endErr = err
	}
	alreadyDone := s.sourceEnded && s.sinkEnded
	s.sourceEnded = true
	s.sinkEnded = true
	s.mu.Unlock()
	s.cond.Broadcast()

	if !alreadyDone {
		s.destroy()
	}
}

// destroy is the terminal step once both halves are ended: it is
// idempotent, removes the stream from its multiplexer's registry, and
// invokes the configured onStreamEnd callback.
func (s *Stream) destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.closeTime = time.Now()
	s.hasCloseTime = true
	s.mu.Unlock()

	s.mux.removeStream(s)
	if cb := s.mux.opts.onStreamEnd; cb != nil {
		cb(s)
	}
}

// sourcePush is the multiplexer's narrow control interface into the
// stream's read buffer: it iterates data's chunks and appends each to the
// readable side, by reference.
func (s *Stream) sourcePush(data *bytelist.List) {
	if data == nil || data.Len() == 0 {
		return
	}
	s.mu.Lock()
	for _, c := range data.Chunks() {
		s.readBuf.Append(c)
	}
	s.mu.Unlock()
	s.cond.Broadcast()
}

// sourceReadableLength reports the number of bytes buffered and not yet
// consumed by the application, used by the multiplexer to enforce
// maxStreamBufferSize.
func (s *Stream) sourceReadableLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readBuf.Len()
}
