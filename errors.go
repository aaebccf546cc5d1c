package mplex

import "errors"

// Sentinel errors for the conditions spec'd in §7. These are recorded and
// returned unwrapped; use errors.Is to test for them. Errors from the
// underlying connection, frame.ErrInvalidType, and a non-nil cause passed
// to Stream.Abort are recorded as given.
var (
	// ErrMuxerClosed is returned by operations attempted after Close.
	ErrMuxerClosed = errors.New("mplex: multiplexer closed")

	// ErrTooManyOutboundStreams is returned by NewStream when the local
	// initiator cap has been reached.
	ErrTooManyOutboundStreams = errors.New("mplex: too many outbound streams")

	// ErrTooManyOpenStreams tears the whole multiplexer down when a peer
	// keeps opening streams past the inbound cap and then breaches the
	// rate limiter.
	ErrTooManyOpenStreams = errors.New("mplex: too many open streams")

	// ErrStreamReset is the error recorded on a stream ended by a remote
	// RESET_* frame, or delivered locally by Stream.Reset.
	ErrStreamReset = errors.New("mplex: stream reset")

	// ErrStreamAborted is the error recorded on a stream ended by a local
	// Abort call with a nil cause (including Multiplexer.Close).
	ErrStreamAborted = errors.New("mplex: stream aborted")

	// ErrInputBufferFull is recorded on a stream the multiplexer reset
	// because its inbound buffer exceeded maxStreamBufferSize.
	ErrInputBufferFull = errors.New("mplex: input buffer full")

	// ErrDoubleSink means a stream's sink was started twice; a programmer
	// error, raised as a panic value.
	ErrDoubleSink = errors.New("mplex: sink already started")

	// ErrSinkEnded means Write was called after End on the same stream; a
	// programmer error.
	ErrSinkEnded = errors.New("mplex: write after end")
)
