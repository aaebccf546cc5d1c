package mplex

import (
	"github.com/veilconnect/mplex/internal/logging"
)

// Default option values, per spec §6.
const (
	DefaultMaxMsgSize          = 1 << 20 // 1 MiB
	DefaultMaxInboundStreams   = 1024
	DefaultMaxOutboundStreams  = 1024
	DefaultMaxStreamBufferSize = 4 << 20 // 4 MiB
	DefaultDisconnectThreshold = 5
)

// options holds a Multiplexer's fully-resolved configuration.
type options struct {
	maxMsgSize          int
	maxInboundStreams   int
	maxOutboundStreams  int
	maxStreamBufferSize int
	disconnectThreshold int

	logger           *logging.Logger
	onIncomingStream func(*Stream)
	onStreamEnd      func(*Stream)
}

func defaultOptions() *options {
	return &options{
		maxMsgSize:          DefaultMaxMsgSize,
		maxInboundStreams:   DefaultMaxInboundStreams,
		maxOutboundStreams:  DefaultMaxOutboundStreams,
		maxStreamBufferSize: DefaultMaxStreamBufferSize,
		disconnectThreshold: DefaultDisconnectThreshold,
		logger:              logging.Nop(),
	}
}

// Option configures a Multiplexer at construction time.
type Option func(*options)

// WithMaxMsgSize sets the outbound fragmentation ceiling per MESSAGE_*
// payload.
func WithMaxMsgSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxMsgSize = n
		}
	}
}

// WithMaxInboundStreams caps concurrent receiver-side streams.
func WithMaxInboundStreams(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxInboundStreams = n
		}
	}
}

// WithMaxOutboundStreams caps concurrent initiator-side streams.
func WithMaxOutboundStreams(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOutboundStreams = n
		}
	}
}

// WithMaxStreamBufferSize sets the per-stream readable-buffer ceiling
// before a forced reset.
func WithMaxStreamBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxStreamBufferSize = n
		}
	}
}

// WithDisconnectThreshold sets the rate limiter's capacity and per-second
// refill rate for post-cap NEW_STREAM bursts.
func WithDisconnectThreshold(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.disconnectThreshold = n
		}
	}
}

// WithLogger attaches a structured logger for diagnostics (dropped
// frames, rate-limit trips, fatal teardown reasons). The default is a
// logger that discards everything.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithOnIncomingStream sets the callback invoked after a receiver-side
// stream is created.
func WithOnIncomingStream(fn func(*Stream)) Option {
	return func(o *options) { o.onIncomingStream = fn }
}

// WithOnStreamEnd sets the callback invoked when a stream's both halves
// are ended and it is removed from its registry.
func WithOnStreamEnd(fn func(*Stream)) Option {
	return func(o *options) { o.onStreamEnd = fn }
}
