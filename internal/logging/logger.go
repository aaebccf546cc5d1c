// Package logging provides the small structured logger used for the
// diagnostic output of the mplex multiplexer (dropped frames, rate-limit
// trips, fatal teardown reasons). It is deliberately minimal: one JSON
// object per line, level-gated, with no third-party dependency.
//
// Because a single Multiplexer's diagnostics are emitted from many
// goroutines at once (the read loop, and every Stream tearing itself down
// concurrently), each line carries a process-wide monotonic sequence number
// in addition to its timestamp, so a log aggregator can recover causal
// order even when two lines share a timestamp.
package logging

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var seq uint64

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	levelSilent
)

func ParseLevel(input string) Level {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Fields is a bag of structured context attached to a single log line.
type Fields map[string]interface{}

type Logger struct {
	mu    sync.Mutex
	level Level
	base  Fields
	log   *log.Logger
}

func New(level Level, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	return &Logger{
		level: level,
		base:  Fields{},
		log:   log.New(output, "", 0),
	}
}

// Nop returns a logger that discards everything. It is the default used by
// a Multiplexer constructed without an explicit WithLogger option.
func Nop() *Logger {
	return New(levelSilent, io.Discard)
}

// ForStream returns a child logger with the stream's external id baked in
// as a structured field, used for diagnostics the multiplexer emits about
// one specific stream (buffer-full resets).
func (l *Logger) ForStream(id string) *Logger {
	return l.With(Fields{"stream": id})
}

// ForMultiplexer returns a child logger tagged as the multiplexer's own
// component, so a caller sharing one Logger across its own code and a
// Multiplexer can tell which diagnostics came from which.
func (l *Logger) ForMultiplexer() *Logger {
	return l.With(Fields{"component": "mplex"})
}

func (l *Logger) With(fields Fields) *Logger {
	child := &Logger{
		level: l.level,
		log:   l.log,
		base:  make(Fields, len(l.base)+len(fields)),
	}
	for k, v := range l.base {
		child.base[k] = v
	}
	for k, v := range fields {
		child.base[k] = v
	}
	return child
}

func (l *Logger) logf(level Level, msg string, fields Fields) {
	if level < l.level {
		return
	}
	payload := make(Fields, len(l.base)+len(fields)+3)
	for k, v := range l.base {
		payload[k] = v
	}
	for k, v := range fields {
		payload[k] = v
	}
	payload["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	payload["seq"] = atomic.AddUint64(&seq, 1)
	payload["level"] = levelString(level)
	payload["message"] = msg
	data, err := json.Marshal(payload)
	if err != nil {
		l.mu.Lock()
		l.log.Printf("{\"level\":\"error\",\"message\":\"log marshal failed\",\"error\":%q}", err.Error())
		l.mu.Unlock()
		return
	}
	l.mu.Lock()
	l.log.Println(string(data))
	l.mu.Unlock()
}

func levelString(level Level) string {
	switch level {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l *Logger) Debug(msg string, fields Fields) { l.logf(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields Fields)  { l.logf(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields Fields)  { l.logf(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields Fields) { l.logf(LevelError, msg, fields) }

func (l *Logger) SetLevel(level Level) {
	l.level = level
}
