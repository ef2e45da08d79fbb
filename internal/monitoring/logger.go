// Package monitoring owns the process-wide logging setup.
//
// Runtime packages log on three streams:
//   - ops: actionable warnings, errors and lifecycle events
//   - diag: day-to-day diagnostics and tuning context
//   - trace: per-frame telemetry
//
// Each package keeps its own prefixed loggers (see the debug.go file in each
// package) and receives its writers from SetLogWriters at startup.
package monitoring

import (
	"fmt"
	"io"
	"log"
	"strings"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// LogWriters holds the io.Writers for each logging stream. A nil writer
// disables the stream.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

// Level selects how many streams are enabled.
type Level int

const (
	LevelOps Level = iota
	LevelDiag
	LevelTrace
)

// ParseLevel parses "ops", "diag" or "trace".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ops":
		return LevelOps, nil
	case "diag":
		return LevelDiag, nil
	case "trace":
		return LevelTrace, nil
	default:
		return LevelOps, fmt.Errorf("unknown log level %q: expected ops, diag or trace", s)
	}
}

// WritersForLevel routes every stream up to and including level to w.
func WritersForLevel(level Level, w io.Writer) LogWriters {
	lw := LogWriters{Ops: w}
	if level >= LevelDiag {
		lw.Diag = w
	}
	if level >= LevelTrace {
		lw.Trace = w
	}
	return lw
}

// NewLogger creates a *log.Logger for a given writer, or returns nil if w is nil.
func NewLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}
