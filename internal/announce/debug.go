package announce

import (
	"log"

	"github.com/banshee-data/lanepilot/internal/monitoring"
)

var (
	opsLogger   *log.Logger
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures the three logging streams for the announce package.
// A nil writer disables that stream.
func SetLogWriters(w monitoring.LogWriters) {
	opsLogger = monitoring.NewLogger("[announce] ", w.Ops)
	diagLogger = monitoring.NewLogger("[announce] ", w.Diag)
	traceLogger = monitoring.NewLogger("[announce] ", w.Trace)
}

// opsf logs to the ops stream (actionable warnings, errors, data loss).
func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

// diagf logs to the diag stream (day-to-day diagnostics, tuning context).
func diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}

// tracef logs to the trace stream (high-frequency frame telemetry).
func tracef(format string, args ...interface{}) {
	if traceLogger != nil {
		traceLogger.Printf(format, args...)
	}
}
