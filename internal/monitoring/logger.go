// Package monitoring holds the process-wide diagnostic logger.
package monitoring

import (
	"log"
	"time"
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

// Throughput logs a "[stage] n units in d (rate/s)" line.
func Throughput(stage string, n uint64, unit string, d time.Duration) {
	rate := 0.0
	if d > 0 {
		rate = float64(n) / d.Seconds()
	}
	Logf("[%s] %d %s in %s (%.0f/s)", stage, n, unit, d.Round(time.Millisecond), rate)
}
