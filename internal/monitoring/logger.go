// Package monitoring holds the process-wide operational logger and the
// stream throughput counters reported by the command-line tools.
package monitoring

import "log"

// Logf is the package-level diagnostic logger used by frame sinks and
// ingest paths that cannot return errors to their caller. It defaults to
// log.Printf but may be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
