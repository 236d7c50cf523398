// Package monitoring holds the diagnostic logger and the Prometheus
// collector for reconstruction runs.
package monitoring

import (
	"fmt"
	"log"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger; tests usually mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Component returns a logger that prefixes every line with "[name] " and
// forwards to whatever Logf is installed at call time.
func Component(name string) func(format string, v ...interface{}) {
	prefix := fmt.Sprintf("[%s] ", name)
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
