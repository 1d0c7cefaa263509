// Package monitoring holds the process-wide diagnostic logger.
package monitoring

import "log"

// Logf is the package-level diagnostic logger, defaulting to log.Printf.
// Frame-level skip/decode chatter goes through Logf so the CLI and tests
// can mute it without losing operational logging.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Mute silences the logger and returns a function restoring the previous
// one; intended for tests that exercise noisy inputs.
func Mute() (restore func()) {
	prev := Logf
	Logf = func(string, ...interface{}) {}
	return func() { Logf = prev }
}
