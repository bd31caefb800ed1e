// Package testlogger routes a protocol session's log output onto the
// testing package's t.Log().
package testlogger

import "testing"

type Logger struct {
	tb testing.TB
}

func New(tb testing.TB) *Logger {
	return &Logger{tb: tb}
}

// Printf implements the log.Logger interface.
func (l *Logger) Printf(msg string, a ...interface{}) {
	l.tb.Helper()
	l.tb.Logf(msg, a...)
}
