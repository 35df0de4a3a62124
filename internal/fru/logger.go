package fru

import (
	"log"
	"os"
)

// Logger receives the non-fatal diagnostics the codec emits while tolerating
// lenient producers (gaps between areas, nonzero padding, out-of-range enum
// bytes). Hard failures are returned as errors, never logged.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

type stderrLogger struct {
	l *log.Logger
}

func (s stderrLogger) Infof(format string, args ...interface{}) {
	s.l.Printf("Inf: "+format, args...)
}

func (s stderrLogger) Warnf(format string, args ...interface{}) {
	s.l.Printf("Wrn: "+format, args...)
}

// StderrLogger logs to standard error, one line per message.
func StderrLogger() Logger {
	return stderrLogger{l: log.New(os.Stderr, "", 0)}
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{}) {}
func (nopLogger) Warnf(string, ...interface{}) {}

// NopLogger discards all diagnostics.
func NopLogger() Logger {
	return nopLogger{}
}
