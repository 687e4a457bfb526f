// Package splog is the logging facade used throughout the socket
// core, transports, and protocol packages: a small interface over
// cihub/seelog so call sites depend on T rather than the concrete
// logging library, and so tests can substitute a no-op or
// buffer-capturing implementation.
package splog

// T is implemented by anything capable of leveled, printf-style
// logging and of deriving a child logger tagged with extra context
// (e.g. a pipe id or socket name) that prefixes every message it logs.
type T interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})

	// WithContext returns a logger that prefixes every message with
	// the given tags, e.g. log.WithContext("pipe", "7").
	WithContext(tags ...string) T

	// Flush blocks until all buffered messages have been written.
	Flush()
}
