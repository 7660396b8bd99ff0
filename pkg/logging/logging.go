// Package logging provides package-level logging functions backed by
// one configured logrus.Logger, the same call shape as the teacher's
// zero-dependency pkg/logger but routed through a real structured
// logging library.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

var std = logrus.New()

func init() {
	std.SetOutput(os.Stderr)
	std.SetLevel(logrus.InfoLevel)
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetLevel sets the minimum level the package-level functions emit at.
func SetLevel(level logrus.Level) {
	std.SetLevel(level)
}

// SetOutput redirects where log lines are written.
func SetOutput(w interface{ Write([]byte) (int, error) }) {
	std.SetOutput(w)
}

// Logger returns the underlying *logrus.Logger, for callers that want
// to attach it to their own components (e.g. as a *logrus.Entry with
// persistent fields).
func Logger() *logrus.Logger { return std }

// WithField returns an entry pre-populated with one field, typically a
// connection's correlation id.
func WithField(key string, value interface{}) *logrus.Entry {
	return std.WithField(key, value)
}

// Debugf logs at debug level.
func Debugf(format string, args ...interface{}) { std.Debugf(format, args...) }

// Infof logs at info level.
func Infof(format string, args ...interface{}) { std.Infof(format, args...) }

// Warnf logs at warn level.
func Warnf(format string, args ...interface{}) { std.Warnf(format, args...) }

// Errorf logs at error level.
func Errorf(format string, args ...interface{}) { std.Errorf(format, args...) }

// Fatalf logs at fatal level and exits.
func Fatalf(format string, args ...interface{}) { std.Fatalf(format, args...) }
