// Package logger carries the eigensdk logger through the node and fills in a
// silent one wherever a caller passes nil.
package logger

import (
	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
)

type Logger = sdklogging.Logger

// NoOpLogger drops everything. Fatal does not exit.
type NoOpLogger struct{}

func (l *NoOpLogger) Info(msg string, tags ...any)                {}
func (l *NoOpLogger) Infof(template string, args ...interface{})  {}
func (l *NoOpLogger) Debug(msg string, tags ...any)               {}
func (l *NoOpLogger) Debugf(template string, args ...interface{}) {}
func (l *NoOpLogger) Error(msg string, tags ...any)               {}
func (l *NoOpLogger) Errorf(template string, args ...interface{}) {}
func (l *NoOpLogger) Warn(msg string, tags ...any)                {}
func (l *NoOpLogger) Warnf(template string, args ...interface{})  {}
func (l *NoOpLogger) Fatal(msg string, tags ...any)               {}
func (l *NoOpLogger) Fatalf(template string, args ...interface{}) {}
func (l *NoOpLogger) With(tags ...any) Logger                     { return l }

var discard Logger = &NoOpLogger{}

// EnsureLogger returns log, or the no-op logger when log is nil
func EnsureLogger(log Logger) Logger {
	if log == nil {
		return discard
	}
	return log
}

// Component tags every line of log with the subsystem that wrote it:
// dispatch, nonces, feeledger and so on.
func Component(log Logger, name string) Logger {
	return EnsureLogger(log).With("component", name)
}
