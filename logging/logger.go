package logging

import (
	"go.uber.org/zap"
)

// Logger is the logging interface every bevdet component receives.
type Logger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})

	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})

	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})

	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	// Sublogger returns a logger whose name is this logger's name with subname appended,
	// sharing this logger's appenders.
	Sublogger(subname string) Logger
	// AddAppender adds an output for every entry logged from now on.
	AddAppender(appender Appender)
	SetLevel(level Level)
	GetLevel() Level
	// Sync flushes all appenders.
	Sync() error
	// AsZap returns a zap logger writing to the same zap-compatible appenders.
	AsZap() *zap.SugaredLogger
}
