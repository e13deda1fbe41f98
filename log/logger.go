// Package log is the diagnostic logger of the recorder. Entries are JSON
// objects built through a fluent LogEvent and fanned out to appenders.
//
// It never writes telemetry; recorded streams go through package sink.
package log

import "sync/atomic"

// Logger defines the interface for a logging component, providing methods for structured logging at various levels.
type Logger interface {
	Trace() *LogEvent
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	Fatal() *LogEvent
	GetAppender() []LogAppender
	AddAppender(appender LogAppender)
	OnEventEnd(e *LogEvent)
}

var _defaultLogger atomic.Pointer[JSONLogger]

func init() {
	_defaultLogger.Store(NewLogger(DefaultCfg()))
}

// Initialize configures the default logger with the given configuration.
// A nil cfg selects DefaultCfg. The previous default logger is closed.
func Initialize(cfg *LogCfg) error {
	if cfg == nil {
		cfg = DefaultCfg()
	}
	if err := CheckCfgValid(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	l, err := newLogger(cfg)
	if err != nil {
		return err
	}
	if old := _defaultLogger.Swap(l); old != nil {
		old.Close()
	}
	return nil
}

// Default returns the package-level logger.
func Default() *JSONLogger {
	return _defaultLogger.Load()
}

// SetDefaultLogger replaces the default logger with a custom instance.
func SetDefaultLogger(logger *JSONLogger) {
	_defaultLogger.Store(logger)
}

// AddAppender adds a new log appender to the default logger.
func AddAppender(appender LogAppender) {
	Default().AddAppender(appender)
}

// Refresh blocks until every appender of the default logger has flushed.
func Refresh() {
	Default().Refresh()
}

// Close flushes and closes the default logger and its appenders.
func Close() {
	Default().Close()
}

// Trace creates a trace-level event on the default logger.
func Trace() *LogEvent {
	return Default().Trace()
}

// Debug creates a debug-level event on the default logger.
func Debug() *LogEvent {
	return Default().Debug()
}

// Info creates an info-level event on the default logger.
func Info() *LogEvent {
	return Default().Info()
}

// Warn creates a warn-level event on the default logger.
func Warn() *LogEvent {
	return Default().Warn()
}

// Error creates an error-level event on the default logger.
func Error() *LogEvent {
	return Default().Error()
}

// Fatal creates a fatal-level event on the default logger. The process
// panics once the entry is written.
func Fatal() *LogEvent {
	return Default().Fatal()
}
