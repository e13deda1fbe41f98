package log

import (
	"fmt"
	"strings"
)

// Level is the severity of a diagnostic log entry.
// Higher values are more severe; the logger drops everything below its minimum.
type Level int8

const (
	// TraceLevel is per-sample detail, normally disabled while recording.
	TraceLevel Level = iota + 1
	// DebugLevel covers per-batch detail such as flush sizes.
	DebugLevel
	// InfoLevel covers session lifecycle: start, stop, directory creation.
	InfoLevel
	// WarnLevel covers dropped records and rejected submissions.
	WarnLevel
	// ErrorLevel covers failed writes and failed tasks.
	ErrorLevel
	// FatalLevel panics after the entry is written.
	FatalLevel
)

// String returns the upper-case level name.
func (l Level) String() string {
	switch l {
	case TraceLevel:
		return "TRACE"
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name to a Level.
// Unrecognised input yields InfoLevel.
func ParseLevel(levelStr string) Level {
	l, err := parseLevelStrict(levelStr)
	if err != nil {
		return InfoLevel
	}
	return l
}

func parseLevelStrict(levelStr string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "TRACE":
		return TraceLevel, nil
	case "DEBUG":
		return DebugLevel, nil
	case "INFO":
		return InfoLevel, nil
	case "WARN", "WARNING":
		return WarnLevel, nil
	case "ERROR":
		return ErrorLevel, nil
	case "FATAL":
		return FatalLevel, nil
	}
	return 0, fmt.Errorf("unknown log level %q", levelStr)
}

// UnmarshalText lets config decoders accept level names such as "debug".
func (l *Level) UnmarshalText(text []byte) error {
	lv, err := parseLevelStrict(string(text))
	if err != nil {
		return err
	}
	*l = lv
	return nil
}
