package log

import (
	"fmt"
	"path/filepath"
)

// LogCfg is the diagnostic logger configuration, decoded from the `log`
// section of the recorder config.
type LogCfg struct {
	// LogPath is the diagnostic log file. Parent directories are created on demand.
	LogPath string `mapstructure:"path"`

	// LogLevel is the minimum level written.
	LogLevel Level `mapstructure:"level"`

	// FileSplitMB rotates the file once it grows past this many megabytes.
	FileSplitMB int `mapstructure:"splitMB"`

	// IsAsync moves file writes onto a background goroutine.
	IsAsync bool `mapstructure:"isAsync"`

	// AsyncCacheSize bounds the number of entries queued in async mode.
	AsyncCacheSize int `mapstructure:"asyncCacheSize"`

	// AsyncWriteMillSec is the async flush period.
	AsyncWriteMillSec int `mapstructure:"asyncWriteMillSec"`

	// CallerSkip is the number of extra stack frames skipped when resolving the caller.
	CallerSkip int `mapstructure:"callerSkip"`

	FileAppender    bool `mapstructure:"fileAppender"`
	ConsoleAppender bool `mapstructure:"consoleAppender"`

	EnabledCallerInfo bool `mapstructure:"enabledCallerInfo"`
}

// GetName returns the config section name.
func (cfg *LogCfg) GetName() string {
	return "log"
}

// Validate checks the configuration for correctness and consistency.
func (cfg *LogCfg) Validate() error {
	if cfg.LogLevel < TraceLevel || cfg.LogLevel > FatalLevel {
		return fmt.Errorf("invalid log level: %d, must be between %d (Trace) and %d (Fatal)",
			cfg.LogLevel, TraceLevel, FatalLevel)
	}

	if cfg.FileSplitMB < 1 || cfg.FileSplitMB > 1024 {
		return fmt.Errorf("file split size must be between 1MB and 1024MB, got %dMB", cfg.FileSplitMB)
	}

	if cfg.IsAsync && cfg.AsyncCacheSize < 1 {
		return fmt.Errorf("async cache size must be at least 1 when async mode is enabled, got %d", cfg.AsyncCacheSize)
	}

	if cfg.IsAsync && cfg.AsyncWriteMillSec < 10 {
		return fmt.Errorf("async write interval must be at least 10ms, got %dms", cfg.AsyncWriteMillSec)
	}

	if cfg.CallerSkip < 0 {
		return fmt.Errorf("caller skip must be non-negative, got %d", cfg.CallerSkip)
	}

	if cfg.FileAppender && cfg.LogPath == "" {
		return fmt.Errorf("log path cannot be empty when file appender is enabled")
	}
	if cfg.LogPath != "" {
		cfg.LogPath = filepath.Clean(cfg.LogPath)
	}

	if !cfg.FileAppender && !cfg.ConsoleAppender {
		return fmt.Errorf("at least one appender (file or console) must be enabled")
	}
	return nil
}

// CheckCfgValid fills zero values with defaults. It never fails; call
// Validate afterwards for range checks.
func CheckCfgValid(cfg *LogCfg) error {
	if len(cfg.LogPath) == 0 {
		cfg.LogPath = "./taglog.log"
	}
	if cfg.LogLevel <= 0 {
		cfg.LogLevel = InfoLevel
	}
	if cfg.FileSplitMB <= 0 {
		cfg.FileSplitMB = 50
	}
	if cfg.IsAsync {
		if cfg.AsyncCacheSize <= 0 {
			cfg.AsyncCacheSize = 1024
		}
		if cfg.AsyncWriteMillSec <= 0 {
			cfg.AsyncWriteMillSec = 200
		}
	}
	return nil
}

// DefaultCfg returns a fresh copy of the default configuration:
// console output only, info level.
func DefaultCfg() *LogCfg {
	return &LogCfg{
		LogPath:           "./taglog.log",
		LogLevel:          InfoLevel,
		FileSplitMB:       50,
		CallerSkip:        1,
		ConsoleAppender:   true,
		EnabledCallerInfo: true,
	}
}
