package log

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// JSONLogger is the standard Logger implementation. Each entry is one JSON
// object per line carrying time, level, optional caller and the fields added
// through the LogEvent chain.
//
// Example usage:
//
//	logger := NewLogger(&LogCfg{LogLevel: InfoLevel, ConsoleAppender: true})
//	logger.Info().Str("stream", "imu").Int("lines", 101).Msg("batch flushed")
type JSONLogger struct {
	appenders         []LogAppender
	appenderLock      sync.RWMutex
	minLevel          atomic.Int32
	callerSkip        int
	eventPool         *sync.Pool
	callerCache       sync.Map
	enabledCallerInfo bool
}

// NewLogger creates a JSONLogger from cfg, falling back to DefaultCfg when
// cfg is nil. It panics if the file appender cannot be opened; use
// Initialize for an error-returning variant.
func NewLogger(cfg *LogCfg) *JSONLogger {
	if cfg == nil {
		cfg = DefaultCfg()
	}
	l, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	return l
}

func newLogger(cfg *LogCfg) (*JSONLogger, error) {
	logger := &JSONLogger{
		callerSkip:        cfg.CallerSkip,
		enabledCallerInfo: cfg.EnabledCallerInfo,
	}
	logger.minLevel.Store(int32(cfg.LogLevel))
	logger.eventPool = &sync.Pool{
		New: func() any {
			return newEvent(logger)
		},
	}

	if cfg.FileAppender {
		fa, err := newFileAppender(cfg)
		if err != nil {
			return nil, err
		}
		logger.AddAppender(fa)
	}
	if cfg.ConsoleAppender {
		logger.AddAppender(NewConsoleAppender())
	}
	return logger, nil
}

// SetLevel changes the minimum level at runtime.
func (x *JSONLogger) SetLevel(level Level) {
	x.minLevel.Store(int32(level))
}

// Level returns the current minimum level.
func (x *JSONLogger) Level() Level {
	return Level(x.minLevel.Load())
}

func (x *JSONLogger) checkLevel(level Level) bool {
	return Level(x.minLevel.Load()) <= level
}

// AddAppender registers another output destination.
func (x *JSONLogger) AddAppender(appender LogAppender) {
	x.appenderLock.Lock()
	defer x.appenderLock.Unlock()
	x.appenders = append(x.appenders, appender)
}

// GetAppender returns a snapshot of the registered appenders.
func (x *JSONLogger) GetAppender() []LogAppender {
	x.appenderLock.RLock()
	defer x.appenderLock.RUnlock()
	out := make([]LogAppender, len(x.appenders))
	copy(out, x.appenders)
	return out
}

// Refresh blocks until every appender has flushed buffered entries.
func (x *JSONLogger) Refresh() {
	for _, appender := range x.GetAppender() {
		_ = appender.Refresh()
	}
}

// Close flushes and closes every appender.
func (x *JSONLogger) Close() {
	for _, appender := range x.GetAppender() {
		_ = appender.Close()
	}
}

// OnEventEnd writes a finished event to every appender and recycles it.
// Fatal events panic after the write.
func (x *JSONLogger) OnEventEnd(e *LogEvent) {
	x.appenderLock.RLock()
	for _, appender := range x.appenders {
		_, _ = appender.Write(e.buf.Bytes())
	}
	x.appenderLock.RUnlock()

	if e.level == FatalLevel {
		msg := e.buf.String()
		x.eventPool.Put(e)
		panic(msg)
	}
	x.eventPool.Put(e)
}

func (x *JSONLogger) Trace() *LogEvent { return x.log(TraceLevel) }
func (x *JSONLogger) Debug() *LogEvent { return x.log(DebugLevel) }
func (x *JSONLogger) Info() *LogEvent  { return x.log(InfoLevel) }
func (x *JSONLogger) Warn() *LogEvent  { return x.log(WarnLevel) }
func (x *JSONLogger) Error() *LogEvent { return x.log(ErrorLevel) }
func (x *JSONLogger) Fatal() *LogEvent { return x.log(FatalLevel) }

// callerInfo resolves "dir/file.go:line Func" for the frame that called the
// level method, caching by program counter.
func (x *JSONLogger) callerInfo() string {
	// callerInfo -> log -> level method -> caller; CallerSkip 1 accounts for
	// the package-level wrappers.
	pc, file, line, ok := runtime.Caller(3 + x.callerSkip)
	if !ok {
		return "unknown"
	}
	if cached, found := x.callerCache.Load(pc); found {
		return cached.(string)
	}

	function := "unknown"
	if fn := runtime.FuncForPC(pc); fn != nil {
		function = fn.Name()
		if dotIdx := strings.LastIndexByte(function, '.'); dotIdx != -1 {
			function = function[dotIdx+1:]
		}
	}
	if lastSlash := strings.LastIndexByte(file, '/'); lastSlash > 0 {
		if prev := strings.LastIndexByte(file[:lastSlash], '/'); prev >= 0 {
			file = file[prev+1:]
		}
	}

	info := file + ":" + strconv.Itoa(line) + " " + function
	x.callerCache.Store(pc, info)
	return info
}

func (x *JSONLogger) log(level Level) *LogEvent {
	if !x.checkLevel(level) {
		return nil
	}

	e := x.eventPool.Get().(*LogEvent)
	e.Reset()
	e.level = level

	t := time.Now()
	e.Time("time", t)
	e.Str("level", level.String())
	if x.enabledCallerInfo {
		e.Str("caller", x.callerInfo())
	}
	return e
}
