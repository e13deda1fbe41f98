package log

import (
	"io"
	"os"
	"sync"
)

// ConsoleAppender writes entries unbuffered to stdout, or to any writer
// given to NewWriterAppender.
type ConsoleAppender struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleAppender creates an appender on os.Stdout.
func NewConsoleAppender() *ConsoleAppender {
	return &ConsoleAppender{w: os.Stdout}
}

// NewWriterAppender creates an appender on w. Writes are serialised so w
// need not be goroutine-safe.
func NewWriterAppender(w io.Writer) *ConsoleAppender {
	return &ConsoleAppender{w: w}
}

// Write writes buf in one call.
func (ca *ConsoleAppender) Write(buf []byte) (int, error) {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	return ca.w.Write(buf)
}

// Refresh is a no-op; writes are unbuffered.
func (ca *ConsoleAppender) Refresh() error {
	return nil
}

// Close is a no-op; the underlying writer is not owned.
func (ca *ConsoleAppender) Close() error {
	return nil
}
