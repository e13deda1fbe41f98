package log

// LogAppender is an output destination for finished log entries.
// Implementations must be safe for concurrent use.
type LogAppender interface {
	// Write outputs one complete entry.
	Write(buf []byte) (n int, err error)

	// Refresh blocks until buffered entries reach the destination.
	Refresh() error

	// Close flushes and releases the destination.
	Close() error
}
