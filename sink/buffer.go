package sink

// BatchBuffer holds formatted lines of one stream until they are drained
// into a batch. It is not synchronised; the owning Sink serialises access.
type BatchBuffer struct {
	lines     []string
	threshold int
}

// NewBatchBuffer creates a buffer that asks to be flushed once it holds
// more than threshold lines. A threshold of 0 never asks.
func NewBatchBuffer(threshold int) *BatchBuffer {
	b := &BatchBuffer{threshold: threshold}
	b.lines = b.fresh()
	return b
}

func (b *BatchBuffer) fresh() []string {
	if b.threshold <= 0 {
		return nil
	}
	return make([]string, 0, b.threshold+1)
}

// Append adds one line.
func (b *BatchBuffer) Append(line string) {
	b.lines = append(b.lines, line)
}

// Len returns the number of buffered lines.
func (b *BatchBuffer) Len() int {
	return len(b.lines)
}

// Threshold returns the flush threshold.
func (b *BatchBuffer) Threshold() int {
	return b.threshold
}

// ShouldFlush reports whether the buffer holds more lines than its threshold.
func (b *BatchBuffer) ShouldFlush() bool {
	return b.threshold > 0 && len(b.lines) > b.threshold
}

// Drain returns every buffered line and leaves the buffer empty. Later
// appends go to a new backing array, so the returned slice is never touched
// again by the buffer.
func (b *BatchBuffer) Drain() []string {
	out := b.lines
	b.lines = b.fresh()
	return out
}
