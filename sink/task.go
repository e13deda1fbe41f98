package sink

// BatchResult describes a batch that reached its destination.
type BatchResult struct {
	Stream string
	Lines  int
	Bytes  int
	// Counter is the batch counter the lines were tagged with; it is only
	// meaningful for sinks with CounterPrefix.
	Counter int64
}

// AppendTask owns one drained batch of a sink. It is created at drain time
// and run exactly once by the dispatcher.
type AppendTask struct {
	sink  *Sink
	lines []string
}

// Lines returns the batch size.
func (t *AppendTask) Lines() int {
	return len(t.lines)
}

// Run writes every line of the batch to the sink destination in one write.
func (t *AppendTask) Run() (BatchResult, error) {
	return t.sink.write(t.lines)
}
