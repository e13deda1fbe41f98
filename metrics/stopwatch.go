package metrics

import "time"

// StopWatch measures elapsed time in milliseconds.
type StopWatch interface {
	Metrics
	// RecordWithDim reports the time since startTime and returns it.
	RecordWithDim(dimensions Dimension, startTime time.Time) time.Duration
}

type stopwatch struct {
	instrument
}

func (s *stopwatch) RecordWithDim(dimensions Dimension, startTime time.Time) time.Duration {
	d := time.Since(startTime)
	report(Record{
		metrics:    s,
		value:      Value(float64(d.Microseconds()) / 1000),
		cnt:        1,
		dimensions: dimensions,
	})
	return d
}
