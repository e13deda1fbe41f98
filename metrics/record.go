package metrics

import (
	"fmt"
	"maps"
)

// Record is one metric update: the instrument, the value, the number of
// observations folded into it and its dimensions.
type Record struct {
	metrics    Metrics
	value      Value
	cnt        int
	dimensions Dimension
}

// NewRecord builds a single-observation record, mainly for reporters and tests.
func NewRecord(m Metrics, v Value, dimensions Dimension) Record {
	return Record{metrics: m, value: v, cnt: 1, dimensions: dimensions}
}

// Clone returns a copy whose dimensions are independent of r.
func (r *Record) Clone() *Record {
	cp := *r
	cp.dimensions = maps.Clone(r.dimensions)
	if cp.dimensions == nil {
		cp.dimensions = Dimension{}
	}
	return &cp
}

// Metrics returns the instrument.
func (r *Record) Metrics() Metrics {
	return r.metrics
}

// Value returns the aggregated value: the mean for averaging policies,
// the raw value otherwise.
func (r *Record) Value() Value {
	switch r.metrics.Policy() {
	case Policy_Avg, Policy_Stopwatch:
		if r.cnt != 0 {
			return r.value / Value(r.cnt)
		}
	}
	return r.value
}

// RawData returns the unprocessed value and observation count.
func (r *Record) RawData() (Value, int) {
	return r.value, r.cnt
}

// Dimensions returns the record labels.
func (r *Record) Dimensions() Dimension {
	return r.dimensions
}

// Merge folds other into r by the instrument policy. Both records must
// belong to the same instrument and carry equal dimensions.
func (r *Record) Merge(other Record) error {
	if r.metrics.Name() != other.metrics.Name() {
		return fmt.Errorf("metrics name(%s,%s) not equal", r.metrics.Name(), other.metrics.Name())
	}
	if r.metrics.Group() != other.metrics.Group() {
		return fmt.Errorf("metrics group(%s,%s) not equal", r.metrics.Group(), other.metrics.Group())
	}
	if r.metrics.Policy() != other.metrics.Policy() {
		return fmt.Errorf("metrics policy(%v,%v) not equal", r.metrics.Policy(), other.metrics.Policy())
	}
	if !maps.Equal(r.dimensions, other.dimensions) {
		return fmt.Errorf("metrics(%s) dimensions %v and %v differ", r.metrics.Name(), r.dimensions, other.dimensions)
	}

	switch r.metrics.Policy() {
	case Policy_Set:
		r.value = other.value
	case Policy_Sum:
		r.value += other.value
	case Policy_Max:
		if other.value > r.value {
			r.value = other.value
		}
	case Policy_Min:
		if other.value < r.value {
			r.value = other.value
		}
	case Policy_Stopwatch, Policy_Avg:
		r.value += other.value
	default:
		return fmt.Errorf("metrics(%s) policy %v cannot merge", r.metrics.Name(), r.metrics.Policy())
	}
	r.cnt += other.cnt
	return nil
}
