package metrics

import (
	"sync"
	"time"
)

type instrumentKey struct {
	policy Policy
	group  string
	name   string
}

var (
	_lock        sync.RWMutex
	_instruments = map[instrumentKey]Metrics{}
)

// getInstrument returns the instrument registered under (policy, group,
// name), creating it with mk on first use.
func getInstrument(policy Policy, name, group string, mk func(instrument) Metrics) Metrics {
	key := instrumentKey{policy: policy, group: group, name: name}

	_lock.RLock()
	m, ok := _instruments[key]
	_lock.RUnlock()
	if ok {
		return m
	}

	_lock.Lock()
	defer _lock.Unlock()
	if m, ok = _instruments[key]; ok {
		return m
	}
	m = mk(instrument{name: name, group: group, policy: policy})
	_instruments[key] = m
	return m
}

func getCounter(name, group string) Counter {
	return getInstrument(Policy_Sum, name, group, func(i instrument) Metrics {
		return &counter{instrument: i}
	}).(Counter)
}

func getGauge(policy Policy, name, group string) Gauge {
	return getInstrument(policy, name, group, func(i instrument) Metrics {
		return &gauge{instrument: i}
	}).(Gauge)
}

func getStopWatch(name, group string) StopWatch {
	return getInstrument(Policy_Stopwatch, name, group, func(i instrument) Metrics {
		return &stopwatch{instrument: i}
	}).(StopWatch)
}

// GetCounter returns the counter registered under group and name.
func GetCounter(name, group string) Counter {
	return getCounter(name, group)
}

// IncrCounterWithGroup adds value to a counter.
func IncrCounterWithGroup(key string, group string, value Value) {
	getCounter(key, group).Incr(value)
}

// IncrCounterWithDimGroup adds value to a counter under dimensions.
func IncrCounterWithDimGroup(key string, group string, value Value, dimensions Dimension) {
	getCounter(key, group).IncrWithDim(value, dimensions)
}

// UpdateGaugeWithGroup sets a last-value gauge.
func UpdateGaugeWithGroup(key string, group string, value Value) {
	getGauge(Policy_Set, key, group).Update(value)
}

// UpdateGaugeWithDimGroup sets a last-value gauge under dimensions.
func UpdateGaugeWithDimGroup(key string, group string, value Value, dimensions Dimension) {
	getGauge(Policy_Set, key, group).UpdateWithDim(value, dimensions)
}

// UpdateAvgGaugeWithDimGroup feeds an averaging gauge.
func UpdateAvgGaugeWithDimGroup(key string, group string, value Value, dimensions Dimension) {
	getGauge(Policy_Avg, key, group).UpdateWithDim(value, dimensions)
}

// UpdateMaxGaugeWithDimGroup feeds a gauge that keeps the maximum.
func UpdateMaxGaugeWithDimGroup(key string, group string, value Value, dimensions Dimension) {
	getGauge(Policy_Max, key, group).UpdateWithDim(value, dimensions)
}

// UpdateMinGaugeWithDimGroup feeds a gauge that keeps the minimum.
func UpdateMinGaugeWithDimGroup(key string, group string, value Value, dimensions Dimension) {
	getGauge(Policy_Min, key, group).UpdateWithDim(value, dimensions)
}

// RecordStopwatchWithDimGroup reports the time elapsed since startTime.
func RecordStopwatchWithDimGroup(key string, group string, startTime time.Time, dimensions Dimension) time.Duration {
	return getStopWatch(key, group).RecordWithDim(dimensions, startTime)
}
