package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockReporter collects every reported record.
type mockReporter struct {
	mu      sync.Mutex
	records []Record
}

func (m *mockReporter) Report(r Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
}

func (m *mockReporter) get() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

func withReporters(t *testing.T, rs ...Reporter) {
	t.Helper()
	SetMetricsReporters(rs)
	t.Cleanup(func() { SetMetricsReporters(nil) })
}

func TestCounterFanOut(t *testing.T) {
	m1, m2 := &mockReporter{}, &mockReporter{}
	withReporters(t, m1, m2)

	IncrCounterWithDimGroup(NameSinkRecordTotal, GroupTaglog, 3, Dimension{DimStream: "imu"})

	for _, m := range []*mockReporter{m1, m2} {
		rs := m.get()
		require.Len(t, rs, 1)
		assert.Equal(t, NameSinkRecordTotal, rs[0].Metrics().Name())
		assert.Equal(t, GroupTaglog, rs[0].Metrics().Group())
		assert.Equal(t, Policy_Sum, rs[0].Metrics().Policy())
		assert.Equal(t, Value(3), rs[0].Value())
		assert.Equal(t, "imu", rs[0].Dimensions()[DimStream])
	}
}

func TestInstrumentsAreCached(t *testing.T) {
	c1 := GetCounter("cached_total", "g1")
	c2 := GetCounter("cached_total", "g1")
	c3 := GetCounter("cached_total", "g2")
	assert.Same(t, c1, c2)
	assert.NotSame(t, c1, c3, "group is part of the identity")
}

func TestAddRemoveReporter(t *testing.T) {
	withReporters(t)
	m := &mockReporter{}
	AddReporter(m)
	IncrCounterWithGroup("add_remove_total", GroupTaglog, 1)
	RemoveReporter(m)
	IncrCounterWithGroup("add_remove_total", GroupTaglog, 1)
	assert.Len(t, m.get(), 1)
}

func TestAggregatorPolicies(t *testing.T) {
	agg := NewAggregator()
	withReporters(t, agg)
	dims := Dimension{DimExecutor: "pool"}

	IncrCounterWithDimGroup("agg_total", GroupTaglog, 2, dims)
	IncrCounterWithDimGroup("agg_total", GroupTaglog, 5, dims)
	UpdateGaugeWithDimGroup("agg_set", GroupTaglog, 4, dims)
	UpdateGaugeWithDimGroup("agg_set", GroupTaglog, 1, dims)
	UpdateMaxGaugeWithDimGroup("agg_max", GroupTaglog, 4, dims)
	UpdateMaxGaugeWithDimGroup("agg_max", GroupTaglog, 9, dims)
	UpdateMaxGaugeWithDimGroup("agg_max", GroupTaglog, 2, dims)
	UpdateMinGaugeWithDimGroup("agg_min", GroupTaglog, 4, dims)
	UpdateMinGaugeWithDimGroup("agg_min", GroupTaglog, 2, dims)
	UpdateAvgGaugeWithDimGroup("agg_avg", GroupTaglog, 10, dims)
	UpdateAvgGaugeWithDimGroup("agg_avg", GroupTaglog, 20, dims)

	cases := map[string]Value{
		"agg_total": 7,
		"agg_set":   1,
		"agg_max":   9,
		"agg_min":   2,
		"agg_avg":   15,
	}
	for name, want := range cases {
		got, ok := agg.Value(GroupTaglog, name, dims)
		require.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}

	IncrCounterWithDimGroup("agg_total", GroupTaglog, 1, Dimension{DimExecutor: "lane"})
	assert.Equal(t, Value(8), agg.Sum(GroupTaglog, "agg_total"))
	_, ok := agg.Value(GroupTaglog, "agg_total", nil)
	assert.False(t, ok)
	assert.NotEmpty(t, agg.Snapshot())
}

func TestStopwatch(t *testing.T) {
	agg := NewAggregator()
	withReporters(t, agg)

	start := time.Now().Add(-20 * time.Millisecond)
	d := RecordStopwatchWithDimGroup("sw_time", GroupTaglog, start, nil)
	assert.GreaterOrEqual(t, d, 20*time.Millisecond)

	v, ok := agg.Value(GroupTaglog, "sw_time", nil)
	require.True(t, ok)
	assert.GreaterOrEqual(t, float64(v), 20.0)
}

func TestRecordMerge(t *testing.T) {
	c := GetCounter("merge_total", GroupTaglog)
	g := getGauge(Policy_Max, "merge_max", GroupTaglog)

	r := NewRecord(c, 1, Dimension{"k": "v"})
	require.NoError(t, r.Merge(NewRecord(c, 2, Dimension{"k": "v"})))
	assert.Equal(t, Value(3), r.Value())

	assert.Error(t, r.Merge(NewRecord(c, 2, Dimension{"k": "other"})))
	assert.Error(t, r.Merge(NewRecord(g, 2, Dimension{"k": "v"})))

	cl := r.Clone()
	cl.Dimensions()["k"] = "changed"
	assert.Equal(t, "v", r.Dimensions()["k"], "clone must not share dimensions")
}

func TestConcurrentReporting(t *testing.T) {
	agg := NewAggregator()
	withReporters(t, agg)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				IncrCounterWithDimGroup("concurrent_total", GroupTaglog, 1, Dimension{DimStream: "pose"})
			}
		}()
	}
	wg.Wait()

	v, ok := agg.Value(GroupTaglog, "concurrent_total", Dimension{DimStream: "pose"})
	require.True(t, ok)
	assert.Equal(t, Value(8000), v)
}
