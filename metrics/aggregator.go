package metrics

import (
	"sort"
	"strings"
	"sync"
)

// Aggregator is an in-process Reporter that folds every update into one
// Record per instrument and dimension set. It backs the end-of-session
// summary and lets tests observe what the recorder reported.
type Aggregator struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{records: map[string]*Record{}}
}

// Report folds r into the stored record for its key.
func (a *Aggregator) Report(r Record) {
	key := recordKey(r.metrics.Group(), r.metrics.Name(), r.dimensions)

	a.mu.Lock()
	defer a.mu.Unlock()
	if cur, ok := a.records[key]; ok {
		_ = cur.Merge(r)
		return
	}
	a.records[key] = r.Clone()
}

// Value returns the aggregated value for name under exactly dims.
func (a *Aggregator) Value(group, name string, dims Dimension) (Value, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.records[recordKey(group, name, dims)]
	if !ok {
		return 0, false
	}
	return r.Value(), true
}

// Sum adds the raw values of name across every dimension set.
func (a *Aggregator) Sum(group, name string) Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	var total Value
	for _, r := range a.records {
		if r.metrics.Group() == group && r.metrics.Name() == name {
			v, _ := r.RawData()
			total += v
		}
	}
	return total
}

// Snapshot returns copies of every record sorted by key.
func (a *Aggregator) Snapshot() []Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	keys := make([]string, 0, len(a.records))
	for k := range a.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Record, 0, len(keys))
	for _, k := range keys {
		out = append(out, *a.records[k].Clone())
	}
	return out
}

// recordKey renders group*name*k1:v1,k2:v2, with dimension keys sorted.
func recordKey(group, name string, dims Dimension) string {
	var sb strings.Builder
	sb.Grow(64)
	sb.WriteString(group)
	sb.WriteByte('*')
	sb.WriteString(name)
	sb.WriteByte('*')
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte(':')
		sb.WriteString(dims[k])
		sb.WriteByte(',')
	}
	return sb.String()
}

// RecordKey exposes the key format shared with other reporters.
func RecordKey(r *Record) string {
	return recordKey(r.metrics.Group(), r.metrics.Name(), r.dimensions)
}
