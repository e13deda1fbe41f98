package metrics

// Gauge reports a point-in-time value. The gauge's Policy decides how the
// reporter folds several updates: last value, average, max or min.
type Gauge interface {
	Metrics
	Update(value Value)
	UpdateWithDim(value Value, dimensions Dimension)
}

type gauge struct {
	instrument
}

func (g *gauge) Update(v Value) {
	g.UpdateWithDim(v, nil)
}

// UpdateWithDim reports v with a count of one, so average gauges weigh
// every update equally.
func (g *gauge) UpdateWithDim(v Value, dimensions Dimension) {
	report(Record{metrics: g, value: v, cnt: 1, dimensions: dimensions})
}
