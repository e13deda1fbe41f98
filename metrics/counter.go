package metrics

// Metrics is the identity shared by every instrument.
type Metrics interface {
	Name() string
	Group() string
	Policy() Policy
}

// Counter accumulates values that only grow.
type Counter interface {
	Metrics
	// Incr adds delta without dimensions.
	Incr(delta Value)
	// IncrWithDim adds delta under the given dimensions.
	IncrWithDim(delta Value, dimensions Dimension)
}

// instrument carries the identity of one registered metric.
type instrument struct {
	name   string
	group  string
	policy Policy
}

func (i *instrument) Name() string   { return i.name }
func (i *instrument) Group() string  { return i.group }
func (i *instrument) Policy() Policy { return i.policy }

type counter struct {
	instrument
}

func (c *counter) Incr(v Value) {
	c.IncrWithDim(v, nil)
}

func (c *counter) IncrWithDim(v Value, dimensions Dimension) {
	report(Record{metrics: c, value: v, cnt: 1, dimensions: dimensions})
}
