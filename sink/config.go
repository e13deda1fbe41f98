package sink

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects how a sink writes its lines.
type Mode int

const (
	// ModeBatched buffers lines and writes batches on the dispatcher.
	ModeBatched Mode = iota
	// ModeImmediate writes every line on the calling goroutine.
	ModeImmediate
)

func (m Mode) String() string {
	switch m {
	case ModeBatched:
		return "batched"
	case ModeImmediate:
		return "immediate"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// UnmarshalText parses batched or immediate.
func (m *Mode) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "batched":
		*m = ModeBatched
	case "immediate", "sync":
		*m = ModeImmediate
	default:
		return fmt.Errorf("unknown sink mode %q", string(text))
	}
	return nil
}

// Config is the per-stream write policy.
type Config struct {
	// Threshold is the buffered line count that, once exceeded, triggers a
	// batch. 0 buffers until an explicit Flush or RecordBatch.
	Threshold int `mapstructure:"threshold"`
	Mode      Mode `mapstructure:"mode"`
	// Ordered writes the batches of this sink one at a time, in order, on a
	// dedicated lane instead of the shared pool.
	Ordered bool `mapstructure:"ordered"`
	// CounterPrefix prefixes every line of a batch with the sink's batch
	// counter, which advances after each successful write.
	CounterPrefix bool `mapstructure:"counterPrefix"`
	// SyncOnFlush fsyncs the destination after every batch.
	SyncOnFlush bool `mapstructure:"syncOnFlush"`
}

// Validate checks the policy.
func (c *Config) Validate() error {
	if c.Threshold < 0 {
		return errors.New("threshold must not be negative")
	}
	if c.Mode != ModeBatched && c.Mode != ModeImmediate {
		return fmt.Errorf("invalid mode %v", c.Mode)
	}
	return nil
}
