package dispatch

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Admission decides what happens when a task arrives at a full queue.
type Admission int

const (
	// Block makes the submitter wait until the queue has room.
	Block Admission = iota
	// Reject refuses the new task with ErrQueueFull.
	Reject
	// DropOldest evicts the oldest queued task, which settles with ErrDropped.
	DropOldest
)

func (a Admission) String() string {
	switch a {
	case Block:
		return "block"
	case Reject:
		return "reject"
	case DropOldest:
		return "dropOldest"
	default:
		return fmt.Sprintf("Admission(%d)", int(a))
	}
}

// UnmarshalText parses block, reject or dropOldest (case-insensitive,
// drop_oldest is accepted too).
func (a *Admission) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "block":
		*a = Block
	case "reject":
		*a = Reject
	case "dropoldest", "drop_oldest":
		*a = DropOldest
	default:
		return fmt.Errorf("unknown admission policy %q", string(text))
	}
	return nil
}

const (
	_defaultMinWorkers  = 5
	_defaultMaxWorkers  = 128
	_defaultQueueSize   = 1024
	_defaultIdleTimeout = time.Second
	_defaultLooperSize  = 1024
)

// Config configures the worker pool, its lanes and their admission policy.
type Config struct {
	MinWorkers  int           `mapstructure:"minWorkers"`
	MaxWorkers  int           `mapstructure:"maxWorkers"`
	QueueSize   int           `mapstructure:"queueSize"`
	IdleTimeout time.Duration `mapstructure:"idleTimeout"`
	Admission   Admission     `mapstructure:"admission"`
	// LooperSize is the capacity of the completion context queue built by
	// the application.
	LooperSize int `mapstructure:"looperSize"`
}

// DefaultConfig returns the pool sizing used when no config is given.
func DefaultConfig() *Config {
	return &Config{
		MinWorkers:  _defaultMinWorkers,
		MaxWorkers:  _defaultMaxWorkers,
		QueueSize:   _defaultQueueSize,
		IdleTimeout: _defaultIdleTimeout,
		Admission:   Block,
		LooperSize:  _defaultLooperSize,
	}
}

// GetName returns the config section name.
func (c *Config) GetName() string {
	return "dispatcher"
}

// CheckCfgValid fills zero fields with defaults.
func (c *Config) CheckCfgValid() {
	if c.MaxWorkers == 0 {
		c.MaxWorkers = _defaultMaxWorkers
		if c.MinWorkers > c.MaxWorkers {
			c.MaxWorkers = c.MinWorkers
		}
	}
	if c.QueueSize == 0 {
		c.QueueSize = _defaultQueueSize
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = _defaultIdleTimeout
	}
	if c.LooperSize == 0 {
		c.LooperSize = _defaultLooperSize
	}
}

// Validate checks worker bounds and sizes.
func (c *Config) Validate() error {
	if c.MinWorkers < 0 {
		return errors.New("minWorkers must not be negative")
	}
	if c.MaxWorkers < 1 {
		return errors.New("maxWorkers must be at least 1")
	}
	if c.MinWorkers > c.MaxWorkers {
		return fmt.Errorf("minWorkers %d exceeds maxWorkers %d", c.MinWorkers, c.MaxWorkers)
	}
	if c.QueueSize < 1 {
		return errors.New("queueSize must be at least 1")
	}
	if c.IdleTimeout < 0 {
		return errors.New("idleTimeout must not be negative")
	}
	if c.LooperSize < 1 {
		return errors.New("looperSize must be at least 1")
	}
	if c.Admission < Block || c.Admission > DropOldest {
		return fmt.Errorf("invalid admission %v", c.Admission)
	}
	return nil
}
