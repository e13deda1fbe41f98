// Package sim provides simulated producers for a recording session: a paced
// sensor source, a wireless scanner answering asynchronously and a tracking
// source walking past a set of markers.
package sim

import (
	"errors"
	"time"
)

// Config is the `sim` config section.
type Config struct {
	// SensorRate is the number of sensor rounds per second; each round emits
	// one sample per kind. Zero or less runs unpaced.
	SensorRate int `mapstructure:"sensorRate"`
	// Kinds are the sensor tags to emit, ACC and GYRO when empty.
	Kinds []string `mapstructure:"kinds"`
	// AccessPoints is the number of access points a scan returns.
	AccessPoints int `mapstructure:"accessPoints"`
	// ScanLatency is the delay between a scan request and its result.
	ScanLatency time.Duration `mapstructure:"scanLatency"`
	// FailEvery makes every n-th scan fail; zero never fails.
	FailEvery int `mapstructure:"failEvery"`
	// Markers is the number of markers along the walk.
	Markers int `mapstructure:"markers"`
	// MarkerSpacing is the number of frames between two marker sightings.
	MarkerSpacing int `mapstructure:"markerSpacing"`
	// FramePeriod is the tracking poll period.
	FramePeriod time.Duration `mapstructure:"framePeriod"`
	// Seed makes generated values reproducible.
	Seed int64 `mapstructure:"seed"`
}

// DefaultConfig returns a phone-like setup: 50 Hz sensors, a scan every
// few hundred milliseconds and 30 frames per second.
func DefaultConfig() *Config {
	return &Config{
		SensorRate:    50,
		Kinds:         []string{"ACC", "GYRO", "MAG_UN", "ROT"},
		AccessPoints:  6,
		ScanLatency:   300 * time.Millisecond,
		FailEvery:     5,
		Markers:       4,
		MarkerSpacing: 60,
		FramePeriod:   33 * time.Millisecond,
		Seed:          1,
	}
}

// GetName returns the config section name.
func (c *Config) GetName() string {
	return "sim"
}

// Validate checks the section.
func (c *Config) Validate() error {
	if c.AccessPoints < 0 || c.Markers < 0 {
		return errors.New("accessPoints and markers must not be negative")
	}
	if c.FailEvery < 0 {
		return errors.New("failEvery must not be negative")
	}
	if c.MarkerSpacing <= 0 {
		return errors.New("markerSpacing must be positive")
	}
	if c.FramePeriod <= 0 {
		return errors.New("framePeriod must be positive")
	}
	return nil
}
