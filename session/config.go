package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/linchenxuan/taglog/sink"
)

// Stream ids and the file each one is written to.
const (
	StreamIMU        = "imu"
	StreamWLAN       = "wlan"
	StreamPose       = "pose"
	StreamMarkerPose = "markerPose"
	StreamRefMarker  = "refMarker"
)

var _streamFiles = map[string]string{
	StreamIMU:        "sensors.csv",
	StreamWLAN:       "wifi.csv",
	StreamPose:       "poses.csv",
	StreamMarkerPose: "initPoses.csv",
	StreamRefMarker:  "refMarker.csv",
}

// Streams lists the stream ids in a fixed order.
func Streams() []string {
	return []string{StreamIMU, StreamWLAN, StreamPose, StreamMarkerPose, StreamRefMarker}
}

// FileName returns the file name of a stream inside the session directory.
func FileName(stream string) string {
	return _streamFiles[stream]
}

// Config is the `session` config section.
type Config struct {
	// RootDir holds one directory per session.
	RootDir string `mapstructure:"rootDir"`
	// ScanInterval is the minimum spacing between two scan requests.
	ScanInterval time.Duration `mapstructure:"scanInterval"`
	// ScanBurst is how many scan requests may be issued back to back.
	ScanBurst int `mapstructure:"scanBurst"`
	// CloseTimeout bounds how long Stop waits for outstanding batches.
	CloseTimeout time.Duration `mapstructure:"closeTimeout"`

	IMU        sink.Config `mapstructure:"imu"`
	WLAN       sink.Config `mapstructure:"wlan"`
	Pose       sink.Config `mapstructure:"pose"`
	MarkerPose sink.Config `mapstructure:"markerPose"`
	RefMarker  sink.Config `mapstructure:"refMarker"`
}

// DefaultConfig returns the recording policy of every stream: sensors in
// batches of 100 on the shared pool, poses in batches of 10, one batch per
// wireless scan and reference marker clicks written immediately. Pose and
// scan batches keep their order on per-stream lanes; sensor lines carry
// their own timestamps, so their batches may land in any order.
func DefaultConfig() *Config {
	return &Config{
		RootDir:      "./recordings",
		ScanInterval: 2 * time.Second,
		ScanBurst:    1,
		CloseTimeout: 10 * time.Second,
		IMU:          sink.Config{Threshold: 100},
		WLAN:         sink.Config{Threshold: 0, Ordered: true, CounterPrefix: true},
		Pose:         sink.Config{Threshold: 10, Ordered: true},
		MarkerPose:   sink.Config{Threshold: 10, Ordered: true},
		RefMarker:    sink.Config{Mode: sink.ModeImmediate, SyncOnFlush: true},
	}
}

// GetName returns the config section name.
func (c *Config) GetName() string {
	return "session"
}

// Sink returns the write policy of stream.
func (c *Config) Sink(stream string) sink.Config {
	switch stream {
	case StreamIMU:
		return c.IMU
	case StreamWLAN:
		return c.WLAN
	case StreamPose:
		return c.Pose
	case StreamMarkerPose:
		return c.MarkerPose
	default:
		return c.RefMarker
	}
}

// Validate checks the section.
func (c *Config) Validate() error {
	if c.RootDir == "" {
		return errors.New("rootDir is required")
	}
	if c.ScanInterval < 0 {
		return errors.New("scanInterval must not be negative")
	}
	if c.ScanBurst < 1 {
		return errors.New("scanBurst must be at least 1")
	}
	if c.CloseTimeout <= 0 {
		return errors.New("closeTimeout must be positive")
	}
	for _, s := range Streams() {
		sc := c.Sink(s)
		if err := sc.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s, err)
		}
	}
	return nil
}
