// Package telemetry defines the samples a recording session receives and
// the fixed text line each of them is persisted as.
package telemetry

import (
	"errors"
	"fmt"
)

// ErrFormat reports a sample that cannot be rendered or a line that cannot
// be parsed.
var ErrFormat = errors.New("telemetry format error")

// Line is a sample that renders to exactly one persisted line, without the
// trailing newline.
type Line interface {
	Format() (string, error)
}

// SensorKind is the type tag of an inertial or magnetic sample.
type SensorKind int

const (
	Accelerometer SensorKind = iota
	Gyroscope
	GyroscopeUncalibrated
	MagneticField
	MagneticFieldUncalibrated
	RotationVector
	GameRotationVector
)

var _sensorTags = [...]string{
	Accelerometer:             "ACC",
	Gyroscope:                 "GYRO",
	GyroscopeUncalibrated:     "GYRO_UN",
	MagneticField:             "MAG",
	MagneticFieldUncalibrated: "MAG_UN",
	RotationVector:            "ROT",
	GameRotationVector:        "GAME_ROT",
}

// Tag returns the tag written in the second column of a sensor line.
func (k SensorKind) Tag() string {
	if k < 0 || int(k) >= len(_sensorTags) {
		return fmt.Sprintf("SensorKind(%d)", int(k))
	}
	return _sensorTags[k]
}

func (k SensorKind) String() string {
	return k.Tag()
}

// Values returns how many payload values a sample of kind k carries:
// three axes, three axes plus three biases, or a four-component rotation.
func (k SensorKind) Values() int {
	switch k {
	case GyroscopeUncalibrated, MagneticFieldUncalibrated:
		return 6
	case RotationVector, GameRotationVector:
		return 4
	default:
		return 3
	}
}

// ParseSensorKind maps a line tag back to its kind.
func ParseSensorKind(tag string) (SensorKind, error) {
	for k, t := range _sensorTags {
		if t == tag {
			return SensorKind(k), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown sensor tag %q", ErrFormat, tag)
}

// SensorSample is one sensor callback. Timestamp is in nanoseconds.
type SensorSample struct {
	Kind      SensorKind
	Timestamp int64
	Values    []float64
}

// ScanResult is one access point of a wireless scan.
type ScanResult struct {
	SSID      string
	BSSID     string
	Level     int
	Timestamp int64
}

// Pose is a translation and a unit quaternion.
type Pose struct {
	TX, TY, TZ     float64
	QX, QY, QZ, QW float64
}

// TrackingState of a marker reported by the tracking source.
type TrackingState int

const (
	Paused TrackingState = iota
	Tracking
	Stopped
)

func (s TrackingState) String() string {
	switch s {
	case Paused:
		return "PAUSED"
	case Tracking:
		return "TRACKING"
	case Stopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("TrackingState(%d)", int(s))
	}
}

// Marker is a named image target and its center pose.
type Marker struct {
	Index int
	State TrackingState
	Pose  Pose
}

// Frame is one tracking update: the device pose and the markers whose state
// changed in this update.
type Frame struct {
	Timestamp int64
	Pose      Pose
	Updated   []Marker
}

// PoseRecord is a device pose line.
type PoseRecord struct {
	Timestamp int64
	Pose      Pose
}

// MarkerPoseRecord is a tracked marker pose line.
type MarkerPoseRecord struct {
	Index     int
	Timestamp int64
	Pose      Pose
}

// ScanRecord is one access point line. The batch counter column is added by
// the sink when the batch is written.
type ScanRecord struct {
	Result ScanResult
}

// RefMarkerRecord is a reference marker click.
type RefMarkerRecord struct {
	Counter   int64
	Timestamp int64
}
