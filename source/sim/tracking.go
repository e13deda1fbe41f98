package sim

import (
	"math"
	"sync"
	"time"

	"github.com/linchenxuan/taglog/telemetry"
)

// Tracking walks the device around a circle. Marker i comes into view at
// frame (i+1)*spacing, is tracked for spacing frames and is then paused.
type Tracking struct {
	markers int
	spacing int

	lock  sync.Mutex
	frame int
}

// NewTracking creates a walk past markers markers.
func NewTracking(markers, spacing int) *Tracking {
	if spacing <= 0 {
		spacing = 1
	}
	return &Tracking{markers: markers, spacing: spacing}
}

// Update returns the next frame.
func (t *Tracking) Update() (telemetry.Frame, error) {
	t.lock.Lock()
	t.frame++
	n := t.frame
	t.lock.Unlock()

	angle := float64(n) / 100
	f := telemetry.Frame{
		Timestamp: time.Now().UnixNano(),
		Pose: telemetry.Pose{
			TX: 2 * math.Cos(angle), TZ: 2 * math.Sin(angle),
			QY: math.Sin(angle / 2), QW: math.Cos(angle / 2),
		},
	}
	for i := 0; i < t.markers; i++ {
		enter := (i + 1) * t.spacing
		var state telemetry.TrackingState
		switch n {
		case enter:
			state = telemetry.Tracking
		case enter + t.spacing:
			state = telemetry.Paused
		default:
			continue
		}
		f.Updated = append(f.Updated, telemetry.Marker{
			Index: i,
			State: state,
			Pose:  telemetry.Pose{TX: float64(i), TY: 1.5, QW: 1},
		})
	}
	return f, nil
}
