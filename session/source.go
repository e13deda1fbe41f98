package session

import "github.com/linchenxuan/taglog/telemetry"

// SensorSource delivers inertial and magnetic samples on its own goroutine
// once a callback is registered.
type SensorSource interface {
	Register(fn func(telemetry.SensorSample)) error
	Unregister()
}

// WifiScanner starts one wireless scan per call. The outcome is delivered
// asynchronously to Session.OnScan.
type WifiScanner interface {
	StartScan() error
}

// TrackingSource yields the next tracking update each time it is asked.
type TrackingSource interface {
	Update() (telemetry.Frame, error)
}
