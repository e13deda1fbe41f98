package event

import "time"

// Topics published by a recording session.
const (
	// TopicMarkerDetected carries the index (int) of a marker seen in
	// tracking state for the first time.
	TopicMarkerDetected = "MarkerDetected"
	// TopicScanCaptured carries the running number (int64) of captured scans.
	TopicScanCaptured = "ScanCaptured"
)

// Topic subscription list for a single topic.
type Topic struct {
	timeout     time.Duration // Publish timeout, zero waits forever.
	subscribers []Subscriber
}

// Subscriber receives the published payload.
type Subscriber func(param any)
