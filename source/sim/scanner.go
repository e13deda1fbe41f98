package sim

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/linchenxuan/taglog/telemetry"
)

// ErrScanBusy is returned while a scan is already running.
var ErrScanBusy = errors.New("scan already in progress")

// ScanHandler receives the outcome of a scan, like Session.OnScan.
type ScanHandler func(success bool, results []telemetry.ScanResult)

// Scanner answers every scan request after a latency on a timer goroutine.
// Only one scan runs at a time.
type Scanner struct {
	onScan    ScanHandler
	latency   time.Duration
	failEvery int

	lock    sync.Mutex
	rnd     *rand.Rand
	aps     []telemetry.ScanResult
	running bool
	scans   int
	closed  bool
	timer   *time.Timer
}

// NewScanner creates a scanner reporting aps access points to onScan.
// Every failEvery-th scan fails; zero never fails.
func NewScanner(onScan ScanHandler, aps int, latency time.Duration, failEvery int, seed int64) *Scanner {
	s := &Scanner{
		onScan:    onScan,
		latency:   latency,
		failEvery: failEvery,
		rnd:       rand.New(rand.NewSource(seed)),
	}
	for i := 0; i < aps; i++ {
		s.aps = append(s.aps, telemetry.ScanResult{
			SSID:  fmt.Sprintf("lab-%d", i),
			BSSID: fmt.Sprintf("02:00:00:00:00:%02x", i),
		})
	}
	return s
}

// StartScan schedules one scan.
func (s *Scanner) StartScan() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return errors.New("scanner closed")
	}
	if s.running {
		return ErrScanBusy
	}
	s.running = true
	s.timer = time.AfterFunc(s.latency, s.finish)
	return nil
}

// Scans returns the number of finished scans.
func (s *Scanner) Scans() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.scans
}

func (s *Scanner) finish() {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return
	}
	s.running = false
	s.scans++
	ok := s.failEvery == 0 || s.scans%s.failEvery != 0
	var results []telemetry.ScanResult
	if ok {
		ts := time.Now().UnixNano()
		results = make([]telemetry.ScanResult, len(s.aps))
		for i, ap := range s.aps {
			ap.Level = -30 - 10*i - s.rnd.Intn(10)
			ap.Timestamp = ts
			results[i] = ap
		}
	}
	s.lock.Unlock()

	s.onScan(ok, results)
}

// Close cancels a pending scan; no result is delivered afterwards.
func (s *Scanner) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
}
