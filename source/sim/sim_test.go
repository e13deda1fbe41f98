package sim

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/linchenxuan/taglog/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSensorsEmitUntilUnregistered(t *testing.T) {
	s := NewSensors(0, telemetry.Accelerometer, telemetry.MagneticFieldUncalibrated)
	var n atomic.Int64
	var mu sync.Mutex
	var kinds = map[telemetry.SensorKind]int{}
	require.NoError(t, s.Register(func(sample telemetry.SensorSample) {
		_, err := sample.Format()
		assert.NoError(t, err)
		mu.Lock()
		kinds[sample.Kind]++
		mu.Unlock()
		n.Add(1)
	}))
	assert.ErrorIs(t, s.Register(func(telemetry.SensorSample) {}), ErrRegistered)

	require.Eventually(t, func() bool { return n.Load() >= 100 }, 2*time.Second, time.Millisecond)
	s.Unregister()
	after := n.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, n.Load(), "no sample after Unregister")
	assert.Equal(t, after, s.Emitted())

	mu.Lock()
	assert.Len(t, kinds, 2)
	mu.Unlock()
	s.Unregister()
}

func TestSensorsArePaced(t *testing.T) {
	s := NewSensors(100)
	var n atomic.Int64
	require.NoError(t, s.Register(func(telemetry.SensorSample) { n.Add(1) }))
	time.Sleep(200 * time.Millisecond)
	s.Unregister()
	// two kinds per round, about 20 rounds
	assert.Less(t, n.Load(), int64(100))
	assert.Greater(t, n.Load(), int64(0))
}

func TestSensorsFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	s, err := NewSensorsFromConfig(cfg)
	require.NoError(t, err)
	assert.Len(t, s.kinds, 4)

	cfg.Kinds = []string{"BARO"}
	_, err = NewSensorsFromConfig(cfg)
	assert.ErrorIs(t, err, telemetry.ErrFormat)
}

func TestScannerDeliversAsynchronously(t *testing.T) {
	type outcome struct {
		ok      bool
		results []telemetry.ScanResult
	}
	got := make(chan outcome, 4)
	s := NewScanner(func(ok bool, results []telemetry.ScanResult) {
		got <- outcome{ok, results}
	}, 3, 5*time.Millisecond, 2, 7)
	defer s.Close()

	require.NoError(t, s.StartScan())
	assert.ErrorIs(t, s.StartScan(), ErrScanBusy)

	first := <-got
	assert.True(t, first.ok)
	require.Len(t, first.results, 3)
	for _, r := range first.results {
		_, err := telemetry.ScanRecord{Result: r}.Format()
		assert.NoError(t, err)
		assert.Less(t, r.Level, -29)
	}

	require.NoError(t, s.StartScan())
	second := <-got
	assert.False(t, second.ok, "every second scan fails")
	assert.Empty(t, second.results)
	assert.Equal(t, 2, s.Scans())
}

func TestScannerClose(t *testing.T) {
	var calls atomic.Int32
	s := NewScanner(func(bool, []telemetry.ScanResult) { calls.Add(1) }, 1, 20*time.Millisecond, 0, 1)
	require.NoError(t, s.StartScan())
	s.Close()
	time.Sleep(40 * time.Millisecond)
	assert.Zero(t, calls.Load())
	assert.Error(t, s.StartScan())
}

func TestTrackingMarkers(t *testing.T) {
	tr := NewTracking(2, 3)
	var seen []telemetry.Marker
	for i := 0; i < 12; i++ {
		f, err := tr.Update()
		require.NoError(t, err)
		assert.NotZero(t, f.Timestamp)
		seen = append(seen, f.Updated...)
	}
	require.Len(t, seen, 4)
	assert.Equal(t, telemetry.Marker{Index: 0, State: telemetry.Tracking, Pose: seen[0].Pose}, seen[0])
	assert.Equal(t, telemetry.Paused, seen[1].State)
	assert.Equal(t, 0, seen[1].Index)
	assert.Equal(t, 1, seen[2].Index)
	assert.Equal(t, telemetry.Tracking, seen[2].State)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	cfg.FramePeriod = 0
	assert.Error(t, cfg.Validate())
}
