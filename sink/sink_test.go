package sink

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/linchenxuan/taglog/dispatch"
	"github.com/linchenxuan/taglog/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memDest is an in-memory Destination that can fail the next writes.
type memDest struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	failNext int
	writes   int
	closed   bool
	syncs    int
}

var errDiskFull = errors.New("disk full")

func (m *memDest) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, os.ErrClosed
	}
	if m.failNext > 0 {
		m.failNext--
		return 0, errDiskFull
	}
	m.writes++
	return m.buf.Write(p)
}

func (m *memDest) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs++
	return nil
}

func (m *memDest) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memDest) lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := strings.TrimSuffix(m.buf.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

type env struct {
	d      *dispatch.Dispatcher
	looper *dispatch.Looper
}

func newEnv(t *testing.T, cfg *dispatch.Config) *env {
	t.Helper()
	l := dispatch.NewLooper(64)
	if cfg == nil {
		cfg = &dispatch.Config{MinWorkers: 4, MaxWorkers: 8, QueueSize: 256}
	}
	d, err := dispatch.New(cfg, l)
	require.NoError(t, err)
	t.Cleanup(func() {
		d.Close()
		l.Close()
	})
	return &env{d: d, looper: l}
}

func (e *env) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.d.Quiesce(ctx))
	require.NoError(t, e.looper.Sync(ctx))
}

func pose(ts int64) telemetry.PoseRecord {
	return telemetry.PoseRecord{Timestamp: ts, Pose: telemetry.Pose{TX: float64(ts), QW: 1}}
}

func scan(n int, ts int64) []telemetry.Line {
	out := make([]telemetry.Line, n)
	for i := range out {
		out[i] = telemetry.ScanRecord{Result: telemetry.ScanResult{
			SSID: "ap", BSSID: "00:00:00:00:00:0" + string(rune('0'+i)), Level: -40 - i, Timestamp: ts,
		}}
	}
	return out
}

func TestRecordBelowThresholdSubmitsNothing(t *testing.T) {
	e := newEnv(t, nil)
	dest := &memDest{}
	s, err := New("pose", dest, e.d, Config{Threshold: 10})
	require.NoError(t, err)

	for i := int64(1); i <= 10; i++ {
		s.Record(pose(i))
	}
	e.settle(t)
	assert.Equal(t, int64(0), s.Batches())
	assert.Equal(t, 10, s.Buffered())
	assert.Empty(t, dest.lines())
}

// Scenario A: the 11th pose crosses the threshold of 10.
func TestScenarioElevenPoses(t *testing.T) {
	e := newEnv(t, nil)
	dest := &memDest{}

	var mu sync.Mutex
	var results []BatchResult
	s, err := New("pose", dest, e.d, Config{Threshold: 10}, WithOnWritten(func(r BatchResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}))
	require.NoError(t, err)

	for i := int64(1); i <= 11; i++ {
		s.Record(pose(i))
	}
	assert.Equal(t, 0, s.Buffered(), "buffer is empty right after the drain")
	assert.Equal(t, int64(1), s.Batches())
	e.settle(t)

	mu.Lock()
	require.Len(t, results, 1)
	assert.Equal(t, 11, results[0].Lines)
	assert.Equal(t, "pose", results[0].Stream)
	mu.Unlock()

	lines := dest.lines()
	require.Len(t, lines, 11)
	for i, l := range lines {
		rec, err := telemetry.ParsePoseLine(l)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), rec.Timestamp)
	}
	assert.Equal(t, 1, dest.writes, "one batch is one write")
}

// Scenario B: three failed wireless batches leave no lines and no counter
// advance; other sinks keep writing.
func TestScenarioWirelessFailures(t *testing.T) {
	e := newEnv(t, nil)
	wifiDest := &memDest{failNext: 3}
	wifi, err := New("wlan", wifiDest, e.d, Config{CounterPrefix: true})
	require.NoError(t, err)
	poseDest := &memDest{}
	poses, err := New("pose", poseDest, e.d, Config{Threshold: 1})
	require.NoError(t, err)

	for i := int64(0); i < 3; i++ {
		assert.NotPanics(t, func() { wifi.RecordBatch(scan(4, 100+i)) })
		e.settle(t)
	}
	assert.Empty(t, wifiDest.lines())
	assert.Equal(t, int64(0), wifi.Counter())
	assert.Equal(t, int64(12), wifi.Dropped())

	poses.Record(pose(1))
	poses.Record(pose(2))
	e.settle(t)
	assert.Len(t, poseDest.lines(), 2)

	wifi.RecordBatch(scan(2, 200))
	e.settle(t)
	wifi.RecordBatch(scan(3, 201))
	e.settle(t)
	lines := wifiDest.lines()
	require.Len(t, lines, 5)
	counters := map[int64]int{}
	for _, l := range lines {
		c, res, err := telemetry.ParseScanLine(l)
		require.NoError(t, err)
		assert.Equal(t, "ap", res.SSID)
		counters[c]++
	}
	assert.Equal(t, map[int64]int{0: 2, 1: 3}, counters)
	assert.Equal(t, int64(2), wifi.Counter())
}

func TestEmptyBatchAdvancesCounter(t *testing.T) {
	e := newEnv(t, nil)
	dest := &memDest{}
	wifi, err := New("wlan", dest, e.d, Config{CounterPrefix: true})
	require.NoError(t, err)

	wifi.RecordBatch(nil)
	e.settle(t)
	assert.Equal(t, int64(1), wifi.Counter())
	assert.Empty(t, dest.lines())

	wifi.RecordBatch(scan(1, 300))
	e.settle(t)
	lines := dest.lines()
	require.Len(t, lines, 1)
	c, _, err := telemetry.ParseScanLine(lines[0])
	require.NoError(t, err)
	assert.Equal(t, int64(1), c)
	assert.Equal(t, int64(2), wifi.Batches())
}

// Scenario C: two back-to-back batches of one unordered sink both land.
func TestScenarioBackToBackBatches(t *testing.T) {
	e := newEnv(t, nil)
	dest := &memDest{}
	s, err := New("pose", dest, e.d, Config{Threshold: 3})
	require.NoError(t, err)

	var want []string
	for i := int64(1); i <= 8; i++ {
		rec := pose(i)
		line, err := rec.Format()
		require.NoError(t, err)
		want = append(want, line)
		s.Record(rec)
	}
	assert.Equal(t, int64(2), s.Batches())
	e.settle(t)

	assert.ElementsMatch(t, want, dest.lines())
}

// Scenario D: closing right after recording never loses a line.
func TestScenarioRecordThenClose(t *testing.T) {
	e := newEnv(t, &dispatch.Config{MinWorkers: 2, MaxWorkers: 4, QueueSize: 8})
	rng := rand.New(rand.NewSource(7))

	for iter := 0; iter < 100; iter++ {
		dest := &memDest{}
		s, err := New("imu", dest, e.d, Config{Threshold: 5})
		require.NoError(t, err)

		n := 1 + rng.Intn(40)
		for i := 0; i < n; i++ {
			s.Record(telemetry.SensorSample{Kind: telemetry.Accelerometer, Timestamp: int64(i), Values: []float64{1, 2, 3}})
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		require.NoError(t, s.Close(ctx))
		cancel()

		require.Len(t, dest.lines(), n, "iteration %d", iter)
		assert.Equal(t, int64(0), s.Dropped())
		assert.True(t, dest.closed)
	}
}

func TestOrderedSinkOnLane(t *testing.T) {
	e := newEnv(t, nil)
	lane, err := e.d.NewLane("pose")
	require.NoError(t, err)
	dest := &memDest{}
	s, err := New("pose", dest, lane, Config{Threshold: 2, Ordered: true})
	require.NoError(t, err)

	for i := int64(1); i <= 300; i++ {
		s.Record(pose(i))
	}
	require.NoError(t, s.Close(context.Background()))

	lines := dest.lines()
	require.Len(t, lines, 300)
	for i, l := range lines {
		rec, err := telemetry.ParsePoseLine(l)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), rec.Timestamp)
	}
}

func TestRecordAfterCloseIsDropped(t *testing.T) {
	e := newEnv(t, nil)
	dest := &memDest{}
	s, err := New("pose", dest, e.d, Config{Threshold: 10})
	require.NoError(t, err)

	require.NoError(t, s.Close(context.Background()))
	s.Record(pose(1))
	s.RecordBatch([]telemetry.Line{pose(2), pose(3)})
	assert.ErrorIs(t, s.RecordSync(pose(4)), ErrClosed)
	assert.Equal(t, int64(4), s.Dropped())

	// 重复关闭
	assert.NoError(t, s.Close(context.Background()))
}

func TestRecordSyncAndImmediateMode(t *testing.T) {
	dest := &memDest{}
	s, err := New("refMarker", dest, nil, Config{Mode: ModeImmediate, SyncOnFlush: true})
	require.NoError(t, err)

	require.NoError(t, s.RecordSync(telemetry.RefMarkerRecord{Counter: 0, Timestamp: 10}))
	s.Record(telemetry.RefMarkerRecord{Counter: 1, Timestamp: 20})
	assert.Equal(t, []string{"0; 10", "1; 20"}, dest.lines())
	assert.Equal(t, 2, dest.syncs)

	dest.failNext = 1
	assert.ErrorIs(t, s.RecordSync(telemetry.RefMarkerRecord{Counter: 2, Timestamp: 30}), errDiskFull)
	assert.Equal(t, int64(1), s.Dropped())

	require.NoError(t, s.Close(context.Background()))
}

func TestFormatErrorDropsLine(t *testing.T) {
	e := newEnv(t, nil)
	dest := &memDest{}
	s, err := New("imu", dest, e.d, Config{Threshold: 100})
	require.NoError(t, err)

	s.Record(telemetry.SensorSample{Kind: telemetry.Gyroscope, Values: []float64{1}})
	assert.Equal(t, int64(1), s.Dropped())
	assert.Equal(t, 0, s.Buffered())
}

func TestFlushAndCloseWritesTail(t *testing.T) {
	e := newEnv(t, nil)
	dest := &memDest{}
	s, err := New("imu", dest, e.d, Config{Threshold: 100})
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		s.Record(telemetry.SensorSample{Kind: telemetry.MagneticField, Timestamp: int64(i), Values: []float64{1, 2, 3}})
	}
	s.Flush()
	e.settle(t)
	assert.Len(t, dest.lines(), 7)

	for i := 0; i < 3; i++ {
		s.Record(telemetry.SensorSample{Kind: telemetry.MagneticField, Timestamp: int64(i), Values: []float64{1, 2, 3}})
	}
	require.NoError(t, s.Close(context.Background()))
	assert.Len(t, dest.lines(), 10)
}

func TestCloseHonoursContext(t *testing.T) {
	e := newEnv(t, &dispatch.Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 8})

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, dispatch.Submit(e.d, func() (int, error) {
		close(started)
		<-release
		return 0, nil
	}, nil))
	<-started

	dest := &memDest{}
	s, err := New("pose", dest, e.d, Config{Threshold: 1})
	require.NoError(t, err)
	s.Record(pose(1))
	s.Record(pose(2))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Close(ctx), context.DeadlineExceeded)

	close(release)
	e.settle(t)
	assert.Empty(t, dest.lines(), "batches after the forced close are dropped")
	assert.Equal(t, int64(2), s.Dropped())
}

func TestOpenAppendsToFile(t *testing.T) {
	e := newEnv(t, nil)
	path := filepath.Join(t.TempDir(), "session", "poses.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("earlier\n"), 0o644))

	s, err := Open("pose", path, e.d, Config{Threshold: 10, SyncOnFlush: true})
	require.NoError(t, err)
	s.Record(pose(1))
	require.NoError(t, s.Close(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "earlier\n1; 1.000000; 0.000000; 0.000000; 0.000000; 0.000000; 0.000000; 1.000000\n", string(data))
}

func TestNewValidates(t *testing.T) {
	_, err := New("x", &memDest{}, nil, Config{})
	assert.Error(t, err, "batched mode requires an executor")
	_, err = New("x", nil, nil, Config{Mode: ModeImmediate})
	assert.Error(t, err)
}
