package taglog

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/linchenxuan/taglog/config"
	"github.com/linchenxuan/taglog/dispatch"
	"github.com/linchenxuan/taglog/event"
	"github.com/linchenxuan/taglog/metrics"
	"github.com/linchenxuan/taglog/metrics/prometheus"
	"github.com/linchenxuan/taglog/plugin"
	"github.com/linchenxuan/taglog/session"
	"github.com/linchenxuan/taglog/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Session.RootDir = t.TempDir()
	cfg.Session.ScanInterval = 0
	cfg.Dispatcher.MinWorkers = 2
	cfg.Dispatcher.MaxWorkers = 4
	return cfg
}

func stopCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestNew verifies that New wires every long-lived component.
func TestNew(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)
	require.NotNil(t, app)

	assert.NotNil(t, app.PluginManager)
	assert.NotNil(t, app.Metrics)
	assert.NotNil(t, app.Looper)
	assert.NotNil(t, app.Dispatcher)
	assert.NotNil(t, app.Publisher)
	assert.Nil(t, app.Session())

	require.NoError(t, app.Stop(stopCtx(t)))
	require.NoError(t, app.Stop(stopCtx(t)), "stop is idempotent")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Dispatcher.MinWorkers = 10
	cfg.Dispatcher.MaxWorkers = 2
	_, err := New(cfg)
	assert.ErrorIs(t, err, config.ErrSection)
}

// TestNewReleasesOnFailure verifies that a failing step of New leaves no
// reporter behind.
func TestNewReleasesOnFailure(t *testing.T) {
	before := len(metrics.GetMetricsReporters())

	t.Run("Plugin", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Plugin = map[string]any{
			string(plugin.Metrics): map[string]any{"statsd": nil},
		}
		_, err := New(cfg)
		assert.ErrorIs(t, err, plugin.ErrPluginNotFound)
		assert.Len(t, metrics.GetMetricsReporters(), before)
	})

	t.Run("Topic", func(t *testing.T) {
		saved := _topics
		_topics = append(append([]string(nil), saved...), event.TopicScanCaptured)
		t.Cleanup(func() { _topics = saved })

		_, err := New(testConfig(t))
		assert.ErrorIs(t, err, event.ErrTopicExists)
		assert.Len(t, metrics.GetMetricsReporters(), before)
	})

	app, err := New(testConfig(t))
	require.NoError(t, err)
	assert.Len(t, metrics.GetMetricsReporters(), before+1)
	require.NoError(t, app.Stop(stopCtx(t)))
	assert.Len(t, metrics.GetMetricsReporters(), before)
}

// TestRecordingEndToEnd runs one session through the application and checks
// the files, the events and the pipeline metrics.
func TestRecordingEndToEnd(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)

	markers := make(chan int, 4)
	require.NoError(t, app.Publisher.RegisterSubscriber(event.TopicMarkerDetected, func(p any) {
		markers <- p.(int)
	}))

	s, err := app.StartSession()
	require.NoError(t, err)
	_, err = app.StartSession()
	assert.ErrorIs(t, err, ErrSessionActive)
	require.NoError(t, s.Start(nil, nil))

	for i := 0; i < 250; i++ {
		s.OnSensor(telemetry.SensorSample{Kind: telemetry.Gyroscope, Timestamp: int64(i), Values: []float64{1, 2, 3}})
	}
	s.OnFrame(telemetry.Frame{Timestamp: 5, Pose: telemetry.Pose{QW: 1}, Updated: []telemetry.Marker{
		{Index: 3, State: telemetry.Tracking, Pose: telemetry.Pose{QW: 1}},
	}})
	s.OnScan(true, []telemetry.ScanResult{{SSID: "lab", BSSID: "aa", Level: -50, Timestamp: 9}})
	require.NoError(t, s.ClickReferenceMarker())

	dir := s.Dir()
	require.NoError(t, app.Stop(stopCtx(t)))
	assert.Equal(t, 3, <-markers)

	count := func(stream string) int {
		b, err := os.ReadFile(filepath.Join(dir, session.FileName(stream)))
		require.NoError(t, err)
		return strings.Count(string(b), "\n")
	}
	assert.Equal(t, 250, count(session.StreamIMU))
	assert.Equal(t, 1, count(session.StreamPose))
	assert.Equal(t, 1, count(session.StreamMarkerPose))
	assert.Equal(t, 1, count(session.StreamWLAN))
	assert.Equal(t, 1, count(session.StreamRefMarker))

	dims := metrics.Dimension{metrics.DimStream: session.StreamIMU}
	written, ok := app.Metrics.Value(metrics.GroupTaglog, metrics.NameSinkWrittenLinesTotal, dims)
	require.True(t, ok)
	assert.Equal(t, metrics.Value(250), written)
	assert.Zero(t, app.Metrics.Sum(metrics.GroupTaglog, metrics.NameSinkDropTotal))

	assert.ErrorIs(t, dispatch.Submit(app.Dispatcher, func() (int, error) { return 0, nil }, nil), dispatch.ErrClosed)
}

// TestPrometheusPlugin verifies that the prometheus factory is registered
// and set up from the plugin section.
func TestPrometheusPlugin(t *testing.T) {
	cfg := testConfig(t)
	cfg.Plugin = map[string]any{
		string(plugin.Metrics): map[string]any{
			"prometheus": map[string]any{
				"httpListenAddr": "127.0.0.1:0",
			},
		},
	}
	app, err := New(cfg)
	require.NoError(t, err)

	p, err := app.PluginManager.GetDefaultPlugin(plugin.Metrics)
	require.NoError(t, err)
	rep, ok := p.(*prometheus.Reporter)
	require.True(t, ok)

	resp, err := http.Get("http://" + rep.Addr().String() + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, app.Stop(stopCtx(t)))
}
