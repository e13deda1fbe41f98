package prometheus

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/linchenxuan/taglog/metrics"
	"github.com/linchenxuan/taglog/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, r *Reporter, path string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + r.Addr().String() + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestReporterExposesMetrics(t *testing.T) {
	r, err := NewReporter(&ReporterConfig{
		EnableHealthCheck: true,
		ExtLabels:         map[string]string{"site": "lab"},
	})
	require.NoError(t, err)
	defer r.Stop()

	c := metrics.GetCounter(metrics.NameSinkRecordTotal, metrics.GroupTaglog)
	r.Report(metrics.NewRecord(c, 2, metrics.Dimension{metrics.DimStream: "imu"}))
	r.Report(metrics.NewRecord(c, 3, metrics.Dimension{metrics.DimStream: "imu"}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Flush(ctx))

	code, body := scrape(t, r, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `taglog_sink_record_total{site="lab",stream="imu"} 5`)

	code, body = scrape(t, r, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "healthy")
}

func TestReporterGaugePolicies(t *testing.T) {
	r, err := NewReporter(nil)
	require.NoError(t, err)
	defer r.Stop()

	metrics.SetMetricsReporters([]metrics.Reporter{r})
	defer metrics.SetMetricsReporters(nil)

	dims := metrics.Dimension{metrics.DimExecutor: "pool"}
	metrics.UpdateMaxGaugeWithDimGroup(metrics.NameDispatchQueueMax, metrics.GroupTaglog, 7, dims)
	metrics.UpdateMaxGaugeWithDimGroup(metrics.NameDispatchQueueMax, metrics.GroupTaglog, 3, dims)
	metrics.UpdateAvgGaugeWithDimGroup(metrics.NameSinkBatchLinesAvg, metrics.GroupTaglog, 10, metrics.Dimension{metrics.DimStream: "pose"})
	metrics.UpdateAvgGaugeWithDimGroup(metrics.NameSinkBatchLinesAvg, metrics.GroupTaglog, 12, metrics.Dimension{metrics.DimStream: "pose"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Flush(ctx))

	_, body := scrape(t, r, "/metrics")
	assert.Contains(t, body, `taglog_dispatch_queue_max{executor="pool"} 7`)
	assert.Contains(t, body, `taglog_sink_batch_lines_avg{stream="pose"} 11`)
}

func TestFactoryThroughPluginManager(t *testing.T) {
	m := plugin.NewManager()
	m.RegisterFactory(NewFactory())

	err := m.SetupPlugins(map[string]any{
		"metrics": map[string]any{
			"prometheus": map[string]any{
				"httpListenAddr": "127.0.0.1:0",
				"metricPath":     "/m",
			},
		},
	})
	require.NoError(t, err)

	p, err := m.GetDefaultPlugin(plugin.Metrics)
	require.NoError(t, err)
	rep, ok := p.(*Reporter)
	require.True(t, ok)
	assert.Equal(t, "prometheus", rep.FactoryName())

	code, _ := scrape(t, rep, "/m")
	assert.Equal(t, http.StatusOK, code)

	m.Close()
	_, err = http.Get("http://" + rep.Addr().String() + "/m")
	assert.Error(t, err, "endpoint must be closed after destroy")
}

func TestConfigValidate(t *testing.T) {
	cfg := &ReporterConfig{UsePush: true}
	assert.Error(t, cfg.Validate())

	cfg.PushAddr = "http://127.0.0.1:9091"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.PushIntervalSec)
	assert.Equal(t, "taglog", cfg.PushJobName)
	assert.Equal(t, "/metrics", cfg.MetricPath)
}
