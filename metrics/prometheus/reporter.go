// Package prometheus exports recorder metrics in Prometheus format, over an
// HTTP endpoint and optionally to a push gateway.
package prometheus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/linchenxuan/taglog/log"
	"github.com/linchenxuan/taglog/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	_defaultChanSize   = 65536
	_defaultMetricPath = "/metrics"
	_defaultHealthPath = "/health"
	_serviceName       = "taglog"
)

// ReporterConfig configures the Prometheus reporter.
type ReporterConfig struct {
	Tag               string            `mapstructure:"tag"`
	HTTPListenAddr    string            `mapstructure:"httpListenAddr"`
	MetricPath        string            `mapstructure:"metricPath"`
	UsePush           bool              `mapstructure:"usePush"`
	PushAddr          string            `mapstructure:"pushAddr"`
	PushIntervalSec   int               `mapstructure:"pushIntervalSec"`
	PushJobName       string            `mapstructure:"pushJobName"`
	ExtLabels         map[string]string `mapstructure:"extLabels"`
	EnableHealthCheck bool              `mapstructure:"enableHealthCheck"`
	HealthCheckPath   string            `mapstructure:"healthCheckPath"`
	ChanSize          int               `mapstructure:"chanSize"`
}

// Validate fills defaults and checks push settings.
func (c *ReporterConfig) Validate() error {
	if c.HTTPListenAddr == "" {
		c.HTTPListenAddr = "127.0.0.1:0"
	}
	if c.MetricPath == "" {
		c.MetricPath = _defaultMetricPath
	}
	if c.HealthCheckPath == "" {
		c.HealthCheckPath = _defaultHealthPath
	}
	if c.ChanSize <= 0 {
		c.ChanSize = _defaultChanSize
	}
	if c.UsePush {
		if c.PushAddr == "" {
			return errors.New("pushAddr is required when usePush is set")
		}
		if c.PushIntervalSec <= 0 {
			c.PushIntervalSec = 10
		}
		if c.PushJobName == "" {
			c.PushJobName = _serviceName
		}
	}
	return nil
}

// Reporter converts metric records into Prometheus collectors on its own
// registry. Report only enqueues; a single goroutine owns the collectors.
type Reporter struct {
	cfg         *ReporterConfig
	registry    *prometheus.Registry
	factory     promauto.Factory
	metricsChan chan metrics.Record
	flushChan   chan chan struct{}
	collectors  map[string]*collector
	promSvr     *http.Server
	addr        net.Addr
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	dropped     atomic.Int64
	started     time.Time
}

// NewReporter validates cfg, starts the aggregation goroutine, the HTTP
// endpoint and, when configured, the pusher.
func NewReporter(cfg *ReporterConfig) (*Reporter, error) {
	if cfg == nil {
		cfg = &ReporterConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	x := &Reporter{
		cfg:         cfg,
		registry:    reg,
		factory:     promauto.With(reg),
		metricsChan: make(chan metrics.Record, cfg.ChanSize),
		flushChan:   make(chan chan struct{}),
		collectors:  map[string]*collector{},
		ctx:         ctx,
		cancel:      cancel,
		started:     time.Now(),
	}

	if err := x.startHTTPSvr(); err != nil {
		cancel()
		return nil, err
	}
	x.startAggregate()
	if cfg.UsePush {
		x.startPusher()
	}
	return x, nil
}

// FactoryName implements plugin.Plugin.
func (x *Reporter) FactoryName() string {
	return _factoryName
}

// Addr returns the address the HTTP endpoint listens on.
func (x *Reporter) Addr() net.Addr {
	return x.addr
}

// Registry returns the registry holding the converted collectors.
func (x *Reporter) Registry() *prometheus.Registry {
	return x.registry
}

// Report enqueues r without blocking; records are dropped when the queue is full.
func (x *Reporter) Report(r metrics.Record) {
	select {
	case x.metricsChan <- r:
	default:
		if x.dropped.Add(1)%1000 == 1 {
			log.Warn().Int64("dropped", x.dropped.Load()).Msg("prometheus metrics chan full")
		}
	}
}

// Flush blocks until every record queued before the call has been applied.
func (x *Reporter) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case x.flushChan <- done:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts down the HTTP endpoint, the pusher and the aggregator.
func (x *Reporter) Stop() {
	x.cancel()
	if x.promSvr != nil {
		if err := x.promSvr.Close(); err != nil {
			log.Error().Err(err).Msg("stop prometheus http server")
		}
	}
	x.wg.Wait()
}

func (x *Reporter) startHTTPSvr() error {
	l, err := net.Listen("tcp", x.cfg.HTTPListenAddr)
	if err != nil {
		return fmt.Errorf("prometheus listen %s: %w", x.cfg.HTTPListenAddr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(x.cfg.MetricPath, promhttp.HandlerFor(x.registry, promhttp.HandlerOpts{}))
	if x.cfg.EnableHealthCheck {
		mux.HandleFunc(x.cfg.HealthCheckPath, x.healthCheckHandler)
	}

	x.addr = l.Addr()
	x.promSvr = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	x.wg.Add(1)
	go func() {
		defer x.wg.Done()
		if err := x.promSvr.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("prometheus http serve")
		}
	}()
	log.Info().Str("addr", x.addr.String()).Str("path", x.cfg.MetricPath).Msg("prometheus http start listen on")
	return nil
}

func (x *Reporter) startAggregate() {
	x.wg.Add(1)
	go func() {
		defer x.wg.Done()
		for {
			select {
			case rc := <-x.metricsChan:
				x.merge(&rc)
			case done := <-x.flushChan:
				x.drain()
				close(done)
			case <-x.ctx.Done():
				return
			}
		}
	}()
}

func (x *Reporter) drain() {
	for {
		select {
		case rc := <-x.metricsChan:
			x.merge(&rc)
		default:
			return
		}
	}
}

func (x *Reporter) startPusher() {
	pusher := push.New(x.cfg.PushAddr, x.cfg.PushJobName).Gatherer(x.registry)
	x.wg.Add(1)
	go func() {
		defer x.wg.Done()
		t := time.NewTicker(time.Second * time.Duration(x.cfg.PushIntervalSec))
		defer t.Stop()
		for {
			select {
			case <-x.ctx.Done():
				return
			case <-t.C:
				ctx, cancel := context.WithTimeout(x.ctx, 5*time.Second)
				if err := pusher.PushContext(ctx); err != nil {
					log.Error().Err(err).Str("addr", x.cfg.PushAddr).Msg("prometheus push")
				}
				cancel()
			}
		}
	}()
}

func (x *Reporter) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	usage := float64(len(x.metricsChan)) / float64(cap(x.metricsChan))
	status, code := "healthy", http.StatusOK
	if usage > 0.9 {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":     status,
		"service":    _serviceName,
		"uptime":     time.Since(x.started).String(),
		"chan_usage": usage,
	})
}

func (x *Reporter) merge(rc *metrics.Record) {
	key := metrics.RecordKey(rc)
	if c, ok := x.collectors[key]; ok {
		c.merge(rc)
		return
	}
	c, err := x.newCollector(rc)
	if err != nil {
		log.Error().Err(err).Str("metric", rc.Metrics().Name()).Msg("prometheus register")
		return
	}
	x.collectors[key] = c
}

// collector is either a counter or a gauge; averaging policies keep their
// running sum and count so the gauge shows the mean.
type collector struct {
	counter prometheus.Counter
	gauge   prometheus.Gauge
	sum     float64
	cnt     int
	set     bool
}

func (x *Reporter) newCollector(rc *metrics.Record) (*collector, error) {
	labels := make(prometheus.Labels, len(rc.Dimensions())+len(x.cfg.ExtLabels))
	for k, v := range x.cfg.ExtLabels {
		labels[k] = v
	}
	for k, v := range rc.Dimensions() {
		labels[k] = v
	}
	subsystem := sanitize(rc.Metrics().Group())
	name := sanitize(rc.Metrics().Name())

	c := &collector{}
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("register %s_%s: %v", subsystem, name, r)
			}
		}()
		if rc.Metrics().Policy() == metrics.Policy_Sum {
			c.counter = x.factory.NewCounter(prometheus.CounterOpts{
				Subsystem: subsystem, Name: name, ConstLabels: labels,
			})
		} else {
			c.gauge = x.factory.NewGauge(prometheus.GaugeOpts{
				Subsystem: subsystem, Name: name, ConstLabels: labels,
			})
		}
	}()
	if err != nil {
		return nil, err
	}
	c.merge(rc)
	return c, nil
}

func (c *collector) merge(rc *metrics.Record) {
	if c.counter != nil {
		v, _ := rc.RawData()
		c.counter.Add(float64(v))
		return
	}
	v, n := rc.RawData()
	switch rc.Metrics().Policy() {
	case metrics.Policy_Avg, metrics.Policy_Stopwatch:
		c.sum += float64(v)
		c.cnt += n
		if c.cnt > 0 {
			c.gauge.Set(c.sum / float64(c.cnt))
		}
	case metrics.Policy_Max:
		if !c.set || float64(v) > c.sum {
			c.sum = float64(v)
			c.gauge.Set(c.sum)
		}
	case metrics.Policy_Min:
		if !c.set || float64(v) < c.sum {
			c.sum = float64(v)
			c.gauge.Set(c.sum)
		}
	default:
		c.gauge.Set(float64(v))
	}
	c.set = true
}

func sanitize(s string) string {
	return strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(s)
}
