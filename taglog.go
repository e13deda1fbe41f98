// Package taglog assembles the recorder: logger, metrics, plugins, the
// shared task dispatcher with its completion looper, the event publisher and
// the recording session.
package taglog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linchenxuan/taglog/config"
	"github.com/linchenxuan/taglog/dispatch"
	"github.com/linchenxuan/taglog/event"
	"github.com/linchenxuan/taglog/log"
	"github.com/linchenxuan/taglog/metrics"
	"github.com/linchenxuan/taglog/metrics/prometheus"
	"github.com/linchenxuan/taglog/plugin"
	"github.com/linchenxuan/taglog/session"
)

const _eventTimeout = time.Second

// ErrSessionActive is returned when a session is started while another runs.
var ErrSessionActive = errors.New("a recording session is already active")

// App is the recorder application, holding every long-lived component.
// Sessions come and go; the dispatcher and the looper live as long as the App.
type App struct {
	Cfg           *config.Config
	PluginManager *plugin.Manager
	Metrics       *metrics.Aggregator
	Looper        *dispatch.Looper
	Dispatcher    *dispatch.Dispatcher
	Publisher     *event.Publisher

	lock     sync.Mutex
	session  *session.Session
	stopOnce sync.Once
	stopErr  error
}

// _topics are the event topics every App publishes.
var _topics = []string{event.TopicMarkerDetected, event.TopicScanCaptured}

// New creates an App from cfg; a nil cfg selects config.Default. When a
// step fails, the components already built are released in reverse order.
func New(cfg *config.Config) (_ *App, err error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var undo []func()
	defer func() {
		if err == nil {
			return
		}
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}()

	// 1. Logger
	if err := log.Initialize(cfg.Log); err != nil {
		return nil, fmt.Errorf("init log: %w", err)
	}

	// 2. Metrics and plugins
	agg := metrics.NewAggregator()
	metrics.AddReporter(agg)
	undo = append(undo, func() { metrics.RemoveReporter(agg) })
	pm := plugin.NewManager()
	pm.RegisterFactory(prometheus.NewFactory())
	undo = append(undo, pm.Close)
	if err := pm.SetupPlugins(cfg.Plugin); err != nil {
		return nil, err
	}

	// 3. Dispatcher and its completion context
	looper := dispatch.NewLooper(cfg.Dispatcher.LooperSize)
	undo = append(undo, looper.Close)
	d, err := dispatch.New(cfg.Dispatcher, looper)
	if err != nil {
		return nil, err
	}
	undo = append(undo, d.Close)

	// 4. Events
	pub := event.NewPublisher()
	for _, topic := range _topics {
		if err := pub.NewTopic(topic, _eventTimeout); err != nil {
			return nil, fmt.Errorf("event topic %s: %w", topic, err)
		}
	}

	a := &App{
		Cfg:           cfg,
		PluginManager: pm,
		Metrics:       agg,
		Looper:        looper,
		Dispatcher:    d,
		Publisher:     pub,
	}
	log.Info().Int("minWorkers", cfg.Dispatcher.MinWorkers).Int("maxWorkers", cfg.Dispatcher.MaxWorkers).
		Str("admission", cfg.Dispatcher.Admission.String()).Msg("taglog application initialized")
	return a, nil
}

// StartSession creates a new recording session under the configured root.
func (a *App) StartSession(opts ...session.Option) (*session.Session, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.session != nil {
		return nil, ErrSessionActive
	}
	opts = append([]session.Option{session.WithPublisher(a.Publisher)}, opts...)
	s, err := session.New(a.Cfg.Session, a.Dispatcher, a.Looper, opts...)
	if err != nil {
		return nil, err
	}
	a.session = s
	return s, nil
}

// Session returns the active session, or nil.
func (a *App) Session() *session.Session {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.session
}

// StopSession stops the active session, if any.
func (a *App) StopSession(ctx context.Context) error {
	a.lock.Lock()
	s := a.session
	a.session = nil
	a.lock.Unlock()
	if s == nil {
		return nil
	}
	return s.Stop(ctx)
}

// Stop shuts the application down: the active session first, then the
// dispatcher once its queue is empty, then the looper so every completion
// has run. Stop is idempotent.
func (a *App) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() {
		log.Info().Msg("taglog application shutting down")
		errs := []error{a.StopSession(ctx)}
		if err := a.Dispatcher.Quiesce(ctx); err != nil {
			errs = append(errs, fmt.Errorf("quiesce dispatcher: %w", err))
		}
		a.Dispatcher.Close()
		a.Looper.Close()
		a.PluginManager.Close()
		metrics.RemoveReporter(a.Metrics)
		log.Refresh()
		a.stopErr = errors.Join(errs...)
	})
	return a.stopErr
}
