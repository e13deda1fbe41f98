// Package session runs one recording: it creates the session directory,
// opens a sink per stream and routes every producer callback to its sink.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/linchenxuan/taglog/dispatch"
	"github.com/linchenxuan/taglog/event"
	"github.com/linchenxuan/taglog/log"
	"github.com/linchenxuan/taglog/metrics"
	"github.com/linchenxuan/taglog/sink"
	"github.com/linchenxuan/taglog/telemetry"
	"github.com/linchenxuan/taglog/utils/file"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	_lockFile     = ".lock"
	_topicTimeout = time.Second
)

// ErrNotRecording is returned by operations that need a running session.
var ErrNotRecording = errors.New("session not recording")

// Option customises a Session.
type Option func(*Session)

// WithClock replaces the nanosecond clock used to stamp marker clicks and
// frames without a timestamp.
func WithClock(now func() int64) Option {
	return func(s *Session) {
		s.clock = now
	}
}

// WithPublisher publishes marker and scan events on pub instead of a
// private publisher.
func WithPublisher(pub *event.Publisher) Option {
	return func(s *Session) {
		s.pub = pub
	}
}

// Session is one recording. Producer callbacks may arrive on any goroutine.
type Session struct {
	id    string
	dir   string
	cfg   Config
	d     *dispatch.Dispatcher
	cc    dispatch.CompletionContext
	pub   *event.Publisher
	clock func() int64
	lock  *file.FileLock

	sinks map[string]*sink.Sink
	lanes []*dispatch.Lane

	recording atomic.Bool
	stopOnce  sync.Once
	stopErr   error
	ctx       context.Context
	cancel    context.CancelFunc
	runLock   sync.Mutex // orders joins against the cancel in Stop
	wg        sync.WaitGroup

	sensors SensorSource

	scanner     WifiScanner
	scanLimiter *rate.Limiter
	scanReq     chan struct{}
	scanCount   atomic.Int64

	frameLock sync.Mutex
	seen      map[int]struct{}
	tracked   []telemetry.Marker

	refLock       sync.Mutex
	markerCounter int64
}

// New creates the session directory under cfg.RootDir, locks it and opens
// the five stream files. Ordered sinks get a lane of d; the others share
// its pool. Completions and events are delivered on cc.
func New(cfg *Config, d *dispatch.Dispatcher, cc dispatch.CompletionContext, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}
	if d == nil || cc == nil {
		return nil, errors.New("session: dispatcher and completion context are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:      uuid.NewString(),
		cfg:     *cfg,
		d:       d,
		cc:      cc,
		clock:   func() int64 { return time.Now().UnixNano() },
		sinks:   make(map[string]*sink.Sink, len(_streamFiles)),
		ctx:     ctx,
		cancel:  cancel,
		scanReq: make(chan struct{}, 1),
		seen:    make(map[int]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pub == nil {
		s.pub = event.NewPublisher()
	}
	for _, topic := range []string{event.TopicMarkerDetected, event.TopicScanCaptured} {
		if err := s.pub.NewTopic(topic, _topicTimeout); err != nil && !errors.Is(err, event.ErrTopicExists) {
			cancel()
			return nil, err
		}
	}
	limit := rate.Inf
	if cfg.ScanInterval > 0 {
		limit = rate.Every(cfg.ScanInterval)
	}
	s.scanLimiter = rate.NewLimiter(limit, cfg.ScanBurst)

	if err := s.open(time.Now()); err != nil {
		cancel()
		s.release(context.Background())
		return nil, err
	}
	log.Info().Str("session", s.id).Str("dir", s.dir).Msg("session created")
	return s, nil
}

func (s *Session) open(now time.Time) error {
	dir, err := createDir(s.cfg.RootDir, now)
	if err != nil {
		return err
	}
	s.dir = dir

	s.lock = file.NewFileLock(filepath.Join(dir, _lockFile))
	if err := s.lock.Lock(); err != nil {
		s.lock = nil
		return fmt.Errorf("lock session dir: %w", err)
	}

	for _, stream := range Streams() {
		sc := s.cfg.Sink(stream)
		var exec dispatch.Executor = s.d
		if sc.Ordered && sc.Mode == sink.ModeBatched {
			lane, err := s.d.NewLane(s.id + "/" + stream)
			if err != nil {
				return err
			}
			s.lanes = append(s.lanes, lane)
			exec = lane
		}
		sk, err := sink.Open(stream, filepath.Join(dir, FileName(stream)), exec, sc)
		if err != nil {
			return err
		}
		s.sinks[stream] = sk
	}
	return nil
}

// ID returns the unique session id.
func (s *Session) ID() string { return s.id }

// Dir returns the session directory.
func (s *Session) Dir() string { return s.dir }

// Sink returns the sink of stream, or nil.
func (s *Session) Sink(stream string) *sink.Sink { return s.sinks[stream] }

// Recording reports whether producer callbacks are being recorded.
func (s *Session) Recording() bool { return s.recording.Load() }

// ScanCount returns the number of successful wireless scans recorded.
func (s *Session) ScanCount() int64 { return s.scanCount.Load() }

// MarkerCount returns the number of reference marker clicks.
func (s *Session) MarkerCount() int64 {
	s.refLock.Lock()
	defer s.refLock.Unlock()
	return s.markerCounter
}

// Start begins recording. sensors is registered with OnSensor as callback
// and scanner receives the first scan request; either may be nil.
func (s *Session) Start(sensors SensorSource, scanner WifiScanner) error {
	if s.ctx.Err() != nil {
		return ErrNotRecording
	}
	if !s.recording.CompareAndSwap(false, true) {
		return errors.New("session already started")
	}
	if scanner != nil && !s.join() {
		s.recording.Store(false)
		return ErrNotRecording
	}
	if sensors != nil {
		if err := sensors.Register(s.OnSensor); err != nil {
			s.recording.Store(false)
			if scanner != nil {
				s.wg.Done()
			}
			return fmt.Errorf("register sensors: %w", err)
		}
		s.sensors = sensors
	}
	if scanner != nil {
		s.scanner = scanner
		go s.scanLoop()
		s.requestScan()
	}
	log.Info().Str("session", s.id).Msg("recording started")
	return nil
}

// OnSensor records one sensor sample.
func (s *Session) OnSensor(sample telemetry.SensorSample) {
	if !s.recording.Load() {
		return
	}
	s.sinks[StreamIMU].Record(sample)
}

// OnScan receives the outcome of a wireless scan. A successful scan is
// written as one batch and counted; in both cases the next scan is
// requested while recording. Results of a failed scan are ignored.
func (s *Session) OnScan(success bool, results []telemetry.ScanResult) {
	if !s.recording.Load() {
		return
	}
	if success {
		lines := make([]telemetry.Line, len(results))
		for i, r := range results {
			lines[i] = telemetry.ScanRecord{Result: r}
		}
		s.sinks[StreamWLAN].RecordBatch(lines)
		n := s.scanCount.Add(1)
		metrics.IncrCounterWithDimGroup(metrics.NameSessionScanTotal, metrics.GroupTaglog, 1,
			metrics.Dimension{metrics.DimResult: "success"})
		s.publish(event.TopicScanCaptured, n)
	} else {
		metrics.IncrCounterWithDimGroup(metrics.NameSessionScanTotal, metrics.GroupTaglog, 1,
			metrics.Dimension{metrics.DimResult: "failure"})
		log.Debug().Str("session", s.id).Msg("wireless scan failed")
	}
	s.requestScan()
}

func (s *Session) requestScan() {
	select {
	case s.scanReq <- struct{}{}:
	default:
	}
}

// scanLoop issues scan requests, paced by the scan limiter, until the
// session stops.
func (s *Session) scanLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.scanReq:
		}
		if err := s.scanLimiter.Wait(s.ctx); err != nil {
			return
		}
		if !s.recording.Load() {
			return
		}
		if err := s.scanner.StartScan(); err != nil {
			metrics.IncrCounterWithDimGroup(metrics.NameSessionScanTotal, metrics.GroupTaglog, 1,
				metrics.Dimension{metrics.DimResult: "request_failed"})
			log.Warn().Str("session", s.id).Err(err).Msg("start scan")
			s.requestScan()
		}
	}
}

// OnFrame records one tracking update under the frame lock: markers newly
// in tracking state join the tracked set (the first sighting is published),
// then every tracked marker pose and the device pose are recorded. A marker
// stays in the tracked set after it leaves the view.
func (s *Session) OnFrame(frame telemetry.Frame) {
	s.frameLock.Lock()
	defer s.frameLock.Unlock()

	for _, m := range frame.Updated {
		if _, ok := s.seen[m.Index]; ok {
			// Known markers keep their latest pose estimate whatever the state.
			for i := range s.tracked {
				if s.tracked[i].Index == m.Index {
					s.tracked[i] = m
					break
				}
			}
			continue
		}
		if m.State != telemetry.Tracking {
			continue
		}
		s.seen[m.Index] = struct{}{}
		s.tracked = append(s.tracked, m)
		metrics.IncrCounterWithGroup(metrics.NameSessionMarkerTotal, metrics.GroupTaglog, 1)
		log.Info().Str("session", s.id).Int("marker", m.Index).Msg("marker detected")
		s.publish(event.TopicMarkerDetected, m.Index)
	}

	if !s.recording.Load() {
		return
	}
	ts := frame.Timestamp
	if ts == 0 {
		ts = s.clock()
	}
	markerSink := s.sinks[StreamMarkerPose]
	for _, m := range s.tracked {
		markerSink.Record(telemetry.MarkerPoseRecord{Index: m.Index, Timestamp: ts, Pose: m.Pose})
	}
	s.sinks[StreamPose].Record(telemetry.PoseRecord{Timestamp: ts, Pose: frame.Pose})
}

// Tracked returns the indexes of tracked markers in first-seen order.
func (s *Session) Tracked() []int {
	s.frameLock.Lock()
	defer s.frameLock.Unlock()
	out := make([]int, len(s.tracked))
	for i, m := range s.tracked {
		out[i] = m.Index
	}
	return out
}

// ClickReferenceMarker writes `markerCounter; timestamp` synchronously. The
// counter advances after the write attempt, so a failed click still uses
// up its number.
func (s *Session) ClickReferenceMarker() error {
	if !s.recording.Load() {
		return ErrNotRecording
	}
	s.refLock.Lock()
	defer s.refLock.Unlock()
	err := s.sinks[StreamRefMarker].RecordSync(telemetry.RefMarkerRecord{Counter: s.markerCounter, Timestamp: s.clock()})
	s.markerCounter++
	if err != nil {
		log.Error().Str("session", s.id).Err(err).Msg("reference marker write")
	}
	return err
}

// DriveTracking polls src every period and records each frame, standing in
// for a render loop. It returns nil when the session stops and ctx.Err()
// when ctx ends first. Update errors skip the frame.
func (s *Session) DriveTracking(ctx context.Context, src TrackingSource, period time.Duration) error {
	if period <= 0 {
		return fmt.Errorf("tracking period must be positive, got %v", period)
	}
	if !s.join() {
		return nil
	}
	defer s.wg.Done()

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ctx.Done():
			return nil
		case <-ticker.C:
			frame, err := src.Update()
			if err != nil {
				log.Warn().Str("session", s.id).Err(err).Msg("tracking update")
				continue
			}
			s.OnFrame(frame)
		}
	}
}

// join registers a goroutine that Stop must wait for. It reports false
// once Stop has cancelled the session.
func (s *Session) join() bool {
	s.runLock.Lock()
	defer s.runLock.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Session) publish(topic string, payload any) {
	s.cc.Post(func() {
		if err := s.pub.Publish(topic, payload); err != nil {
			log.Warn().Str("topic", topic).Err(err).Msg("publish session event")
		}
	})
}

// Stop ends the recording: producers are detached, every sink flushes its
// tail and is closed once its batches have settled, and the directory lock
// is released. Stop is idempotent.
func (s *Session) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.recording.Store(false)
		if s.sensors != nil {
			s.sensors.Unregister()
		}
		s.runLock.Lock()
		s.cancel()
		s.runLock.Unlock()
		s.wg.Wait()

		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.CloseTimeout)
			defer cancel()
		}
		s.stopErr = s.release(ctx)
		log.Info().Str("session", s.id).Int64("scans", s.scanCount.Load()).
			Int64("markers", s.MarkerCount()).Err(s.stopErr).Msg("session stopped")
	})
	return s.stopErr
}

// release closes the sinks concurrently, then their lanes, then unlocks
// the directory.
func (s *Session) release(ctx context.Context) error {
	// One failing sink must not cut the wait of the others short.
	var g errgroup.Group
	for _, sk := range s.sinks {
		g.Go(func() error {
			return sk.Close(ctx)
		})
	}
	err := g.Wait()
	for _, l := range s.lanes {
		l.Close()
	}
	if s.lock != nil {
		if uerr := s.lock.Unlock(); uerr != nil {
			err = errors.Join(err, fmt.Errorf("unlock session dir: %w", uerr))
		}
	}
	return err
}
