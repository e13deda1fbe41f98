// Package dispatch moves blocking work off producer goroutines. A
// Dispatcher owns a bounded, growable worker pool plus any number of serial
// lanes; both admit tasks through a bounded queue with an explicit
// admission policy and deliver completions to one CompletionContext.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/linchenxuan/taglog/log"
	"github.com/linchenxuan/taglog/metrics"
)

// _quiesceTick is the polling interval of Quiesce.
const _quiesceTick = time.Millisecond * 10

const _poolName = "pool"

// Dispatcher is the shared worker pool. Tasks submitted to it run on any
// worker in the order workers become free; use a Lane for ordering.
type Dispatcher struct {
	cfg   Config
	cc    CompletionContext
	queue *mailbox

	workers atomic.Int32 // live workers
	active  atomic.Int64 // pool tasks admitted and not yet finished
	pending atomic.Int64 // admitted but not settled, lanes included

	wg        sync.WaitGroup
	laneLock  sync.Mutex
	lanes     map[string]*Lane
	closed    atomic.Bool
	closeOnce sync.Once
}

// New starts MinWorkers workers. Completions are posted to cc.
func New(cfg *Config, cc CompletionContext) (*Dispatcher, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	c.CheckCfgValid()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if cc == nil {
		return nil, errors.New("dispatch: completion context is required")
	}
	d := &Dispatcher{
		cfg:   c,
		cc:    cc,
		queue: newMailbox(c.QueueSize, c.Admission),
		lanes: make(map[string]*Lane),
	}
	for i := 0; i < c.MinWorkers; i++ {
		d.spawn(true)
	}
	log.Info().Int("minWorkers", c.MinWorkers).Int("maxWorkers", c.MaxWorkers).
		Int("queueSize", c.QueueSize).Str("admission", c.Admission.String()).Msg("dispatcher started")
	return d, nil
}

// Name implements Executor.
func (d *Dispatcher) Name() string {
	return _poolName
}

// Config returns the effective configuration.
func (d *Dispatcher) Config() Config {
	return d.cfg
}

// Workers returns the number of live workers.
func (d *Dispatcher) Workers() int {
	return int(d.workers.Load())
}

// Pending returns the number of admitted tasks not yet settled.
func (d *Dispatcher) Pending() int64 {
	return d.pending.Load()
}

// submit admits j to the shared queue and adds a worker while there are
// more unfinished pool tasks than workers.
func (d *Dispatcher) submit(j *job) error {
	evicted, err := d.admit(_poolName, d.queue, j)
	if err != nil {
		return err
	}
	d.active.Add(int64(1 - evicted))
	for d.active.Load() > int64(d.workers.Load()) {
		if !d.grow() {
			break
		}
	}
	return nil
}

// admit pushes j into mb and keeps the pending count and queue metrics. It
// returns how many queued jobs were evicted to make room.
func (d *Dispatcher) admit(executor string, mb *mailbox, j *job) (int, error) {
	dims := metrics.Dimension{metrics.DimExecutor: executor}
	d.pending.Add(1)
	evicted, err := mb.push(j)
	if err != nil {
		d.pending.Add(-1)
		reason := "closed"
		if errors.Is(err, ErrQueueFull) {
			reason = "queue_full"
		}
		metrics.IncrCounterWithDimGroup(metrics.NameDispatchRejectTotal, metrics.GroupTaglog, 1,
			metrics.Dimension{metrics.DimExecutor: executor, metrics.DimReason: reason})
		log.Warn().Str("executor", executor).Str("task", j.name).Err(err).Msg("task not admitted")
		j.settle(err)
		return 0, err
	}
	for _, old := range evicted {
		metrics.IncrCounterWithDimGroup(metrics.NameDispatchRejectTotal, metrics.GroupTaglog, 1,
			metrics.Dimension{metrics.DimExecutor: executor, metrics.DimReason: "dropped"})
		log.Warn().Str("executor", executor).Str("task", old.name).Msg("queued task evicted")
		d.settle(old, ErrDropped)
	}

	depth := metrics.Value(mb.len())
	metrics.IncrCounterWithDimGroup(metrics.NameDispatchTaskTotal, metrics.GroupTaglog, 1, dims)
	metrics.UpdateGaugeWithDimGroup(metrics.NameDispatchQueueLength, metrics.GroupTaglog, depth, dims)
	metrics.UpdateMaxGaugeWithDimGroup(metrics.NameDispatchQueueMax, metrics.GroupTaglog, depth, dims)
	return len(evicted), nil
}

func (d *Dispatcher) settle(j *job, err error) {
	j.settle(err)
	d.pending.Add(-1)
}

// grow adds one extra worker unless MaxWorkers are already running.
func (d *Dispatcher) grow() bool {
	for {
		n := d.workers.Load()
		if int(n) >= d.cfg.MaxWorkers {
			return false
		}
		if d.workers.CompareAndSwap(n, n+1) {
			d.start(false)
			return true
		}
	}
}

func (d *Dispatcher) spawn(core bool) {
	d.workers.Add(1)
	d.start(core)
}

func (d *Dispatcher) start(core bool) {
	metrics.UpdateGaugeWithGroup(metrics.NameDispatchWorkerCount, metrics.GroupTaglog, metrics.Value(d.workers.Load()))
	d.wg.Add(1)
	go d.worker(core)
}

// worker runs queued jobs until the queue is closed and drained. Extra
// workers also exit after IdleTimeout without work.
func (d *Dispatcher) worker(core bool) {
	defer d.wg.Done()

	var idleC <-chan time.Time
	var timer *time.Timer
	if !core {
		timer = time.NewTimer(d.cfg.IdleTimeout)
		defer timer.Stop()
		idleC = timer.C
	}

	for {
		select {
		case j, ok := <-d.queue.ch:
			if !ok {
				d.retire()
				return
			}
			d.execute(_poolName, j)
			d.active.Add(-1)
			if timer != nil {
				timer.Reset(d.cfg.IdleTimeout)
			}
		case <-idleC:
			if d.queue.len() > 0 {
				timer.Reset(d.cfg.IdleTimeout)
				continue
			}
			n := d.retire()
			log.Debug().Int("workers", n).Msg("idle worker retired")
			return
		}
	}
}

// retire removes the calling worker from the live count. A submit racing
// the retirement may have counted this worker as available and skipped
// growing, so the pool grows again while tasks outnumber workers.
func (d *Dispatcher) retire() int {
	n := d.workers.Add(-1)
	metrics.UpdateGaugeWithGroup(metrics.NameDispatchWorkerCount, metrics.GroupTaglog, metrics.Value(n))
	for d.active.Load() > int64(d.workers.Load()) {
		if !d.grow() {
			break
		}
	}
	return int(n)
}

// execute runs j, posts its completion and settles it. A failing task is
// logged and counted; it never stops the goroutine running it.
func (d *Dispatcher) execute(executor string, j *job) {
	dims := metrics.Dimension{metrics.DimExecutor: executor, metrics.DimTask: j.name}
	start := time.Now()
	post, err := j.invoke()
	metrics.RecordStopwatchWithDimGroup(metrics.NameDispatchTaskTime, metrics.GroupTaglog, start, dims)
	if err != nil {
		metrics.IncrCounterWithDimGroup(metrics.NameDispatchTaskFailTotal, metrics.GroupTaglog, 1, dims)
		log.Error().Str("executor", executor).Str("task", j.name).Err(err).Msg("task failed")
		d.settle(j, err)
		return
	}
	if post != nil {
		d.cc.Post(post)
	}
	d.settle(j, nil)
}

// NewLane returns the serial lane called name, creating it on first use.
func (d *Dispatcher) NewLane(name string) (*Lane, error) {
	d.laneLock.Lock()
	defer d.laneLock.Unlock()
	if d.closed.Load() {
		return nil, ErrClosed
	}
	if l, ok := d.lanes[name]; ok {
		return l, nil
	}
	l := newLane(d, name)
	d.lanes[name] = l
	return l, nil
}

func (d *Dispatcher) forgetLane(l *Lane) {
	d.laneLock.Lock()
	defer d.laneLock.Unlock()
	if cur, ok := d.lanes[l.name]; ok && cur == l {
		delete(d.lanes, l.name)
	}
}

// Quiesce waits until every admitted task, on the pool and on all lanes,
// has settled.
func (d *Dispatcher) Quiesce(ctx context.Context) error {
	if d.pending.Load() == 0 {
		return nil
	}
	ticker := time.NewTicker(_quiesceTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if d.pending.Load() == 0 {
				return nil
			}
		}
	}
}

// Close stops intake, runs every task already queued and joins the workers
// and lanes. It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.laneLock.Lock()
		d.closed.Store(true)
		lanes := make([]*Lane, 0, len(d.lanes))
		for _, l := range d.lanes {
			lanes = append(lanes, l)
		}
		d.laneLock.Unlock()

		for _, l := range lanes {
			l.Close()
		}
		d.queue.close()
		// Every extra worker may have retired; one more drains the rest.
		d.spawn(true)
		d.wg.Wait()
		log.Info().Msg("dispatcher closed")
	})
}
