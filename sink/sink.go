// Package sink persists one telemetry stream: lines are formatted on the
// producer, buffered, and written in batches by dispatcher tasks, so the
// producer never waits on the file system.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/linchenxuan/taglog/dispatch"
	"github.com/linchenxuan/taglog/log"
	"github.com/linchenxuan/taglog/metrics"
	"github.com/linchenxuan/taglog/telemetry"
	"github.com/linchenxuan/taglog/utils/file"
	"github.com/linchenxuan/taglog/utils/pool"
)

// ErrClosed is returned for records and writes after the sink was closed.
var ErrClosed = errors.New("sink closed")

// Destination is an append-only byte sink, normally an *os.File opened in
// append mode. When it also has a Sync method, SyncOnFlush calls it.
type Destination interface {
	io.Writer
	io.Closer
}

type syncer interface {
	Sync() error
}

const _batchBufferCap = 8 << 10

var _batchBuffers = pool.NewBufferPool("sink_batch", _batchBufferCap)

// Option customises a Sink.
type Option func(*Sink)

// WithOnWritten runs fn on the completion context after every batch written
// by a task. fn must not record into the same sink.
func WithOnWritten(fn func(BatchResult)) Option {
	return func(s *Sink) {
		s.onWritten = fn
	}
}

// Sink buffers and writes the lines of one stream.
type Sink struct {
	stream string
	cfg    Config
	exec   dispatch.Executor
	dims   metrics.Dimension

	onWritten func(BatchResult)

	lock     sync.Mutex // guards buf and closed
	buf      *BatchBuffer
	closed   bool
	inflight sync.WaitGroup

	writeLock  sync.Mutex // guards dest and destClosed
	dest       Destination
	destClosed bool

	counter atomic.Int64 // successful writes, used as line prefix
	batches atomic.Int64
	written atomic.Int64
	dropped atomic.Int64
}

// New creates a sink writing to dest. Batches run on exec, which is the
// dispatcher or one of its lanes.
func New(stream string, dest Destination, exec dispatch.Executor, cfg Config, opts ...Option) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sink %s: %w", stream, err)
	}
	if dest == nil {
		return nil, fmt.Errorf("sink %s: nil destination", stream)
	}
	if exec == nil && cfg.Mode == ModeBatched {
		return nil, fmt.Errorf("sink %s: batched mode needs an executor", stream)
	}
	s := &Sink{
		stream: stream,
		cfg:    cfg,
		exec:   exec,
		dest:   dest,
		buf:    NewBatchBuffer(cfg.Threshold),
		dims:   metrics.Dimension{metrics.DimStream: stream},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Open creates the file at path in append mode and builds a sink on it.
func Open(stream, path string, exec dispatch.Executor, cfg Config, opts ...Option) (*Sink, error) {
	f, err := file.OpenAppend(path)
	if err != nil {
		return nil, fmt.Errorf("sink %s: %w", stream, err)
	}
	s, err := New(stream, f, exec, cfg, opts...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	log.Info().Str("stream", stream).Str("path", path).Int("threshold", cfg.Threshold).
		Str("mode", cfg.Mode.String()).Bool("ordered", cfg.Ordered).Msg("sink opened")
	return s, nil
}

// Stream returns the stream id.
func (s *Sink) Stream() string { return s.stream }

// Config returns the write policy.
func (s *Sink) Config() Config { return s.cfg }

// Counter returns the batch counter: the number of successful writes.
func (s *Sink) Counter() int64 { return s.counter.Load() }

// Batches returns the number of batches handed to the executor.
func (s *Sink) Batches() int64 { return s.batches.Load() }

// Written returns the number of lines that reached the destination.
func (s *Sink) Written() int64 { return s.written.Load() }

// Dropped returns the number of lines that were lost.
func (s *Sink) Dropped() int64 { return s.dropped.Load() }

// Buffered returns the number of lines waiting for the next batch.
func (s *Sink) Buffered() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.buf.Len()
}

// Record formats line and buffers it, submitting a batch once the buffer
// exceeds its threshold. In immediate mode the line is written on the
// caller. Failures are logged and counted, never returned.
func (s *Sink) Record(line telemetry.Line) {
	text, ok := s.format(line)
	if !ok {
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		s.drop(1, "closed")
		return
	}
	metrics.IncrCounterWithDimGroup(metrics.NameSinkRecordTotal, metrics.GroupTaglog, 1, s.dims)

	if s.cfg.Mode == ModeImmediate {
		if _, err := s.write([]string{text}); err != nil {
			log.Error().Str("stream", s.stream).Err(err).Msg("immediate write failed")
			s.drop(1, reason(err))
		}
		return
	}

	s.buf.Append(text)
	if s.buf.ShouldFlush() {
		s.submitLocked(s.buf.Drain())
	}
}

// RecordBatch buffers every line and submits the whole buffer as one batch,
// so one call yields one counter value, even when lines is empty. Lines
// that fail to format are dropped individually.
func (s *Sink) RecordBatch(lines []telemetry.Line) {
	texts := make([]string, 0, len(lines))
	for _, l := range lines {
		if text, ok := s.format(l); ok {
			texts = append(texts, text)
		}
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		s.drop(len(texts), "closed")
		return
	}
	metrics.IncrCounterWithDimGroup(metrics.NameSinkRecordTotal, metrics.GroupTaglog, metrics.Value(len(texts)), s.dims)
	for _, t := range texts {
		s.buf.Append(t)
	}
	if s.cfg.Mode == ModeImmediate {
		batch := s.buf.Drain()
		if _, err := s.write(batch); err != nil {
			log.Error().Str("stream", s.stream).Err(err).Msg("immediate write failed")
			s.drop(len(batch), reason(err))
		}
		return
	}
	s.submitLocked(s.buf.Drain())
}

// RecordSync formats, writes and flushes line on the caller, bypassing the
// buffer, and returns the write error.
func (s *Sink) RecordSync(line telemetry.Line) error {
	text, err := line.Format()
	if err != nil {
		s.drop(1, "format")
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		s.drop(1, "closed")
		return ErrClosed
	}
	metrics.IncrCounterWithDimGroup(metrics.NameSinkRecordTotal, metrics.GroupTaglog, 1, s.dims)
	if _, err := s.write([]string{text}); err != nil {
		s.drop(1, reason(err))
		return err
	}
	return nil
}

// Flush submits whatever is buffered as one batch.
func (s *Sink) Flush() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed || s.buf.Len() == 0 {
		return
	}
	s.submitLocked(s.buf.Drain())
}

// Close rejects further records, submits the buffered tail, waits until
// every batch of this sink has settled and closes the destination. If ctx
// ends first the destination is closed anyway; batches still queued then
// fail with ErrClosed and are counted as dropped.
func (s *Sink) Close(ctx context.Context) error {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return nil
	}
	s.closed = true
	if s.buf.Len() > 0 {
		s.submitLocked(s.buf.Drain())
	}
	s.lock.Unlock()

	settled := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(settled)
	}()

	var waitErr error
	select {
	case <-settled:
	case <-ctx.Done():
		waitErr = fmt.Errorf("sink %s: waiting for batches: %w", s.stream, ctx.Err())
	}

	s.writeLock.Lock()
	s.destClosed = true
	closeErr := s.dest.Close()
	s.writeLock.Unlock()

	log.Info().Str("stream", s.stream).Int64("batches", s.batches.Load()).
		Int64("written", s.written.Load()).Int64("dropped", s.dropped.Load()).Msg("sink closed")
	return errors.Join(waitErr, closeErr)
}

func (s *Sink) format(line telemetry.Line) (string, bool) {
	text, err := line.Format()
	if err != nil {
		log.Error().Str("stream", s.stream).Err(err).Msg("format record")
		s.drop(1, "format")
		return "", false
	}
	return text, true
}

// submitLocked hands lines to the executor. Called with s.lock held, so
// batches of one sink are submitted in drain order.
func (s *Sink) submitLocked(lines []string) {
	n := len(lines)
	s.inflight.Add(1)
	s.batches.Add(1)
	metrics.IncrCounterWithDimGroup(metrics.NameSinkBatchTotal, metrics.GroupTaglog, 1, s.dims)
	metrics.UpdateAvgGaugeWithDimGroup(metrics.NameSinkBatchLinesAvg, metrics.GroupTaglog, metrics.Value(n), s.dims)

	task := &AppendTask{sink: s, lines: lines}
	_ = dispatch.Submit(s.exec, task.Run, s.onWritten,
		dispatch.WithName(s.stream),
		dispatch.WithSettled(func(err error) {
			if err != nil {
				s.drop(n, reason(err))
			}
			s.inflight.Done()
		}))
}

// write appends lines to the destination in a single write. Lines are
// prefixed with the batch counter when configured; the counter advances
// only after the write and the optional sync succeeded.
func (s *Sink) write(lines []string) (BatchResult, error) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	res := BatchResult{Stream: s.stream, Lines: len(lines)}
	if s.destClosed {
		return res, fmt.Errorf("sink %s: %w", s.stream, ErrClosed)
	}

	buf := _batchBuffers.Get()
	defer _batchBuffers.Put(buf)

	counter := s.counter.Load()
	for _, l := range lines {
		if s.cfg.CounterPrefix {
			buf.WriteString(telemetry.PrefixCounter(counter, l))
		} else {
			buf.WriteString(l)
		}
		buf.WriteString(telemetry.Terminator)
	}

	n, err := s.dest.Write(buf.Bytes())
	res.Bytes = n
	if err != nil {
		return res, fmt.Errorf("sink %s: write %d lines: %w", s.stream, len(lines), err)
	}
	if s.cfg.SyncOnFlush {
		if sy, ok := s.dest.(syncer); ok {
			if err := sy.Sync(); err != nil {
				return res, fmt.Errorf("sink %s: sync: %w", s.stream, err)
			}
		}
	}

	res.Counter = counter
	s.counter.Add(1)
	s.written.Add(int64(len(lines)))
	metrics.IncrCounterWithDimGroup(metrics.NameSinkWrittenLinesTotal, metrics.GroupTaglog, metrics.Value(len(lines)), s.dims)
	return res, nil
}

func (s *Sink) drop(n int, why string) {
	if n <= 0 {
		return
	}
	s.dropped.Add(int64(n))
	metrics.IncrCounterWithDimGroup(metrics.NameSinkDropTotal, metrics.GroupTaglog, metrics.Value(n),
		metrics.Dimension{metrics.DimStream: s.stream, metrics.DimReason: why})
}

func reason(err error) string {
	switch {
	case errors.Is(err, dispatch.ErrQueueFull):
		return "queue_full"
	case errors.Is(err, dispatch.ErrDropped):
		return "dropped"
	case errors.Is(err, dispatch.ErrClosed), errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, dispatch.ErrTaskPanic):
		return "panic"
	default:
		return "write"
	}
}
