package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/linchenxuan/taglog/log"
)

// CompletionContext is where task completions are delivered. Every function
// posted to one context runs on the same goroutine, in posting order.
type CompletionContext interface {
	Post(fn func())
}

// Looper is a single-goroutine CompletionContext, the counterpart of a UI
// main thread.
type Looper struct {
	ch        chan func()
	closing   chan struct{}
	done      chan struct{}
	lock      sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewLooper starts a looper whose queue holds size functions.
func NewLooper(size int) *Looper {
	if size < 1 {
		size = _defaultLooperSize
	}
	l := &Looper{
		ch:      make(chan func(), size),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.loop()
	return l
}

func (l *Looper) loop() {
	defer close(l.done)
	for fn := range l.ch {
		l.run(fn)
	}
}

func (l *Looper) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Msg("completion callback panic")
		}
	}()
	fn()
}

// Post queues fn. It blocks while the queue is full and drops fn once the
// looper is closed.
func (l *Looper) Post(fn func()) {
	l.lock.RLock()
	defer l.lock.RUnlock()
	if l.closed {
		log.Debug().Msg("looper closed, completion dropped")
		return
	}
	select {
	case l.ch <- fn:
	case <-l.closing:
		log.Debug().Msg("looper closing, completion dropped")
	}
}

// Sync waits until every function posted before the call has run.
func (l *Looper) Sync(ctx context.Context) error {
	reached := make(chan struct{})
	l.lock.RLock()
	if l.closed {
		l.lock.RUnlock()
		return ErrClosed
	}
	select {
	case l.ch <- func() { close(reached) }:
	case <-l.closing:
		l.lock.RUnlock()
		return ErrClosed
	case <-ctx.Done():
		l.lock.RUnlock()
		return ctx.Err()
	}
	l.lock.RUnlock()

	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close runs what is already queued and stops the goroutine.
func (l *Looper) Close() {
	l.closeOnce.Do(func() {
		close(l.closing)
		l.lock.Lock()
		l.closed = true
		close(l.ch)
		l.lock.Unlock()
	})
	<-l.done
}
