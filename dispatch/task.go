package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned by Submit under the Reject policy.
	ErrQueueFull = errors.New("dispatch queue full")
	// ErrDropped settles a queued task evicted under the DropOldest policy.
	ErrDropped = errors.New("task dropped by admission policy")
	// ErrClosed is returned by Submit after the executor was closed.
	ErrClosed = errors.New("executor closed")
	// ErrTaskPanic wraps a value recovered from a panicking task body.
	ErrTaskPanic = errors.New("task panic")
)

// Task is a unit of work producing a result of type R.
type Task[R any] func() (R, error)

// Executor runs submitted tasks. The pool (Dispatcher) and its serial
// lanes (Lane) are the implementations.
type Executor interface {
	// Name identifies the executor in logs and metrics.
	Name() string
	submit(j *job) error
}

type submitOptions struct {
	name    string
	settled func(error)
}

// SubmitOption customises one submission.
type SubmitOption func(*submitOptions)

// WithName labels the task in logs and metrics.
func WithName(name string) SubmitOption {
	return func(o *submitOptions) {
		o.name = name
	}
}

// WithSettled registers fn to run on the executing goroutine once the task
// has reached a final state: nil after success, the task error, ErrDropped
// after eviction, or the Submit error when the task was never admitted.
// fn runs exactly once per Submit call.
func WithSettled(fn func(error)) SubmitOption {
	return func(o *submitOptions) {
		o.settled = fn
	}
}

// Submit hands t to ex. When the body returns without error, onComplete
// (if not nil) runs with its result on the completion context of the
// dispatcher, never on the worker. Failed or panicking tasks are logged,
// counted and their completion suppressed.
func Submit[R any](ex Executor, t Task[R], onComplete func(R), opts ...SubmitOption) error {
	o := submitOptions{name: "task"}
	for _, opt := range opts {
		opt(&o)
	}
	j := &job{
		name:    o.name,
		settled: o.settled,
		run: func() (func(), error) {
			r, err := t()
			if err != nil {
				return nil, err
			}
			if onComplete == nil {
				return nil, nil
			}
			return func() { onComplete(r) }, nil
		},
	}
	return ex.submit(j)
}

// job is a type-erased task: run returns the completion to post.
type job struct {
	name    string
	run     func() (func(), error)
	settled func(error)
}

func (j *job) invoke() (post func(), err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()
	return j.run()
}

func (j *job) settle(err error) {
	if j.settled != nil {
		j.settled(err)
	}
}
