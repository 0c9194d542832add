// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package futures provides Future, a single-assignment result with done
// callbacks, and Executor, which runs functions on a thread pool and
// resolves futures with their outcomes.
//
// Done callbacks are delivered through a [dispatch.Dispatcher], so they run
// on the reactor's owner goroutine regardless of which goroutine resolved
// the future.
package futures

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/go-hostloop/dispatch"
	"github.com/joeycumines/go-hostloop/host"
	"github.com/joeycumines/go-hostloop/locks"
)

// Standard errors.
var (
	// ErrCancelled is returned when retrieving the outcome of a cancelled
	// future.
	ErrCancelled = errors.New("futures: future was cancelled")

	// ErrTimeout is returned when a future is not done within the timeout.
	ErrTimeout = errors.New("futures: timed out")

	// ErrAlreadyDone is returned when resolving a future that is done.
	ErrAlreadyDone = errors.New("futures: future is already done")

	// ErrInvalidState is returned by SetRunningOrNotifyCancel for a future
	// that is running or done.
	ErrInvalidState = errors.New("futures: future in unexpected state")

	// ErrShutdown is returned when submitting to an executor that has been
	// shut down.
	ErrShutdown = errors.New("futures: executor is shut down")
)

// State is the lifecycle state of a Future.
type State int

const (
	// Pending futures have not started.
	Pending State = iota
	// Running futures have started, and may no longer be cancelled.
	Running
	// Cancelled futures were cancelled before starting.
	Cancelled
	// Finished futures have a result or an error.
	Finished
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Cancelled:
		return "cancelled"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Future is the eventual outcome of an operation.
type Future struct {
	dispatcher *dispatch.Dispatcher
	done       *locks.Event
	result     any
	err        error
	// via is the dispatcher the queued delivery was posted to
	via       *dispatch.Dispatcher
	callbacks []func(*Future)
	// queued callbacks await delivery, in registration order
	queued     []func(*Future)
	mu         sync.Mutex
	id         uuid.UUID
	state      State
	delivering bool
}

// Option configures a Future.
type Option interface {
	applyFuture(*Future)
}

type futureOptionImpl struct {
	applyFutureFunc func(*Future)
}

func (o *futureOptionImpl) applyFuture(f *Future) { o.applyFutureFunc(f) }

// DispatcherOption is accepted by both [New] and [NewExecutor].
type DispatcherOption struct {
	d *dispatch.Dispatcher
}

func (o DispatcherOption) applyFuture(f *Future) { f.dispatcher = o.d }

func (o DispatcherOption) applyExecutor(opts *executorOptions) error {
	opts.dispatcher = o.d
	return nil
}

// WithDispatcher sets the dispatcher delivering done callbacks, of the
// future, or of the futures an executor creates. The default is
// [dispatch.Current], resolved when callbacks are due.
func WithDispatcher(d *dispatch.Dispatcher) DispatcherOption {
	return DispatcherOption{d: d}
}

// New creates a pending future.
func New(opts ...Option) *Future {
	f := &Future{
		id:   uuid.New(),
		done: locks.NewEvent(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applyFuture(f)
		}
	}
	return f
}

// ID returns the future's unique identifier.
func (f *Future) ID() string { return f.id.String() }

// State returns the current state.
func (f *Future) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Cancelled reports whether the future was cancelled.
func (f *Future) Cancelled() bool { return f.State() == Cancelled }

// Running reports whether the future is running.
func (f *Future) Running() bool { return f.State() == Running }

// Done reports whether the future was cancelled or finished.
func (f *Future) Done() bool {
	s := f.State()
	return s == Cancelled || s == Finished
}

// Cancel cancels a pending future, returning false if it is running or
// finished.
func (f *Future) Cancel() bool {
	f.mu.Lock()
	switch f.state {
	case Running, Finished:
		f.mu.Unlock()
		return false
	case Cancelled:
		f.mu.Unlock()
		return true
	}
	f.state = Cancelled
	f.complete()
	return true
}

// SetRunningOrNotifyCancel marks a pending future as running, returning
// true, or returns false if it was cancelled. Any other state is an error.
func (f *Future) SetRunningOrNotifyCancel() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state {
	case Pending:
		f.state = Running
		return true, nil
	case Cancelled:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s", ErrInvalidState, f.state)
	}
}

// SetResult resolves the future with v.
func (f *Future) SetResult(v any) error {
	f.mu.Lock()
	if f.state == Cancelled || f.state == Finished {
		f.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyDone, f.state)
	}
	f.state, f.result = Finished, v
	f.complete()
	return nil
}

// SetException resolves the future with err, which must not be nil.
func (f *Future) SetException(err error) error {
	if err == nil {
		return errors.New("futures: nil exception")
	}
	f.mu.Lock()
	if f.state == Cancelled || f.state == Finished {
		f.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyDone, f.state)
	}
	f.state, f.err = Finished, err
	f.complete()
	return nil
}

// complete must be called with mu held, and releases it.
func (f *Future) complete() {
	f.queued = append(f.queued, f.callbacks...)
	f.callbacks = nil
	start := f.startDeliveryLocked()
	f.mu.Unlock()
	f.done.Set()
	if start {
		f.schedule(f.deliver)
	}
}

// startDeliveryLocked reports whether the caller must schedule deliver.
func (f *Future) startDeliveryLocked() bool {
	if len(f.queued) == 0 || f.delivering {
		return false
	}
	f.delivering = true
	return true
}

// deliver invokes queued callbacks until none remain, including any queued
// while it runs.
func (f *Future) deliver() {
	for {
		f.mu.Lock()
		if len(f.queued) == 0 {
			f.delivering = false
			f.via = nil
			f.mu.Unlock()
			return
		}
		fn := f.queued[0]
		f.queued[0] = nil
		f.queued = f.queued[1:]
		f.mu.Unlock()
		f.invoke(fn)
	}
}

// Wait blocks until the future is done, or the timeout elapses
// ([locks.Forever] waits without limit), reporting whether it is done.
func (f *Future) Wait(timeout time.Duration) bool { return f.done.Wait(timeout) }

// Result waits for the future, returning its value or error. It fails with
// [ErrCancelled] if cancelled, or [ErrTimeout].
func (f *Future) Result(timeout time.Duration) (any, error) {
	if !f.done.Wait(timeout) {
		return nil, ErrTimeout
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Cancelled {
		return nil, ErrCancelled
	}
	return f.result, f.err
}

// Exception waits for the future, returning the error it finished with
// (nil on success). It fails with [ErrCancelled] if cancelled, or
// [ErrTimeout].
func (f *Future) Exception(timeout time.Duration) (error, error) {
	if !f.done.Wait(timeout) {
		return nil, ErrTimeout
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Cancelled {
		return nil, ErrCancelled
	}
	return f.err, nil
}

// AddDoneCallback registers fn to be called with the future once it is
// done. Callbacks run once each, in registration order. Registering on a
// done future schedules fn immediately, behind any callbacks still queued
// for delivery.
func (f *Future) AddDoneCallback(fn func(*Future)) {
	if fn == nil {
		return
	}
	f.mu.Lock()
	if f.state != Cancelled && f.state != Finished {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	f.queued = append(f.queued, fn)
	start := f.startDeliveryLocked()
	// a delivery dropped by a closed dispatcher would strand the queue
	stranded := !start && f.via != nil && f.via.Closed()
	f.mu.Unlock()
	if start || stranded {
		f.schedule(f.deliver)
	}
}

// schedule delivers fn to the reactor's owner, running it inline if already
// there, or if there is no usable dispatcher.
func (f *Future) schedule(fn func()) {
	d := f.dispatcher
	if d == nil {
		d = dispatch.Current()
	}
	if d == nil || d.OnOwnerThread() || d.Closed() {
		fn()
		return
	}
	f.mu.Lock()
	f.via = d
	f.mu.Unlock()
	if err := d.Post(fn); err != nil {
		fn()
	}
}

func (f *Future) invoke(fn func(*Future)) {
	defer func() {
		if r := recover(); r != nil {
			host.ReportUnhandled(host.Exception{
				Message: "exception calling future done callback",
				Err:     host.Recovered(r),
				Fields:  map[string]any{"future": f.ID()},
			})
		}
	}()
	fn(f)
}

func (f *Future) String() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.state != Finished:
		return fmt.Sprintf("<Future %s %s>", f.id, f.state)
	case f.err != nil:
		return fmt.Sprintf("<Future %s finished raised %v>", f.id, f.err)
	default:
		return fmt.Sprintf("<Future %s finished returned %v>", f.id, f.result)
	}
}
