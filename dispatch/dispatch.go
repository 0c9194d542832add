// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package dispatch implements cross-thread dispatch: posting callbacks from
// any goroutine for execution on a reactor's owning goroutine.
//
// Callbacks are queued on the [Dispatcher], and delivered by a single drain
// callback posted to the reactor, so a burst of posts costs one reactor
// wake-up. Callbacks posted by one goroutine run in the order posted.
package dispatch

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/joeycumines/go-hostloop/host"
	"github.com/joeycumines/go-hostloop/logging"
)

// Standard errors.
var (
	// ErrDispatcherClosed is returned by Post after Close.
	ErrDispatcherClosed = errors.New("dispatch: dispatcher is closed")

	// ErrNilCallback is returned when Post is given a nil callback.
	ErrNilCallback = errors.New("dispatch: nil callback")
)

// DropHandler is notified of callbacks that will never run, along with the
// reason.
type DropHandler func(dropped int, reason error)

// Dispatcher delivers callbacks to the owner of a reactor.
type Dispatcher struct {
	reactor host.Reactor
	logger  *logging.Logger
	onDrop  DropHandler
	pending *queue.Queue
	seq     uint64
	mu      sync.Mutex
	// scheduled is set while a drain callback is queued on the reactor
	scheduled bool
	closed    bool
}

// record is the per-post bookkeeping.
type record struct {
	fn  func()
	seq uint64
}

// Option configures a Dispatcher.
type Option interface {
	applyDispatcher(*dispatcherOptions) error
}

type dispatcherOptions struct {
	logger *logging.Logger
	onDrop DropHandler
}

type dispatcherOptionImpl struct {
	applyDispatcherFunc func(*dispatcherOptions) error
}

func (o *dispatcherOptionImpl) applyDispatcher(opts *dispatcherOptions) error {
	return o.applyDispatcherFunc(opts)
}

// WithLogger sets the dispatcher's logger.
func WithLogger(logger *logging.Logger) Option {
	return &dispatcherOptionImpl{func(opts *dispatcherOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithDropHandler sets the hook notified of dropped callbacks. The default
// reports them via [host.ReportUnhandled].
func WithDropHandler(fn DropHandler) Option {
	return &dispatcherOptionImpl{func(opts *dispatcherOptions) error {
		opts.onDrop = fn
		return nil
	}}
}

// New creates a dispatcher for r.
func New(r host.Reactor, opts ...Option) (*Dispatcher, error) {
	if r == nil {
		return nil, errors.New("dispatch: nil reactor")
	}
	var cfg dispatcherOptions
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyDispatcher(&cfg); err != nil {
			return nil, err
		}
	}
	d := &Dispatcher{
		reactor: r,
		logger:  logging.Component(cfg.logger, "dispatch"),
		onDrop:  cfg.onDrop,
		pending: queue.New(),
	}
	if d.onDrop == nil {
		d.onDrop = reportDropped
	}
	return d, nil
}

func reportDropped(dropped int, reason error) {
	host.ReportUnhandled(host.Exception{
		Message: "dispatched callbacks dropped",
		Err:     reason,
		Fields:  map[string]any{"dropped": dropped},
	})
}

// Reactor returns the target reactor.
func (d *Dispatcher) Reactor() host.Reactor { return d.reactor }

// OnOwnerThread reports whether the caller owns the target reactor.
func (d *Dispatcher) OnOwnerThread() bool { return d.reactor.IsOwnerThread() }

// Active reports whether the target reactor is running its dispatch loop.
func (d *Dispatcher) Active() bool { return d.reactor.Executing() }

// Post queues fn to run exactly once on the reactor's owner, after Post
// returns. It never blocks. If the dispatcher is closed, or the reactor
// refuses work, fn is dropped, the drop handler is notified, and an error is
// returned.
func (d *Dispatcher) Post(fn func()) error {
	if fn == nil {
		return ErrNilCallback
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.onDrop(1, ErrDispatcherClosed)
		return ErrDispatcherClosed
	}
	d.seq++
	d.pending.Add(record{fn: fn, seq: d.seq})
	schedule := !d.scheduled
	d.scheduled = true
	d.mu.Unlock()

	if !schedule {
		return nil
	}

	if err := d.reactor.Post(d.drain); err != nil {
		d.mu.Lock()
		dropped := d.discardLocked()
		d.scheduled = false
		d.mu.Unlock()
		d.logger.Warning().Err(err).Int("dropped", dropped).Log("reactor refused dispatch")
		d.onDrop(dropped, err)
		return fmt.Errorf("dispatch: post to reactor: %w", err)
	}
	return nil
}

// drain runs on the owner, executing every callback queued before it began.
func (d *Dispatcher) drain() {
	d.mu.Lock()
	n := d.pending.Length()
	batch := make([]record, n)
	for i := range batch {
		batch[i] = d.pending.Remove().(record)
	}
	d.scheduled = false
	d.mu.Unlock()

	for i := range batch {
		d.run(batch[i])
		batch[i] = record{}
	}
}

func (d *Dispatcher) run(rec record) {
	defer func() {
		if r := recover(); r != nil {
			host.ReportUnhandled(host.Exception{
				Message: "exception in dispatched callback",
				Err:     host.Recovered(r),
				Fields:  map[string]any{"seq": rec.seq},
			})
		}
	}()
	rec.fn()
}

func (d *Dispatcher) discardLocked() int {
	n := d.pending.Length()
	for d.pending.Length() > 0 {
		d.pending.Remove()
	}
	return n
}

// Pending returns the number of queued callbacks.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending.Length()
}

// Close stops the dispatcher. Queued callbacks are dropped and reported. It
// is idempotent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	dropped := d.discardLocked()
	d.mu.Unlock()
	if dropped > 0 {
		d.onDrop(dropped, ErrDispatcherClosed)
	}
	current.CompareAndSwap(d, nil)
}

// Closed reports whether Close has been called.
func (d *Dispatcher) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

var current atomic.Pointer[Dispatcher]

// SetCurrent publishes d as the dispatcher of the bound event loop,
// returning the previous value.
func SetCurrent(d *Dispatcher) *Dispatcher {
	return current.Swap(d)
}

// Current returns the dispatcher of the bound event loop, or nil.
func Current() *Dispatcher {
	return current.Load()
}
