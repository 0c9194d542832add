// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package threadpool provides a bounded worker pool, implementing
// [host.ThreadPool].
//
// Workers are goroutines, spawned on demand up to the configured maximum, and
// retired as soon as the queue is empty.
package threadpool

import (
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/joeycumines/go-hostloop/host"
	"github.com/joeycumines/go-hostloop/logging"
	"golang.org/x/sync/semaphore"
)

// ErrPoolClosed is returned by Start after Close.
var ErrPoolClosed = errors.New("threadpool: pool is closed")

// Pool is a bounded worker pool. The zero value is not usable, see [New].
type Pool struct {
	logger  *logging.Logger
	slots   *semaphore.Weighted
	tasks   *queue.Queue
	idle    chan struct{}
	mu      sync.Mutex
	max     int
	active  int
	pending int
	closed  bool
}

// Option configures a Pool.
type Option interface {
	applyPool(*poolOptions) error
}

type poolOptions struct {
	logger *logging.Logger
}

type poolOptionImpl struct {
	applyPoolFunc func(*poolOptions) error
}

func (o *poolOptionImpl) applyPool(opts *poolOptions) error {
	return o.applyPoolFunc(opts)
}

// WithLogger sets the logger used to report panicking tasks.
func WithLogger(logger *logging.Logger) Option {
	return &poolOptionImpl{func(opts *poolOptions) error {
		opts.logger = logger
		return nil
	}}
}

var (
	globalOnce sync.Once
	globalPool *Pool
)

// Global returns the process-wide pool, sized to GOMAXPROCS.
func Global() *Pool {
	globalOnce.Do(func() {
		globalPool, _ = New(runtime.GOMAXPROCS(0))
	})
	return globalPool
}

// New creates a pool running at most max tasks concurrently (minimum 1).
func New(max int, opts ...Option) (*Pool, error) {
	var cfg poolOptions
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyPool(&cfg); err != nil {
			return nil, err
		}
	}
	if max < 1 {
		max = 1
	}
	return &Pool{
		logger: logging.Component(cfg.logger, "threadpool"),
		slots:  semaphore.NewWeighted(int64(max)),
		tasks:  queue.New(),
		max:    max,
	}, nil
}

// task is a queued function, with the optional hook Clear calls instead.
type task struct {
	run       func()
	onDiscard func()
}

// Start queues fn, spawning a worker if a slot is free. If Clear removes fn
// before it starts, onDiscard (if non-nil) is called instead.
func (p *Pool) Start(fn func(), onDiscard func()) error {
	if fn == nil {
		return errors.New("threadpool: nil task")
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.tasks.Add(task{run: fn, onDiscard: onDiscard})
	p.pending++
	spawn := p.slots.TryAcquire(1)
	p.mu.Unlock()
	if spawn {
		go p.worker()
	}
	return nil
}

func (p *Pool) worker() {
	for {
		p.mu.Lock()
		if p.tasks.Length() == 0 {
			// released under mu, so Start can never observe a full
			// semaphore held by a worker that is about to exit
			p.slots.Release(1)
			p.mu.Unlock()
			return
		}
		t := p.tasks.Remove().(task)
		p.active++
		p.mu.Unlock()

		p.run(t.run)

		p.mu.Lock()
		p.active--
		p.finishLocked(1)
		p.mu.Unlock()
	}
}

func (p *Pool) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			host.ReportUnhandled(host.Exception{
				Message: "thread pool task panicked",
				Err:     host.Recovered(r),
			})
		}
	}()
	fn()
}

// finishLocked accounts for n completed or discarded tasks.
func (p *Pool) finishLocked(n int) {
	p.pending -= n
	if p.pending == 0 && p.idle != nil {
		close(p.idle)
		p.idle = nil
	}
}

// WaitForDone blocks until every queued and running task has finished, or
// the timeout elapses. A negative timeout waits forever.
func (p *Pool) WaitForDone(timeout time.Duration) bool {
	p.mu.Lock()
	if p.pending == 0 {
		p.mu.Unlock()
		return true
	}
	if p.idle == nil {
		p.idle = make(chan struct{})
	}
	idle := p.idle
	p.mu.Unlock()

	if timeout < 0 {
		<-idle
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-idle:
		return true
	case <-timer.C:
		return false
	}
}

// ActiveThreadCount returns the number of tasks currently running.
func (p *Pool) ActiveThreadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// MaxThreadCount returns the worker limit.
func (p *Pool) MaxThreadCount() int { return p.max }

// Clear discards queued tasks that have not started, calling their discard
// hooks in queue order.
func (p *Pool) Clear() int {
	p.mu.Lock()
	var hooks []func()
	n := p.tasks.Length()
	for p.tasks.Length() > 0 {
		if t := p.tasks.Remove().(task); t.onDiscard != nil {
			hooks = append(hooks, t.onDiscard)
		}
	}
	if n > 0 {
		p.finishLocked(n)
		p.logger.Debug().Int("discarded", n).Log("cleared queued tasks")
	}
	p.mu.Unlock()
	for _, fn := range hooks {
		p.run(fn)
	}
	return n
}

// Close stops the pool accepting new tasks. Queued tasks still run.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

var _ host.ThreadPool = (*Pool)(nil)
