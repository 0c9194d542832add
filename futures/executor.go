// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package futures

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/joeycumines/go-hostloop/dispatch"
	"github.com/joeycumines/go-hostloop/host"
	"github.com/joeycumines/go-hostloop/locks"
	"github.com/joeycumines/go-hostloop/logging"
	"github.com/joeycumines/go-hostloop/threadpool"
)

type executorState int

const (
	accepting executorState = iota
	shuttingDown
	shutDown
)

// Executor runs submitted functions on a thread pool, each resolving a
// Future.
type Executor struct {
	pool       host.ThreadPool
	owned      *threadpool.Pool
	dispatcher *dispatch.Dispatcher
	logger     *logging.Logger
	// cond guards the fields below, and is notified as tasks finish
	cond        *locks.Condition
	pending     map[*Future]struct{}
	outstanding int
	state       executorState
}

// ExecutorOption configures an Executor.
type ExecutorOption interface {
	applyExecutor(*executorOptions) error
}

type executorOptions struct {
	pool       host.ThreadPool
	dispatcher *dispatch.Dispatcher
	logger     *logging.Logger
	maxWorkers int
}

type executorOptionImpl struct {
	applyExecutorFunc func(*executorOptions) error
}

func (o *executorOptionImpl) applyExecutor(opts *executorOptions) error {
	return o.applyExecutorFunc(opts)
}

// WithThreadPool runs tasks on pool, such as a binding's
// [host.Binding.GlobalThreadPool], instead of a pool owned by the executor.
func WithThreadPool(pool host.ThreadPool) ExecutorOption {
	return &executorOptionImpl{func(opts *executorOptions) error {
		opts.pool = pool
		return nil
	}}
}

// WithMaxWorkers sizes the executor's own pool. The default is GOMAXPROCS.
func WithMaxWorkers(n int) ExecutorOption {
	return &executorOptionImpl{func(opts *executorOptions) error {
		if n < 1 {
			return fmt.Errorf("futures: max workers must be positive: %d", n)
		}
		opts.maxWorkers = n
		return nil
	}}
}

// WithLogger sets the executor's logger.
func WithLogger(logger *logging.Logger) ExecutorOption {
	return &executorOptionImpl{func(opts *executorOptions) error {
		opts.logger = logger
		return nil
	}}
}

// NewExecutor creates an executor.
func NewExecutor(opts ...ExecutorOption) (*Executor, error) {
	var cfg executorOptions
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyExecutor(&cfg); err != nil {
			return nil, err
		}
	}
	e := &Executor{
		pool:       cfg.pool,
		dispatcher: cfg.dispatcher,
		logger:     logging.Component(cfg.logger, "executor"),
		cond:       locks.NewCondition(locks.NewRLock()),
		pending:    make(map[*Future]struct{}),
	}
	if e.pool == nil {
		n := cfg.maxWorkers
		if n == 0 {
			n = runtime.GOMAXPROCS(0)
		}
		pool, err := threadpool.New(n, threadpool.WithLogger(cfg.logger))
		if err != nil {
			return nil, err
		}
		e.pool, e.owned = pool, pool
	}
	return e, nil
}

// ThreadPool returns the pool tasks run on.
func (e *Executor) ThreadPool() host.ThreadPool { return e.pool }

// Submit schedules fn, returning a future resolved with its outcome. A
// panic in fn resolves the future with a [host.PanicError].
func (e *Executor) Submit(fn func() (any, error)) (*Future, error) {
	if fn == nil {
		return nil, errors.New("futures: nil function")
	}

	e.cond.Lock()
	if e.state != accepting {
		e.cond.Unlock()
		return nil, ErrShutdown
	}
	f := New(WithDispatcher(e.dispatcher))
	e.pending[f] = struct{}{}
	e.outstanding++
	e.cond.Unlock()

	if err := e.pool.Start(func() { e.run(f, fn) }, func() { e.discard(f) }); err != nil {
		f.Cancel()
		e.finish(f)
		e.logger.Warning().Err(err).Str("future", f.ID()).Log("thread pool refused task")
		return nil, fmt.Errorf("futures: start task: %w", err)
	}
	return f, nil
}

func (e *Executor) run(f *Future, fn func() (any, error)) {
	defer e.finish(f)

	ok, err := f.SetRunningOrNotifyCancel()
	if err != nil {
		e.logger.Err().Err(err).Str("future", f.ID()).Log("executor task in unexpected state")
		return
	}
	if !ok {
		return
	}

	e.cond.Lock()
	delete(e.pending, f)
	e.cond.Unlock()

	v, err := call(fn)
	if err != nil {
		_ = f.SetException(err)
	} else {
		_ = f.SetResult(v)
	}
}

// discard cancels a task the pool dropped before it started.
func (e *Executor) discard(f *Future) {
	defer e.finish(f)
	if f.Cancel() {
		e.logger.Debug().Str("future", f.ID()).Log("thread pool discarded task")
	}
}

func call(fn func() (any, error)) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = host.Recovered(r)
		}
	}()
	return fn()
}

func (e *Executor) finish(f *Future) {
	e.cond.Lock()
	defer e.cond.Unlock()
	delete(e.pending, f)
	e.outstanding--
	if e.outstanding == 0 {
		if e.state == shuttingDown {
			e.state = shutDown
		}
		_ = e.cond.NotifyAll()
	}
}

// Map submits every fn, then collects their results in order, waiting at
// most timeout in total. On the first error, the remaining futures are
// cancelled and the error is returned.
func (e *Executor) Map(timeout time.Duration, fns ...func() (any, error)) ([]any, error) {
	fs := make([]*Future, 0, len(fns))
	cancelAll := func() {
		for _, f := range fs {
			f.Cancel()
		}
	}
	for _, fn := range fns {
		f, err := e.Submit(fn)
		if err != nil {
			cancelAll()
			return nil, err
		}
		fs = append(fs, f)
	}

	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	results := make([]any, len(fs))
	for i, f := range fs {
		wait := locks.Forever
		if timeout >= 0 {
			wait = max(time.Until(deadline), 0)
		}
		v, err := f.Result(wait)
		if err != nil {
			cancelAll()
			return nil, err
		}
		results[i] = v
	}
	return results, nil
}

// Shutdown stops accepting work. With cancelFutures, tasks that have not
// started are cancelled. With wait, it blocks until every task has
// finished. An owned pool is closed. It is safe to call repeatedly.
func (e *Executor) Shutdown(wait, cancelFutures bool) {
	e.cond.Lock()
	if e.state == accepting {
		e.state = shuttingDown
		if e.outstanding == 0 {
			e.state = shutDown
		}
	}
	var cancel []*Future
	if cancelFutures {
		for f := range e.pending {
			cancel = append(cancel, f)
		}
	}
	e.cond.Unlock()

	for _, f := range cancel {
		f.Cancel()
	}

	if wait {
		e.cond.Lock()
		_, _ = e.cond.WaitFor(func() bool { return e.outstanding == 0 }, locks.Forever)
		e.cond.Unlock()
	}

	if e.owned != nil {
		e.owned.Close()
	}
}

// IsShutdown reports whether Shutdown has been called.
func (e *Executor) IsShutdown() bool {
	e.cond.Lock()
	defer e.cond.Unlock()
	return e.state != accepting
}
