// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package hostloop

import (
	"container/heap"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-hostloop/dispatch"
	"github.com/joeycumines/go-hostloop/futures"
	"github.com/joeycumines/go-hostloop/host"
	"github.com/joeycumines/go-hostloop/logging"

	// register the bindings
	_ "github.com/joeycumines/go-hostloop/chanhost"
	_ "github.com/joeycumines/go-hostloop/reactor"
)

// LoopState is the lifecycle state of an EventLoop.
type LoopState int32

const (
	// StateCreated is the state of a loop that has never run.
	StateCreated LoopState = iota
	// StateRunning is the state of a loop inside RunForever or RunOnce.
	StateRunning
	// StateStopped is the state of a loop that has run, and returned.
	StateStopped
	// StateClosed is the terminal state.
	StateClosed
)

func (s LoopState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("LoopState(%d)", int32(s))
	}
}

// EventLoop is an event loop driven by a host reactor.
type EventLoop struct { // betteralign:ignore
	reactor    host.Reactor
	dispatcher *dispatch.Dispatcher
	logger     *logging.Logger
	// base is the configured logger, passed on to owned components
	base *logging.Logger

	restoreUnhandled func()

	// mu guards the fields below
	mu               sync.Mutex
	scheduled        handleHeap
	watches          map[watchKey]*watch
	exceptionHandler ExceptionHandler
	executor         *futures.Executor
	stopSeq          uint64
	// batchDepth counts nested batches, run by waits on the owner
	batchDepth  int
	armQueued   bool
	stopping    bool
	ownExecutor bool

	// host timer, owner only
	timerID    host.TimerID
	timerWhen  time.Time
	timerArmed bool

	seq          atomic.Uint64
	state        atomic.Int32
	debug        atomic.Bool
	slowCallback time.Duration
	ownReactor   bool
}

// New creates an event loop, claiming its reactor for the process. Only
// one loop (or other claimant) may exist at a time; Close releases the
// claim.
func New(opts ...LoopOption) (*EventLoop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	r, own := cfg.reactor, false
	if r == nil {
		var b host.Binding
		if cfg.binding != "" {
			b, err = host.Bind(cfg.binding)
		} else {
			b, err = host.Select()
		}
		if err != nil {
			return nil, err
		}
		if r, err = b.NewReactor(); err != nil {
			return nil, fmt.Errorf("hostloop: create %s reactor: %w", b.Name(), err)
		}
		own = true
	}

	if err := host.Claim(r); err != nil {
		if own {
			_ = r.Close()
		}
		return nil, fmt.Errorf("hostloop: claim reactor: %w", err)
	}

	logger := logging.Component(cfg.logger, "hostloop")
	if c := logger.Clone(); c != nil {
		logger = c.Str("binding", r.Binding()).Logger()
	}
	l := &EventLoop{
		reactor:          r,
		logger:           logger,
		base:             cfg.logger,
		watches:          make(map[watchKey]*watch),
		exceptionHandler: cfg.exceptionHandler,
		executor:         cfg.executor,
		slowCallback:     cfg.slowCallback,
		ownReactor:       own,
	}
	l.debug.Store(cfg.debug)

	d, err := dispatch.New(r, dispatch.WithLogger(cfg.logger), dispatch.WithDropHandler(l.onDropped))
	if err != nil {
		host.Release(r)
		if own {
			_ = r.Close()
		}
		return nil, err
	}
	l.dispatcher = d
	dispatch.SetCurrent(d)
	l.restoreUnhandled = host.SetUnhandledHandler(l.onUnhandled)

	l.logger.Debug().Bool("debug", cfg.debug).Log("event loop created")
	return l, nil
}

// Reactor returns the loop's reactor.
func (l *EventLoop) Reactor() host.Reactor { return l.reactor }

// Dispatcher returns the dispatcher delivering work to the loop.
func (l *EventLoop) Dispatcher() *dispatch.Dispatcher { return l.dispatcher }

// State returns the lifecycle state.
func (l *EventLoop) State() LoopState { return LoopState(l.state.Load()) }

// IsRunning reports whether the loop is running.
func (l *EventLoop) IsRunning() bool { return l.State() == StateRunning }

// IsClosed reports whether the loop is closed.
func (l *EventLoop) IsClosed() bool { return l.State() == StateClosed }

// SetDebug toggles debug mode: scheduling is logged at debug level, and
// slow callbacks at warning level.
func (l *EventLoop) SetDebug(enabled bool) { l.debug.Store(enabled) }

// Debug reports whether debug mode is enabled.
func (l *EventLoop) Debug() bool { return l.debug.Load() }

// Time returns the loop's notion of the current time.
func (l *EventLoop) Time() time.Time { return time.Now() }

// CallSoon schedules fn to run on the loop, after callbacks already due. It
// may be called from any goroutine.
func (l *EventLoop) CallSoon(fn func()) (*Handle, error) {
	h := &Handle{fn: fn}
	if err := l.schedule(h, time.Now()); err != nil {
		return nil, err
	}
	return h, nil
}

// CallSoonThreadsafe is CallSoon. Every scheduling method may be called
// from any goroutine, and wakes the reactor as needed.
func (l *EventLoop) CallSoonThreadsafe(fn func()) (*Handle, error) {
	return l.CallSoon(fn)
}

// CallLater schedules fn to run after delay. Callbacks due at the same time
// run in the order they were scheduled.
func (l *EventLoop) CallLater(delay time.Duration, fn func()) (*TimerHandle, error) {
	return l.CallAt(time.Now().Add(max(delay, 0)), fn)
}

// CallAt schedules fn to run at when.
func (l *EventLoop) CallAt(when time.Time, fn func()) (*TimerHandle, error) {
	h := &TimerHandle{Handle{fn: fn}}
	if err := l.schedule(&h.Handle, when); err != nil {
		return nil, err
	}
	return h, nil
}

func (l *EventLoop) schedule(h *Handle, when time.Time) error {
	if h.fn == nil {
		return ErrNilCallback
	}
	if l.IsClosed() {
		return ErrLoopClosed
	}
	h.loop, h.when, h.seq = l, when, l.seq.Add(1)

	l.mu.Lock()
	heap.Push(&l.scheduled, h)
	earliest := l.scheduled[0] == h
	l.mu.Unlock()

	if l.debug.Load() {
		l.logger.Debug().
			Uint64("seq", h.seq).
			Dur("delay", time.Until(when)).
			Log("callback scheduled")
	}
	if earliest {
		l.requestArm()
	}
	return nil
}

// unschedule removes a cancelled handle from the heap.
func (l *EventLoop) unschedule(h *Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h.index >= 0 && h.index < len(l.scheduled) && l.scheduled[h.index] == h {
		heap.Remove(&l.scheduled, h.index)
	}
}

// requestArm arranges for the host timer to track the earliest deadline.
func (l *EventLoop) requestArm() {
	if l.reactor.IsOwnerThread() {
		l.arm()
		return
	}
	l.mu.Lock()
	if l.armQueued {
		l.mu.Unlock()
		return
	}
	l.armQueued = true
	l.mu.Unlock()
	if err := l.dispatcher.Post(l.arm); err != nil {
		l.mu.Lock()
		l.armQueued = false
		l.mu.Unlock()
		l.logger.Debug().Err(err).Log("failed to post timer update")
	}
}

// arm (re)starts the host timer for the earliest deadline. It must run on
// the owner, or while the reactor is idle.
func (l *EventLoop) arm() {
	l.mu.Lock()
	l.armQueued = false
	var next time.Time
	ok := len(l.scheduled) != 0
	if ok {
		next = l.scheduled[0].when
	}
	l.mu.Unlock()

	if l.timerArmed {
		if ok && next.Equal(l.timerWhen) {
			return
		}
		_ = l.reactor.KillTimer(l.timerID)
		l.timerArmed = false
	}
	if !ok || l.IsClosed() {
		return
	}

	id, err := l.reactor.StartTimer(time.Until(next), l.onTimer)
	if err != nil {
		l.logger.Err().Err(err).Log("failed to arm host timer")
		return
	}
	l.timerID, l.timerWhen, l.timerArmed = id, next, true
}

func (l *EventLoop) onTimer() {
	l.timerArmed = false
	l.runBatch()
}

// popDueLocked removes the handles due at now, in order. With limit,
// handles scheduled after limit are left in place.
func (l *EventLoop) popDueLocked(now time.Time, limit uint64) []*Handle {
	var due, deferred []*Handle
	for len(l.scheduled) != 0 && !l.scheduled[0].when.After(now) {
		h := heap.Pop(&l.scheduled).(*Handle)
		if limit != 0 && h.seq > limit {
			deferred = append(deferred, h)
			continue
		}
		due = append(due, h)
	}
	for _, h := range deferred {
		heap.Push(&l.scheduled, h)
	}
	return due
}

// runBatch runs every callback due at the start of the batch, then handles
// a pending stop, and re-arms the host timer. Batches nest when a callback
// blocks on the owner, servicing the reactor: nested batches run due
// callbacks only, leaving a stop to the outermost batch.
func (l *EventLoop) runBatch() {
	l.mu.Lock()
	l.batchDepth++
	outer := l.batchDepth == 1
	batch := l.popDueLocked(time.Now(), 0)
	l.mu.Unlock()

	for _, h := range batch {
		l.runHandle(h)
	}

	l.mu.Lock()
	if !outer {
		l.batchDepth--
		l.mu.Unlock()
		l.arm()
		return
	}
	stopping := l.stopping
	for l.stopping && l.stopSeq != 0 {
		// callbacks scheduled before Stop, and already due, still run
		batch = l.popDueLocked(time.Now(), l.stopSeq)
		if len(batch) == 0 {
			break
		}
		l.mu.Unlock()
		for _, h := range batch {
			l.runHandle(h)
		}
		l.mu.Lock()
	}
	l.stopping = false
	l.batchDepth--
	l.mu.Unlock()

	if stopping {
		l.logger.Debug().Log("event loop stopping")
		l.reactor.Exit()
	}
	l.arm()
}

func (l *EventLoop) runHandle(h *Handle) {
	if h.cancelled.Load() {
		return
	}
	var start time.Time
	debug := l.debug.Load()
	if debug {
		start = time.Now()
	}
	defer func() {
		if r := recover(); r != nil {
			l.CallExceptionHandler(ExceptionContext{
				Message: "exception in callback",
				Err:     host.Recovered(r),
				Handle:  h,
			})
		}
		if debug {
			if elapsed := time.Since(start); elapsed >= l.slowCallback {
				l.logger.Warning().
					Uint64("seq", h.seq).
					Dur("elapsed", elapsed).
					Log("slow callback")
			}
		}
	}()
	h.fn()
}

// Stop stops the loop at the end of the current batch of callbacks.
// Callbacks scheduled before Stop, that are due by then, still run. If the
// loop is not running, the next run stops after one batch.
func (l *EventLoop) Stop() {
	l.mu.Lock()
	l.stopping = true
	l.stopSeq = l.seq.Load()
	inBatch := l.batchDepth != 0
	l.mu.Unlock()
	if inBatch {
		return
	}
	if err := l.dispatcher.Post(l.runBatch); err != nil {
		l.logger.Warning().Err(err).Log("failed to post stop")
	}
}

// RunForever runs the loop until Stop. The calling goroutine becomes the
// reactor's owner.
func (l *EventLoop) RunForever() error {
	if err := l.enterRunning(); err != nil {
		return err
	}
	defer l.state.Store(int32(StateStopped))

	l.logger.Debug().Log("event loop running")
	l.arm()
	if err := l.reactor.Exec(); err != nil {
		return fmt.Errorf("hostloop: run reactor: %w", err)
	}
	return nil
}

// RunOnce performs a single reactor iteration, waiting at most maxWait for
// an event.
func (l *EventLoop) RunOnce(maxWait time.Duration) error {
	if err := l.enterRunning(); err != nil {
		return err
	}
	defer l.state.Store(int32(StateStopped))

	l.arm()
	if err := l.reactor.ProcessEvents(maxWait); err != nil {
		return fmt.Errorf("hostloop: process events: %w", err)
	}
	return nil
}

func (l *EventLoop) enterRunning() error {
	for {
		switch s := l.State(); s {
		case StateClosed:
			return ErrLoopClosed
		case StateRunning:
			return ErrLoopAlreadyRunning
		default:
			if l.state.CompareAndSwap(int32(s), int32(StateRunning)) {
				return nil
			}
		}
	}
}

// RunUntilComplete runs the loop until f is done, returning its outcome.
func (l *EventLoop) RunUntilComplete(f *futures.Future) (any, error) {
	if f == nil {
		return nil, errors.New("hostloop: nil future")
	}
	if l.IsClosed() {
		return nil, ErrLoopClosed
	}

	var active atomic.Bool
	active.Store(true)
	defer active.Store(false)
	f.AddDoneCallback(func(*futures.Future) {
		if active.Load() {
			l.Stop()
		}
	})

	if err := l.RunForever(); err != nil {
		return nil, err
	}
	if !f.Done() {
		if err := l.RunOnce(0); err != nil {
			return nil, err
		}
	}
	if !f.Done() {
		return nil, ErrStoppedBeforeComplete
	}
	return f.Result(0)
}

// CreateFuture returns a future whose callbacks run on the loop.
func (l *EventLoop) CreateFuture() *futures.Future {
	return futures.New(futures.WithDispatcher(l.dispatcher))
}

// Close releases the loop's resources: scheduled callbacks are discarded,
// watches removed, the default executor shut down (without waiting), and
// the reactor claim released. An owned reactor is closed. Closing a
// running loop fails with [ErrLoopRunning]. It is idempotent.
func (l *EventLoop) Close() error {
	for {
		s := l.State()
		if s == StateClosed {
			return nil
		}
		if s == StateRunning {
			return ErrLoopRunning
		}
		if l.state.CompareAndSwap(int32(s), int32(StateClosed)) {
			break
		}
	}

	l.mu.Lock()
	watches := l.watches
	l.watches = nil
	pending := len(l.scheduled)
	for _, h := range l.scheduled {
		h.index = -1
	}
	l.scheduled = nil
	ex, ownExecutor := l.executor, l.ownExecutor
	l.executor = nil
	l.mu.Unlock()

	if l.timerArmed {
		_ = l.reactor.KillTimer(l.timerID)
		l.timerArmed = false
	}
	for key := range watches {
		_ = l.reactor.RemoveNotifier(key.fd, key.dir)
	}

	l.dispatcher.Close()
	if ownExecutor && ex != nil {
		ex.Shutdown(false, false)
	}
	l.restoreUnhandled()
	host.Release(l.reactor)

	var err error
	if l.ownReactor {
		err = l.reactor.Close()
	}
	l.logger.Debug().Int("discarded", pending).Log("event loop closed")
	return err
}
