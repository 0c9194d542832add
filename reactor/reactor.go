// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin

package reactor

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/joeycumines/go-hostloop/host"
	"github.com/joeycumines/go-hostloop/internal/goid"
	"github.com/joeycumines/go-hostloop/internal/timerq"
	"github.com/joeycumines/go-hostloop/logging"
	"golang.org/x/sys/unix"
)

// Reactor is the epoll/kqueue implementation of [host.Reactor].
type Reactor struct { // betteralign:ignore
	// Prevent copying
	_ [0]func()

	logger *logging.Logger

	// State machine (cache-line padded internally)
	state fastState

	poller fastPoller

	// Posted callbacks
	postMu     sync.Mutex
	posted     postQueue
	postClosed bool

	// Host timers
	timerMu sync.Mutex
	timers  timerq.Queue

	// Wake-up mechanism
	wakeFd      int
	wakeWriteFd int
	wakeBuf     [8]byte
	wakePending atomic.Uint32

	maxPoll time.Duration

	// Goroutine tracking
	owner     atomic.Uint64
	executing atomic.Bool
	exit      atomic.Bool
}

// New creates a reactor.
func New(opts ...Option) (*Reactor, error) {
	cfg, err := resolveReactorOptions(opts)
	if err != nil {
		return nil, err
	}

	wakeFd, wakeWriteFd, err := createWakeFd()
	if err != nil {
		return nil, fmt.Errorf("reactor: wake fd: %w", err)
	}

	r := &Reactor{
		logger:      logging.Component(cfg.logger, "reactor"),
		wakeFd:      wakeFd,
		wakeWriteFd: wakeWriteFd,
		maxPoll:     cfg.maxPollTimeout,
	}

	if err := r.poller.Init(); err != nil {
		r.closeWakeFds()
		return nil, fmt.Errorf("reactor: poller: %w", err)
	}

	if err := r.poller.SetHandler(wakeFd, host.Read, r.drainWakeUpPipe); err != nil {
		_ = r.poller.Close()
		r.closeWakeFds()
		return nil, fmt.Errorf("reactor: register wake fd: %w", err)
	}

	return r, nil
}

// Binding returns [Name].
func (r *Reactor) Binding() string { return Name }

// Exec runs iterations until Exit is called. The calling goroutine is locked
// to its OS thread for the duration.
func (r *Reactor) Exec() error {
	if r.IsOwnerThread() {
		return host.ErrAlreadyExecuting
	}
	if !r.state.TryTransition(stateIdle, stateActive) {
		if r.state.Load() == stateClosed {
			return host.ErrReactorClosed
		}
		return host.ErrAlreadyExecuting
	}
	r.owner.Store(goid.ID())
	defer r.leave()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	r.exit.Store(false)
	r.executing.Store(true)
	defer r.executing.Store(false)

	r.logger.Debug().Log("exec started")

	for !r.exit.Load() {
		if err := r.tick(r.maxPoll); err != nil {
			return err
		}
	}

	r.logger.Debug().Log("exec finished")
	return nil
}

// Exit requests that Exec return after the current iteration. It may be
// called from any goroutine.
func (r *Reactor) Exit() {
	r.exit.Store(true)
	r.wake()
}

// ProcessEvents performs one iteration, blocking for at most maxWait. The
// owner may call it recursively, e.g. from a blocking wait inside a
// callback. Another goroutine may call it only while the reactor is idle,
// becoming the owner for the duration.
func (r *Reactor) ProcessEvents(maxWait time.Duration) error {
	if !r.IsOwnerThread() {
		if !r.state.TryTransition(stateIdle, stateActive) {
			if r.state.Load() == stateClosed {
				return host.ErrReactorClosed
			}
			return host.ErrWrongThread
		}
		r.owner.Store(goid.ID())
		defer r.leave()
	}
	return r.tick(maxWait)
}

func (r *Reactor) leave() {
	r.owner.Store(0)
	r.state.TryTransition(stateActive, stateIdle)
}

// tick is a single iteration of the reactor.
func (r *Reactor) tick(maxWait time.Duration) error {
	events, err := r.poller.Poll(r.calculateTimeout(maxWait), nil)
	if err != nil {
		r.logger.Crit().Err(err).Log("poll failed")
		return fmt.Errorf("reactor: poll: %w", err)
	}
	for _, ev := range events {
		r.poller.Dispatch(ev, r.safeExecute)
	}

	r.runTimers()

	r.runPosted()

	return nil
}

// calculateTimeout determines how long to block in poll, in milliseconds.
func (r *Reactor) calculateTimeout(maxWait time.Duration) int {
	if maxWait <= 0 || r.exit.Load() {
		return 0
	}

	r.postMu.Lock()
	pending := r.posted.Length()
	r.postMu.Unlock()
	if pending > 0 {
		return 0
	}

	delay := maxWait
	r.timerMu.Lock()
	next, ok := r.timers.Next()
	r.timerMu.Unlock()
	if ok {
		until := time.Until(next)
		if until <= 0 {
			return 0
		}
		if until < delay {
			delay = until
		}
	}

	// Ceiling rounding, so a timer is never polled for early
	return int((delay + time.Millisecond - 1) / time.Millisecond)
}

// runTimers executes timers expired as of the start of the step. Timers are
// popped one at a time, so a callback may kill a later timer in the same
// step.
func (r *Reactor) runTimers() {
	now := time.Now()
	for {
		r.timerMu.Lock()
		e, ok := r.timers.PopDue(now)
		r.timerMu.Unlock()
		if !ok {
			return
		}
		r.safeExecute(e.Fn)
	}
}

// runPosted executes the callbacks posted before the step began.
func (r *Reactor) runPosted() {
	r.postMu.Lock()
	n := r.posted.Length()
	if n == 0 {
		r.postMu.Unlock()
		return
	}
	batch := r.posted.Drain(make([]func(), 0, n), n)
	r.postMu.Unlock()

	for i, fn := range batch {
		r.safeExecute(fn)
		batch[i] = nil
	}
}

// safeExecute executes a callback with panic recovery.
func (r *Reactor) safeExecute(fn func()) {
	defer func() {
		if v := recover(); v != nil {
			host.ReportUnhandled(host.Exception{
				Message: "reactor callback panicked",
				Err:     host.Recovered(v),
				Fields:  map[string]any{"binding": Name},
			})
		}
	}()
	fn()
}

// Post queues fn to run on the owner, waking the reactor.
func (r *Reactor) Post(fn func()) error {
	if fn == nil {
		return ErrNilCallback
	}
	r.postMu.Lock()
	if r.postClosed {
		r.postMu.Unlock()
		return host.ErrReactorClosed
	}
	r.posted.Push(fn)
	r.postMu.Unlock()
	r.wake()
	return nil
}

// wake writes to the wake-up fd, unless a wake-up is already pending.
func (r *Reactor) wake() {
	if !r.wakePending.CompareAndSwap(0, 1) {
		return
	}
	var one uint64 = 1
	buf := (*[8]byte)(unsafe.Pointer(&one))[:]
	if _, err := unix.Write(r.wakeWriteFd, buf); err != nil {
		// EBADF/EPIPE are expected once closed
		r.wakePending.Store(0)
	}
}

// drainWakeUpPipe drains the wake-up fd.
func (r *Reactor) drainWakeUpPipe() {
	for {
		if _, err := unix.Read(r.wakeFd, r.wakeBuf[:]); err != nil {
			break
		}
	}
	r.wakePending.Store(0)
}

// checkAccess enforces the ownership rule for reactor-facing operations.
func (r *Reactor) checkAccess() error {
	switch r.state.Load() {
	case stateClosed:
		return host.ErrReactorClosed
	case stateActive:
		if !r.IsOwnerThread() {
			return host.ErrWrongThread
		}
	}
	return nil
}

// StartTimer arms a one-shot timer.
func (r *Reactor) StartTimer(delay time.Duration, fn func()) (host.TimerID, error) {
	if fn == nil {
		return 0, ErrNilCallback
	}
	if err := r.checkAccess(); err != nil {
		return 0, err
	}
	if delay < 0 {
		delay = 0
	}
	r.timerMu.Lock()
	id := r.timers.Add(time.Now().Add(delay), fn)
	r.timerMu.Unlock()
	return host.TimerID(id), nil
}

// KillTimer disarms a timer, if it has not fired.
func (r *Reactor) KillTimer(id host.TimerID) error {
	if err := r.checkAccess(); err != nil {
		return err
	}
	r.timerMu.Lock()
	r.timers.Remove(uint64(id))
	r.timerMu.Unlock()
	return nil
}

// AddNotifier registers, or replaces, the notifier for (fd, dir).
func (r *Reactor) AddNotifier(fd int, dir host.Direction, fn func()) error {
	if err := r.checkAccess(); err != nil {
		return err
	}
	if fd == r.wakeFd || fd == r.wakeWriteFd {
		return ErrFDOutOfRange
	}
	return r.poller.SetHandler(fd, dir, fn)
}

// SetNotifierEnabled toggles delivery for a registered notifier.
func (r *Reactor) SetNotifierEnabled(fd int, dir host.Direction, enabled bool) error {
	if err := r.checkAccess(); err != nil {
		return err
	}
	return r.poller.SetEnabled(fd, dir, enabled)
}

// RemoveNotifier unregisters the notifier for (fd, dir).
func (r *Reactor) RemoveNotifier(fd int, dir host.Direction) error {
	if err := r.checkAccess(); err != nil {
		return err
	}
	return r.poller.RemoveHandler(fd, dir)
}

// IsOwnerThread reports whether the caller is inside Exec or ProcessEvents.
func (r *Reactor) IsOwnerThread() bool {
	owner := r.owner.Load()
	return owner != 0 && owner == goid.ID()
}

// Executing reports whether Exec is running.
func (r *Reactor) Executing() bool {
	return r.executing.Load()
}

// Close releases the reactor. Pending posted callbacks and timers are
// discarded.
func (r *Reactor) Close() error {
	if !r.state.TryTransition(stateIdle, stateClosed) {
		if r.state.Load() == stateClosed {
			return host.ErrReactorClosed
		}
		return host.ErrReactorBusy
	}

	r.postMu.Lock()
	dropped := r.posted.Length()
	r.posted.Drain(nil, dropped)
	r.postClosed = true
	r.postMu.Unlock()

	r.timerMu.Lock()
	timers := r.timers.Len()
	r.timers.Clear()
	r.timerMu.Unlock()

	if dropped > 0 || timers > 0 {
		r.logger.Warning().
			Int("posted", dropped).
			Int("timers", timers).
			Log("reactor closed with pending work")
	}

	err := r.poller.Close()
	r.closeWakeFds()
	return err
}

func (r *Reactor) closeWakeFds() {
	_ = unix.Close(r.wakeFd)
	if r.wakeWriteFd != r.wakeFd {
		_ = unix.Close(r.wakeWriteFd)
	}
}

var _ host.Reactor = (*Reactor)(nil)
