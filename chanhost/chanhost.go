// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package chanhost implements the portable "chan" host binding.
//
// The reactor is driven entirely by Go channels and timers, and therefore
// lacks readiness notification: the notifier methods fail with
// [host.ErrUnsupported]. Importing the package registers the binding.
package chanhost

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-hostloop/host"
	"github.com/joeycumines/go-hostloop/internal/goid"
	"github.com/joeycumines/go-hostloop/internal/timerq"
	"github.com/joeycumines/go-hostloop/logging"
	"github.com/joeycumines/go-hostloop/threadpool"
)

// Name is the name the binding registers under.
const Name = "chan"

// maxWait bounds a single blocking wait within Exec.
const maxWait = 10 * time.Second

var errNilCallback = errors.New("chanhost: nil callback")

// Reactor is a channel-driven [host.Reactor].
type Reactor struct {
	logger    *logging.Logger
	wake      chan struct{}
	posted    []func()
	timers    timerq.Queue
	mu        sync.Mutex
	owner     atomic.Uint64
	executing atomic.Bool
	exit      atomic.Bool
	closed    bool
	active    bool
}

type binding struct{}

func init() {
	host.Register(binding{})
}

func (binding) Name() string { return Name }

func (binding) NewReactor() (host.Reactor, error) { return New(nil), nil }

func (binding) GlobalThreadPool() host.ThreadPool { return threadpool.Global() }

// New creates a reactor. A nil logger selects the default.
func New(logger *logging.Logger) *Reactor {
	return &Reactor{
		logger: logging.Component(logger, "chanhost"),
		wake:   make(chan struct{}, 1),
	}
}

// Binding returns [Name].
func (r *Reactor) Binding() string { return Name }

// enter makes the caller the owner, unless it already is.
func (r *Reactor) enter() (entered bool, err error) {
	if r.IsOwnerThread() {
		return false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.closed:
		return false, host.ErrReactorClosed
	case r.active:
		return false, host.ErrWrongThread
	}
	r.active = true
	r.owner.Store(goid.ID())
	return true, nil
}

func (r *Reactor) leave() {
	r.owner.Store(0)
	r.mu.Lock()
	r.active = false
	r.mu.Unlock()
}

// Exec runs iterations until Exit.
func (r *Reactor) Exec() error {
	entered, err := r.enter()
	if err != nil {
		if errors.Is(err, host.ErrWrongThread) {
			return host.ErrAlreadyExecuting
		}
		return err
	}
	if !entered {
		return host.ErrAlreadyExecuting
	}
	defer r.leave()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	r.exit.Store(false)
	r.executing.Store(true)
	defer r.executing.Store(false)

	for !r.exit.Load() {
		r.tick(maxWait)
	}
	return nil
}

// Exit requests that Exec return after the current iteration.
func (r *Reactor) Exit() {
	r.exit.Store(true)
	r.signal()
}

// ProcessEvents performs one iteration, waiting at most maxWait.
func (r *Reactor) ProcessEvents(maxWait time.Duration) error {
	entered, err := r.enter()
	if err != nil {
		return err
	}
	if entered {
		defer r.leave()
	}
	r.tick(maxWait)
	return nil
}

func (r *Reactor) tick(maxWait time.Duration) {
	if d := r.timeout(maxWait); d > 0 {
		t := time.NewTimer(d)
		select {
		case <-r.wake:
		case <-t.C:
		}
		t.Stop()
	} else {
		select {
		case <-r.wake:
		default:
		}
	}

	now := time.Now()
	for {
		r.mu.Lock()
		e, ok := r.timers.PopDue(now)
		r.mu.Unlock()
		if !ok {
			break
		}
		r.safeExecute(e.Fn)
	}

	r.mu.Lock()
	batch := r.posted
	r.posted = nil
	r.mu.Unlock()
	for _, fn := range batch {
		r.safeExecute(fn)
	}
}

func (r *Reactor) timeout(maxWait time.Duration) time.Duration {
	if maxWait <= 0 || r.exit.Load() {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.posted) > 0 {
		return 0
	}
	if next, ok := r.timers.Next(); ok {
		if until := time.Until(next); until < maxWait {
			return max(until, 0)
		}
	}
	return maxWait
}

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

func (r *Reactor) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Post queues fn to run on the owner.
func (r *Reactor) Post(fn func()) error {
	if fn == nil {
		return errNilCallback
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return host.ErrReactorClosed
	}
	r.posted = append(r.posted, fn)
	r.mu.Unlock()
	r.signal()
	return nil
}

func (r *Reactor) checkAccessLocked() error {
	switch {
	case r.closed:
		return host.ErrReactorClosed
	case r.active && !r.IsOwnerThread():
		return host.ErrWrongThread
	}
	return nil
}

// StartTimer arms a one-shot timer.
func (r *Reactor) StartTimer(delay time.Duration, fn func()) (host.TimerID, error) {
	if fn == nil {
		return 0, errNilCallback
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkAccessLocked(); err != nil {
		return 0, err
	}
	return host.TimerID(r.timers.Add(time.Now().Add(max(delay, 0)), fn)), nil
}

// KillTimer disarms a timer.
func (r *Reactor) KillTimer(id host.TimerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkAccessLocked(); err != nil {
		return err
	}
	r.timers.Remove(uint64(id))
	return nil
}

// AddNotifier is unsupported.
func (r *Reactor) AddNotifier(int, host.Direction, func()) error { return host.ErrUnsupported }

// SetNotifierEnabled is unsupported.
func (r *Reactor) SetNotifierEnabled(int, host.Direction, bool) error { return host.ErrUnsupported }

// RemoveNotifier is unsupported.
func (r *Reactor) RemoveNotifier(int, host.Direction) error { return host.ErrUnsupported }

// IsOwnerThread reports whether the caller is inside Exec or ProcessEvents.
func (r *Reactor) IsOwnerThread() bool {
	owner := r.owner.Load()
	return owner != 0 && owner == goid.ID()
}

// Executing reports whether Exec is running.
func (r *Reactor) Executing() bool { return r.executing.Load() }

// Close discards pending work. It fails while the reactor is owned.
func (r *Reactor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.closed:
		return host.ErrReactorClosed
	case r.active:
		return host.ErrReactorBusy
	}
	r.closed = true
	if n := len(r.posted); n > 0 || r.timers.Len() > 0 {
		r.logger.Warning().Int("posted", n).Int("timers", r.timers.Len()).Log("reactor closed with pending work")
	}
	r.posted = nil
	r.timers.Clear()
	return nil
}

var _ host.Reactor = (*Reactor)(nil)
