// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package locks provides Lock, RLock, Condition, Event, and Semaphore, with
// blocking and timeout semantics mirroring the standard threading
// vocabulary.
//
// Ownership is tracked per goroutine. Blocking waits made on the goroutine
// that owns the bound reactor (see [host.Current]) do not starve it: the
// wait is split into slices of [YieldInterval], between which the reactor
// processes pending events.
//
// All primitives must be used by pointer, and never copied.
package locks

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/joeycumines/go-hostloop/host"
	"github.com/joeycumines/go-hostloop/internal/goid"
	"github.com/joeycumines/go-hostloop/logging"
)

// Forever may be passed as a timeout to block without limit.
const Forever time.Duration = -1

// DefaultYieldInterval is the initial value of [YieldInterval].
const DefaultYieldInterval = 5 * time.Millisecond

// Standard errors.
var (
	// ErrNotOwner is returned when releasing (or waiting on, or notifying)
	// a lock the caller does not hold.
	ErrNotOwner = errors.New("locks: not owner")

	// ErrOverReleased is returned when releasing a bounded semaphore beyond
	// its initial value.
	ErrOverReleased = errors.New("locks: semaphore over-released")

	// ErrInvalidCount is returned for a non-positive release count.
	ErrInvalidCount = errors.New("locks: count must be positive")
)

var yieldInterval atomic.Int64

func init() {
	yieldInterval.Store(int64(DefaultYieldInterval))
}

// YieldInterval returns the maximum time a wait on the reactor's goroutine
// blocks before servicing the reactor.
func YieldInterval() time.Duration {
	return time.Duration(yieldInterval.Load())
}

// SetYieldInterval sets [YieldInterval], returning a function restoring the
// previous value.
func SetYieldInterval(d time.Duration) (restore func()) {
	if d <= 0 {
		d = DefaultYieldInterval
	}
	old := yieldInterval.Swap(int64(d))
	return func() { yieldInterval.Store(old) }
}

// noCopy may be embedded into structs which must not be copied after first
// use. See go vet's copylocks check.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// waiter is a single blocked caller. Fields other than ch are guarded by the
// owning primitive's mutex.
type waiter struct {
	ch        chan struct{}
	gid       uint64
	signalled bool
	cancelled bool
}

func newWaiter(gid uint64) *waiter {
	return &waiter{ch: make(chan struct{}, 1), gid: gid}
}

// signal wakes the waiter. It must be called at most once, under the
// primitive's mutex.
func (w *waiter) signal() {
	w.signalled = true
	w.ch <- struct{}{}
}

// waitQueue is a FIFO of waiters, with lazy removal of cancelled entries.
type waitQueue struct {
	q    *queue.Queue
	live int
}

func (x *waitQueue) push(w *waiter) {
	if x.q == nil {
		x.q = queue.New()
	}
	x.q.Add(w)
	x.live++
}

// pop removes the oldest live waiter, or returns nil.
func (x *waitQueue) pop() *waiter {
	for x.q != nil && x.q.Length() > 0 {
		w := x.q.Remove().(*waiter)
		if w.cancelled {
			continue
		}
		x.live--
		return w
	}
	return nil
}

func (x *waitQueue) cancel(w *waiter) {
	w.cancelled = true
	x.live--
}

func (x *waitQueue) empty() bool { return x.live == 0 }

// block waits until ch receives or timeout elapses, reporting whether ch
// received. On the reactor's goroutine the wait is a hybrid of bounded
// blocking and reactor iterations.
func block(ch <-chan struct{}, timeout time.Duration) bool {
	r := host.Current()
	if r == nil || !r.IsOwnerThread() {
		return blockPlain(ch, timeout)
	}

	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		slice := YieldInterval()
		if timeout >= 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				select {
				case <-ch:
					return true
				default:
					return false
				}
			}
			slice = min(slice, remaining)
		}
		if blockPlain(ch, slice) {
			return true
		}
		if err := r.ProcessEvents(0); err != nil {
			// the reactor can no longer be serviced
			var remaining time.Duration = Forever
			if timeout >= 0 {
				remaining = max(time.Until(deadline), 0)
			}
			return blockPlain(ch, remaining)
		}
	}
}

func blockPlain(ch <-chan struct{}, timeout time.Duration) bool {
	switch {
	case timeout < 0:
		<-ch
		return true
	case timeout == 0:
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}

type timeoutThresholds struct {
	onViolation func(timeout time.Duration)
	min, max    time.Duration
}

var thresholds atomic.Pointer[timeoutThresholds]

// SetTimeoutWarningThresholds enables a warning, logged for every finite,
// non-zero timeout outside [min, max] (a max of zero disables the upper
// bound), and an optional callback. It helps catch unit mistakes, such as a
// timeout of 1000 meaning milliseconds, written as seconds. It returns a
// function restoring the previous configuration.
func SetTimeoutWarningThresholds(min, max time.Duration, onViolation func(timeout time.Duration)) (restore func()) {
	old := thresholds.Swap(&timeoutThresholds{min: min, max: max, onViolation: onViolation})
	return func() { thresholds.Store(old) }
}

func checkTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	th := thresholds.Load()
	if th == nil || (timeout >= th.min && (th.max <= 0 || timeout <= th.max)) {
		return
	}
	logging.Component(nil, "locks").Warning().
		Dur("timeout", timeout).
		Dur("min", th.min).
		Dur("max", th.max).
		Log("timeout violates warning threshold")
	if th.onViolation != nil {
		th.onViolation(timeout)
	}
}

// currentID is the ownership key of the calling goroutine.
func currentID() uint64 { return goid.ID() }
