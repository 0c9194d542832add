// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package thread

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/joeycumines/go-hostloop/dispatch"
	"github.com/joeycumines/go-hostloop/host"
)

// Timer calls a function on the reactor's owner goroutine, once or
// repeatedly. It may be started and cancelled from any goroutine, including
// from within its own callback.
type Timer struct {
	reactor  host.Reactor
	cb       func()
	id       host.TimerID
	interval time.Duration
	// gen invalidates host timers armed by an earlier Start
	gen    uint64
	mu     sync.Mutex
	repeat bool
	active bool
	hasID  bool
}

// NewTimer creates a timer driven by r, or the bound reactor if r is nil.
func NewTimer(r host.Reactor) (*Timer, error) {
	if r == nil {
		if r = host.Current(); r == nil {
			return nil, host.ErrHostUnavailable
		}
	}
	return &Timer{reactor: r}, nil
}

// SingleShot starts a timer calling cb once, after delay.
func SingleShot(r host.Reactor, delay time.Duration, cb func()) (*Timer, error) {
	t, err := NewTimer(r)
	if err != nil {
		return nil, err
	}
	if err := t.Start(delay, cb, false); err != nil {
		return nil, err
	}
	return t, nil
}

// Start (re)arms the timer, replacing any previous schedule. With repeat,
// cb is called every delay until Cancel.
func (t *Timer) Start(delay time.Duration, cb func(), repeat bool) error {
	if cb == nil {
		return ErrNilCallback
	}
	delay = max(delay, 0)

	t.mu.Lock()
	t.gen++
	gen := t.gen
	t.cb, t.interval, t.repeat, t.active = cb, delay, repeat, true
	old, hadOld := t.id, t.hasID
	t.hasID = false
	t.mu.Unlock()

	return t.onOwner(func() error {
		if hadOld {
			_ = t.reactor.KillTimer(old)
		}
		return t.arm(gen, delay)
	})
}

// Cancel stops the timer. It is a no-op if the timer is not active.
func (t *Timer) Cancel() {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	t.gen++
	t.active = false
	id, hadID := t.id, t.hasID
	t.hasID = false
	t.mu.Unlock()

	if hadID {
		// stale fires are ignored, so failing to kill the host timer is harmless
		_ = t.onOwner(func() error { return t.reactor.KillTimer(id) })
	}
}

// Active reports whether the timer is scheduled.
func (t *Timer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Interval returns the most recent delay.
func (t *Timer) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

func (t *Timer) arm(gen uint64, delay time.Duration) error {
	id, err := t.reactor.StartTimer(delay, func() { t.fire(gen) })
	if err != nil {
		t.mu.Lock()
		if t.gen == gen {
			t.active = false
		}
		t.mu.Unlock()
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != gen {
		_ = t.reactor.KillTimer(id)
		return nil
	}
	t.id, t.hasID = id, true
	return nil
}

func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	if t.gen != gen || !t.active {
		t.mu.Unlock()
		return
	}
	cb, repeat, interval := t.cb, t.repeat, t.interval
	t.hasID = false
	if !repeat {
		t.active = false
	}
	t.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			host.ReportUnhandled(host.Exception{
				Message: "exception in timer callback",
				Err:     host.Recovered(r),
			})
		}
		if repeat {
			t.mu.Lock()
			current := t.gen == gen && t.active
			t.mu.Unlock()
			if current {
				if err := t.arm(gen, interval); err != nil {
					host.ReportUnhandled(host.Exception{
						Message: "failed to re-arm repeating timer",
						Err:     err,
					})
				}
			}
		}
	}()
	cb()
}

// onOwner runs fn on the reactor's owner goroutine, or directly if the
// reactor is idle.
func (t *Timer) onOwner(fn func() error) error {
	if t.reactor.IsOwnerThread() || !t.reactor.Executing() {
		err := fn()
		if !errors.Is(err, host.ErrWrongThread) {
			return err
		}
	}
	run := func() {
		if err := fn(); err != nil {
			host.ReportUnhandled(host.Exception{
				Message: "timer operation failed",
				Err:     err,
			})
		}
	}
	if d := dispatch.Current(); d != nil && d.Reactor() == t.reactor {
		return d.Post(run)
	}
	if err := t.reactor.Post(run); err != nil {
		return fmt.Errorf("thread: post timer operation: %w", err)
	}
	return nil
}
