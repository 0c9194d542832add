// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package thread provides a thread object running on a dedicated OS thread,
// and a timer object driven by the bound reactor.
package thread

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-hostloop/host"
	"github.com/joeycumines/go-hostloop/internal/goid"
	"github.com/joeycumines/go-hostloop/locks"
)

// Standard errors.
var (
	// ErrAlreadyStarted is returned by a second call to Thread.Start.
	ErrAlreadyStarted = errors.New("thread: already started")

	// ErrNilCallback is returned when a timer is started with a nil
	// callback.
	ErrNilCallback = errors.New("thread: nil callback")
)

var threadCounter atomic.Uint64

// ExceptHook receives the failure of a thread's target.
type ExceptHook func(t *Thread, err error)

// Thread runs a target function on its own goroutine, locked to an OS
// thread for its lifetime.
type Thread struct {
	target     func() error
	exceptHook ExceptHook
	done       *locks.Event
	name       string
	err        error
	ident      atomic.Uint64
	started    atomic.Bool
}

// Option configures a Thread.
type Option interface {
	applyThread(*Thread)
}

type threadOptionImpl struct {
	applyThreadFunc func(*Thread)
}

func (o *threadOptionImpl) applyThread(t *Thread) { o.applyThreadFunc(t) }

// WithName names the thread. The default is "Thread-N".
func WithName(name string) Option {
	return &threadOptionImpl{func(t *Thread) {
		t.name = name
	}}
}

// WithExceptHook sets the hook receiving an error returned (or panic
// raised) by the target. Without one, failures go to
// [host.ReportUnhandled].
func WithExceptHook(fn ExceptHook) Option {
	return &threadOptionImpl{func(t *Thread) {
		t.exceptHook = fn
	}}
}

// New creates an unstarted thread. A nil target does nothing.
func New(target func() error, opts ...Option) *Thread {
	t := &Thread{
		target: target,
		done:   locks.NewEvent(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applyThread(t)
		}
	}
	if t.name == "" {
		t.name = fmt.Sprintf("Thread-%d", threadCounter.Add(1))
	}
	return t
}

// Name returns the thread's name.
func (t *Thread) Name() string { return t.name }

// Start runs the target on a new goroutine. It may be called once.
func (t *Thread) Start() error {
	if !t.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	ready := make(chan struct{})
	go t.run(ready)
	<-ready
	return nil
}

func (t *Thread) run(ready chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	t.ident.Store(goid.ID())
	close(ready)

	defer t.done.Set()

	if err := t.call(); err != nil {
		t.err = err
		t.report(err)
	}
}

func (t *Thread) call() (err error) {
	if t.target == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = host.Recovered(r)
		}
	}()
	return t.target()
}

func (t *Thread) report(err error) {
	if t.exceptHook != nil {
		defer func() {
			if r := recover(); r != nil {
				host.ReportUnhandled(host.Exception{
					Message: "exception in thread except hook",
					Err:     host.Recovered(r),
					Fields:  map[string]any{"thread": t.name},
				})
			}
		}()
		t.exceptHook(t, err)
		return
	}
	host.ReportUnhandled(host.Exception{
		Message: "exception in thread",
		Err:     err,
		Fields:  map[string]any{"thread": t.name},
	})
}

// Join waits for the thread to finish, or the timeout to elapse
// ([locks.Forever] waits without limit). It reports whether the thread has
// finished. Joining an unstarted thread, or joining from the thread itself,
// returns false immediately.
func (t *Thread) Join(timeout time.Duration) bool {
	if !t.started.Load() || t.ident.Load() == goid.ID() {
		return false
	}
	return t.done.Wait(timeout)
}

// IsAlive reports whether the thread has started and not yet finished.
func (t *Thread) IsAlive() bool {
	return t.started.Load() && !t.done.IsSet()
}

// Ident returns the id of the thread's goroutine, or zero before Start.
func (t *Thread) Ident() uint64 { return t.ident.Load() }

// Err returns the failure of the target, once the thread has finished.
func (t *Thread) Err() error {
	if !t.done.IsSet() {
		return nil
	}
	return t.err
}
