// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package host defines the narrow capability set through which the rest of
// the module drives a host reactor: a single-threaded, cooperative event loop
// owned by someone else, plus the native thread pool that accompanies it.
//
// Concrete bindings (see the reactor and chanhost packages) register
// themselves with [Register]. Exactly one binding is selected per process,
// via the HOSTLOOP_API environment variable, and exactly one reactor may be
// claimed at a time (see [Claim]).
package host

import (
	"time"
)

type (
	// Direction selects the readiness interest of a notifier.
	Direction uint8

	// TimerID identifies a one-shot host timer. The zero value is never
	// issued.
	TimerID uint64

	// Reactor models the host's event loop.
	//
	// The goroutine currently inside Exec or ProcessEvents is the "owner".
	// Timer, notifier, and exit requests may be made by the owner, or by any
	// goroutine while no goroutine owns the reactor. Post is valid from any
	// goroutine, and is the only way other goroutines may reach the owner.
	Reactor interface {
		// Binding returns the name of the binding that created the reactor.
		Binding() string

		// Exec runs the dispatch loop on the calling goroutine, until Exit
		// is called. It fails with ErrAlreadyExecuting if the reactor is
		// already owned, and ErrReactorClosed after Close.
		Exec() error

		// Exit requests that Exec return after the current iteration.
		Exit()

		// ProcessEvents performs a single iteration, waiting at most maxWait
		// for a timer, readiness event, or posted callback. It may be called
		// recursively by the owner.
		ProcessEvents(maxWait time.Duration) error

		// Post queues fn to run on the owner, in FIFO order, waking the
		// reactor if it is blocked.
		Post(fn func()) error

		// StartTimer arms a one-shot timer, which calls fn on the owner.
		StartTimer(delay time.Duration, fn func()) (TimerID, error)

		// KillTimer disarms a timer. Unknown or already fired timers are
		// ignored.
		KillTimer(id TimerID) error

		// AddNotifier registers fn to be called (on the owner) while fd is
		// ready in the given direction. Notifiers are level triggered, and
		// start enabled.
		AddNotifier(fd int, dir Direction, fn func()) error

		// SetNotifierEnabled toggles delivery for a registered notifier.
		SetNotifierEnabled(fd int, dir Direction, enabled bool) error

		// RemoveNotifier unregisters a notifier. It is safe to call from
		// within the notifier's own callback.
		RemoveNotifier(fd int, dir Direction) error

		// IsOwnerThread reports whether the calling goroutine is the owner.
		IsOwnerThread() bool

		// Executing reports whether Exec is currently running.
		Executing() bool

		// Close releases the reactor's resources. It fails if the reactor is
		// currently owned.
		Close() error
	}

	// ThreadPool models the host's native worker pool.
	ThreadPool interface {
		// Start queues fn to run on a pool worker. If Clear removes fn
		// before it starts, onDiscard (if non-nil) is called instead.
		Start(fn func(), onDiscard func()) error

		// WaitForDone blocks until all queued and running work is complete,
		// or the timeout elapses (negative waits forever). It returns false
		// on timeout.
		WaitForDone(timeout time.Duration) bool

		// ActiveThreadCount returns the number of workers running work.
		ActiveThreadCount() int

		// MaxThreadCount returns the worker limit.
		MaxThreadCount() int

		// Clear removes queued work that has not started, returning the
		// number of items removed.
		Clear() int
	}

	// Binding is a concrete host implementation.
	Binding interface {
		Name() string
		NewReactor() (Reactor, error)
		GlobalThreadPool() ThreadPool
	}
)

const (
	// Read interest: the descriptor is readable.
	Read Direction = iota + 1
	// Write interest: the descriptor is writable.
	Write
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return "unknown"
	}
}
