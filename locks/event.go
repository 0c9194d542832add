// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package locks

import (
	"sync"
	"time"
)

// Event is a boolean flag, which goroutines may wait to be set. The zero
// value is a cleared Event.
type Event struct {
	noCopy  noCopy
	waiters waitQueue
	mu      sync.Mutex
	flag    bool
}

// NewEvent returns a new cleared Event.
func NewEvent() *Event { return new(Event) }

// Set sets the flag, waking all waiters.
func (e *Event) Set() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flag = true
	for w := e.waiters.pop(); w != nil; w = e.waiters.pop() {
		w.signal()
	}
}

// Clear resets the flag.
func (e *Event) Clear() {
	e.mu.Lock()
	e.flag = false
	e.mu.Unlock()
}

// IsSet reports the flag.
func (e *Event) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flag
}

// Wait blocks until the flag is set, or the timeout elapses, returning
// true if the flag was set.
func (e *Event) Wait(timeout time.Duration) bool {
	checkTimeout(timeout)
	e.mu.Lock()
	if e.flag {
		e.mu.Unlock()
		return true
	}
	if timeout == 0 {
		e.mu.Unlock()
		return false
	}
	w := newWaiter(currentID())
	e.waiters.push(w)
	e.mu.Unlock()

	if block(w.ch, timeout) {
		return true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if w.signalled {
		return true
	}
	e.waiters.cancel(w)
	return e.flag
}
