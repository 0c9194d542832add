// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package locks

import (
	"fmt"
	"sync"
	"time"
)

// Semaphore is a counting semaphore. Released units are handed to waiters
// in FIFO order.
type Semaphore struct {
	noCopy  noCopy
	waiters waitQueue
	mu      sync.Mutex
	value   int
	initial int
	bounded bool
}

// NewSemaphore returns a Semaphore with the given initial value, which
// must not be negative.
func NewSemaphore(value int) *Semaphore {
	if value < 0 {
		panic(fmt.Errorf("locks: semaphore initial value must be >= 0: %d", value))
	}
	return &Semaphore{value: value, initial: value}
}

// NewBoundedSemaphore returns a Semaphore that refuses to be released
// beyond its initial value, see [ErrOverReleased].
func NewBoundedSemaphore(value int) *Semaphore {
	s := NewSemaphore(value)
	s.bounded = true
	return s
}

// Acquire decrements the value, blocking while it is zero, until the
// timeout elapses. It reports whether a unit was acquired.
func (s *Semaphore) Acquire(timeout time.Duration) bool {
	checkTimeout(timeout)
	s.mu.Lock()
	if s.value > 0 && s.waiters.empty() {
		s.value--
		s.mu.Unlock()
		return true
	}
	if timeout == 0 {
		s.mu.Unlock()
		return false
	}
	w := newWaiter(currentID())
	s.waiters.push(w)
	s.mu.Unlock()

	if block(w.ch, timeout) {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w.signalled {
		return true
	}
	s.waiters.cancel(w)
	return false
}

// TryAcquire acquires a unit if one is immediately available.
func (s *Semaphore) TryAcquire() bool { return s.Acquire(0) }

// Release releases n units, waking up to n waiters.
func (s *Semaphore) Release(n int) error {
	if n < 1 {
		return ErrInvalidCount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bounded && s.value+n > s.initial {
		return ErrOverReleased
	}
	for ; n > 0; n-- {
		if w := s.waiters.pop(); w != nil {
			w.signal()
		} else {
			s.value++
		}
	}
	return nil
}

// Value returns the number of immediately available units.
func (s *Semaphore) Value() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}
