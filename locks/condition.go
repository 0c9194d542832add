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

// Condition is a condition variable, associated with an [OwnedLock].
// Waiters are woken in FIFO order.
type Condition struct {
	noCopy  noCopy
	lock    OwnedLock
	waiters waitQueue
	mu      sync.Mutex
}

// NewCondition returns a Condition using lock, or a new [RLock] if lock is
// nil.
func NewCondition(lock OwnedLock) *Condition {
	if lock == nil {
		lock = NewRLock()
	}
	return &Condition{lock: lock}
}

// Locker returns the underlying lock.
func (c *Condition) Locker() OwnedLock { return c.lock }

// Acquire acquires the underlying lock.
func (c *Condition) Acquire(timeout time.Duration) bool { return c.lock.Acquire(timeout) }

// Release releases the underlying lock.
func (c *Condition) Release() error { return c.lock.Release() }

// Lock implements sync.Locker.
func (c *Condition) Lock() { c.lock.Lock() }

// Unlock implements sync.Locker.
func (c *Condition) Unlock() { c.lock.Unlock() }

// Wait atomically releases the lock (fully, for an [RLock]), blocks until
// notified or the timeout elapses, then re-acquires the lock at its prior
// recursion level. It reports false on timeout. The caller must hold the
// lock, or [ErrNotOwner] is returned.
func (c *Condition) Wait(timeout time.Duration) (bool, error) {
	if !c.lock.owned() {
		return false, ErrNotOwner
	}
	checkTimeout(timeout)

	w := newWaiter(currentID())
	c.mu.Lock()
	c.waiters.push(w)
	c.mu.Unlock()

	saved := c.lock.releaseSave()
	defer c.lock.acquireRestore(saved)

	if block(w.ch, timeout) {
		return true, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if w.signalled {
		// notified as the wait expired, the notification is not lost
		return true, nil
	}
	c.waiters.cancel(w)
	return false, nil
}

// WaitFor waits until predicate returns true, or the timeout elapses,
// returning the last value of predicate. The predicate is evaluated with
// the lock held.
func (c *Condition) WaitFor(predicate func() bool, timeout time.Duration) (bool, error) {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	result := predicate()
	for !result {
		wait := Forever
		if timeout >= 0 {
			wait = time.Until(deadline)
			if wait <= 0 {
				break
			}
		}
		if _, err := c.Wait(wait); err != nil {
			return false, err
		}
		result = predicate()
	}
	return result, nil
}

// Notify wakes up to n waiters. The caller must hold the lock.
func (c *Condition) Notify(n int) error {
	if !c.lock.owned() {
		return ErrNotOwner
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for ; n > 0; n-- {
		w := c.waiters.pop()
		if w == nil {
			break
		}
		w.signal()
	}
	return nil
}

// NotifyAll wakes all waiters. The caller must hold the lock.
func (c *Condition) NotifyAll() error {
	if !c.lock.owned() {
		return ErrNotOwner
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for w := c.waiters.pop(); w != nil; w = c.waiters.pop() {
		w.signal()
	}
	return nil
}
