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

// OwnedLock is a lock usable with a [Condition]. It is implemented by [Lock]
// and [RLock].
type OwnedLock interface {
	sync.Locker
	Acquire(timeout time.Duration) bool
	Release() error

	// owned reports whether the caller holds the lock.
	owned() bool
	// releaseSave fully releases the lock, returning its recursion level.
	releaseSave() int
	// acquireRestore re-acquires the lock at the saved recursion level.
	acquireRestore(saved int)
}

// mutex is the shared implementation of Lock and RLock. Ownership is handed
// directly to the oldest waiter on release.
type mutex struct {
	noCopy  noCopy
	waiters waitQueue
	mu      sync.Mutex
	owner   uint64
	count   int
}

func (m *mutex) acquire(timeout time.Duration, reentrant bool) bool {
	checkTimeout(timeout)
	gid := currentID()

	m.mu.Lock()
	switch {
	case m.count == 0:
		m.owner, m.count = gid, 1
		m.mu.Unlock()
		return true
	case reentrant && m.owner == gid:
		m.count++
		m.mu.Unlock()
		return true
	case timeout == 0:
		m.mu.Unlock()
		return false
	}
	w := newWaiter(gid)
	m.waiters.push(w)
	m.mu.Unlock()

	if block(w.ch, timeout) {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if w.signalled {
		// ownership was handed over as the wait expired
		return true
	}
	m.waiters.cancel(w)
	return false
}

func (m *mutex) release(all bool) (int, error) {
	gid := currentID()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == 0 || m.owner != gid {
		return 0, ErrNotOwner
	}
	level := m.count
	if all {
		m.count = 0
	} else {
		m.count--
	}
	if m.count == 0 {
		if w := m.waiters.pop(); w != nil {
			m.owner, m.count = w.gid, 1
			w.signal()
		} else {
			m.owner = 0
		}
	}
	return level, nil
}

func (m *mutex) owned() bool {
	gid := currentID()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count != 0 && m.owner == gid
}

func (m *mutex) locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count != 0
}

// Lock is a non-reentrant mutual exclusion lock, owned by the acquiring
// goroutine. The zero value is an unlocked Lock.
type Lock struct {
	m mutex
}

// NewLock returns a new unlocked Lock.
func NewLock() *Lock { return new(Lock) }

// Acquire blocks until the lock is acquired, or the timeout elapses (0
// does not block, [Forever] blocks without limit). It reports whether the
// lock was acquired. Re-acquiring a held Lock blocks, as with any other
// caller.
func (l *Lock) Acquire(timeout time.Duration) bool { return l.m.acquire(timeout, false) }

// TryAcquire acquires the lock if it is free.
func (l *Lock) TryAcquire() bool { return l.m.acquire(0, false) }

// Release releases the lock. It fails with [ErrNotOwner] unless the caller
// holds it.
func (l *Lock) Release() error {
	_, err := l.m.release(false)
	return err
}

// Locked reports whether any goroutine holds the lock.
func (l *Lock) Locked() bool { return l.m.locked() }

// Lock implements sync.Locker.
func (l *Lock) Lock() { l.Acquire(Forever) }

// Unlock implements sync.Locker, panicking on ownership violation.
func (l *Lock) Unlock() {
	if err := l.Release(); err != nil {
		panic(err)
	}
}

func (l *Lock) owned() bool { return l.m.owned() }

func (l *Lock) releaseSave() int {
	level, _ := l.m.release(true)
	return level
}

func (l *Lock) acquireRestore(int) { l.m.acquire(Forever, false) }

// RLock is a reentrant lock: the owner may acquire it repeatedly, and must
// release it as many times. The zero value is an unlocked RLock.
type RLock struct {
	m mutex
}

// NewRLock returns a new unlocked RLock.
func NewRLock() *RLock { return new(RLock) }

// Acquire blocks until the lock is acquired, or the timeout elapses. The
// owner acquires immediately, incrementing the recursion level.
func (l *RLock) Acquire(timeout time.Duration) bool { return l.m.acquire(timeout, true) }

// TryAcquire acquires the lock if it is free, or held by the caller.
func (l *RLock) TryAcquire() bool { return l.m.acquire(0, true) }

// Release decrements the recursion level, releasing the lock when it
// reaches zero. Releasing a lock the caller does not hold, including
// releasing more times than acquired, fails with [ErrNotOwner].
func (l *RLock) Release() error {
	_, err := l.m.release(false)
	return err
}

// Count returns the current recursion level (zero when unlocked).
func (l *RLock) Count() int {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	return l.m.count
}

// Locked reports whether any goroutine holds the lock.
func (l *RLock) Locked() bool { return l.m.locked() }

// Lock implements sync.Locker.
func (l *RLock) Lock() { l.Acquire(Forever) }

// Unlock implements sync.Locker, panicking on ownership violation.
func (l *RLock) Unlock() {
	if err := l.Release(); err != nil {
		panic(err)
	}
}

func (l *RLock) owned() bool { return l.m.owned() }

func (l *RLock) releaseSave() int {
	level, _ := l.m.release(true)
	return level
}

func (l *RLock) acquireRestore(saved int) {
	l.m.acquire(Forever, true)
	if saved > 1 {
		l.m.mu.Lock()
		l.m.count = saved
		l.m.mu.Unlock()
	}
}

var (
	_ OwnedLock = (*Lock)(nil)
	_ OwnedLock = (*RLock)(nil)
)
