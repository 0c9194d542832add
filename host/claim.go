// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package host

import (
	"sync"
)

var claim struct {
	mu      sync.RWMutex
	reactor Reactor
}

// Claim records r as the process's bound reactor. Only one reactor may be
// claimed at a time, and it must be released before another is claimed.
func Claim(r Reactor) error {
	claim.mu.Lock()
	defer claim.mu.Unlock()
	if claim.reactor != nil {
		return ErrAlreadyBound
	}
	claim.reactor = r
	return nil
}

// Release clears the claim, if held by r.
func Release(r Reactor) {
	claim.mu.Lock()
	defer claim.mu.Unlock()
	if claim.reactor == r {
		claim.reactor = nil
	}
}

// Current returns the claimed reactor, or nil.
func Current() Reactor {
	claim.mu.RLock()
	defer claim.mu.RUnlock()
	return claim.reactor
}

// OnOwnerThread reports whether the calling goroutine owns the claimed
// reactor.
func OnOwnerThread() bool {
	r := Current()
	return r != nil && r.IsOwnerThread()
}
