// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"sync/atomic"
)

// reactorState represents the ownership state of a reactor.
//
// State Machine:
//
//	stateIdle (0) → stateActive (1)   [Exec, or outermost ProcessEvents]
//	stateActive (1) → stateIdle (0)   [return from the above]
//	stateIdle (0) → stateClosed (2)   [Close]
//	stateClosed (2) → (terminal)
type reactorState uint64

const (
	// stateIdle indicates no goroutine owns the reactor.
	stateIdle reactorState = 0
	// stateActive indicates a goroutine is inside Exec or ProcessEvents.
	stateActive reactorState = 1
	// stateClosed indicates the reactor has been closed.
	stateClosed reactorState = 2
)

// String returns a human-readable representation of the state.
func (s reactorState) String() string {
	switch s {
	case stateIdle:
		return "Idle"
	case stateActive:
		return "Active"
	case stateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free state machine with cache-line padding.
type fastState struct { // betteralign:ignore
	_ [sizeOfCacheLine]byte                      //nolint:unused
	v atomic.Uint64                              // State value
	_ [sizeOfCacheLine - sizeOfAtomicUint64]byte //nolint:unused
}

// Load returns the current state atomically.
func (s *fastState) Load() reactorState {
	return reactorState(s.v.Load())
}

// TryTransition attempts to atomically transition from one state to another.
func (s *fastState) TryTransition(from, to reactorState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// These constants are verified via unit tests.
const (
	// sizeOfCacheLine is 128 to satisfy both x86-64 (64) and Apple Silicon
	// (128).
	sizeOfCacheLine = 128

	// sizeOfAtomicUint64 is the size of an atomic.Uint64 variable.
	sizeOfAtomicUint64 = 8
)
