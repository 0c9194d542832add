// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package host

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrHostUnavailable is returned when no usable binding is registered,
	// or the binding named by the environment is unknown.
	ErrHostUnavailable = errors.New("host: no supported host binding available")

	// ErrAlreadyBound is returned on attempts to switch the process to a
	// different binding, or to claim a second reactor.
	ErrAlreadyBound = errors.New("host: already bound")

	// ErrReactorClosed is returned by operations on a closed reactor.
	ErrReactorClosed = errors.New("host: reactor is closed")

	// ErrReactorBusy is returned by Close while the reactor is owned.
	ErrReactorBusy = errors.New("host: reactor is busy")

	// ErrWrongThread is returned when a reactor-facing operation is made
	// from a goroutine other than the owner, while the reactor is owned.
	ErrWrongThread = errors.New("host: operation must be performed on the reactor thread")

	// ErrAlreadyExecuting is returned by Exec if the reactor is owned.
	ErrAlreadyExecuting = errors.New("host: reactor is already executing")

	// ErrUnsupported is returned by bindings lacking a capability.
	ErrUnsupported = errors.New("host: operation not supported by binding")

	// ErrNotifierNotFound is returned when a notifier is not registered.
	ErrNotifierNotFound = errors.New("host: notifier not registered")

	// ErrInvalidDirection is returned for an unknown Direction.
	ErrInvalidDirection = errors.New("host: invalid direction")
)

// PanicError wraps a value recovered from a panic.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value if it is an error, enabling use with
// [errors.Is] and [errors.As].
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
