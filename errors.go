// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package hostloop

import (
	"errors"
)

// Standard errors.
var (
	// ErrLoopClosed is returned when operating on a closed loop.
	ErrLoopClosed = errors.New("hostloop: loop is closed")

	// ErrLoopAlreadyRunning is returned when running a loop that is
	// already running.
	ErrLoopAlreadyRunning = errors.New("hostloop: loop is already running")

	// ErrLoopRunning is returned when closing a running loop.
	ErrLoopRunning = errors.New("hostloop: cannot close a running loop")

	// ErrStoppedBeforeComplete is returned by RunUntilComplete if the loop
	// stopped before the future was done.
	ErrStoppedBeforeComplete = errors.New("hostloop: loop stopped before future completed")

	// ErrNilCallback is returned when scheduling a nil callback.
	ErrNilCallback = errors.New("hostloop: nil callback")

	// ErrInvalidFileObject is returned by FileDescriptor for values that
	// have no file descriptor.
	ErrInvalidFileObject = errors.New("hostloop: invalid file object")
)
