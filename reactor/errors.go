// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"errors"
)

// Standard errors.
var (
	// ErrFDOutOfRange is returned for negative or excessively large fds.
	ErrFDOutOfRange = errors.New("reactor: fd out of range (max 100000000)")

	// ErrPollerClosed is returned by poller operations after close.
	ErrPollerClosed = errors.New("reactor: poller closed")

	// ErrNilCallback is returned when a nil callback is provided.
	ErrNilCallback = errors.New("reactor: nil callback")
)
