// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package goid exposes the runtime identifier of the calling goroutine.
//
// The identifier is parsed from the header of runtime.Stack, which is the
// only portable way to obtain it. It is used for ownership checks, where the
// cost (~1µs) is acceptable.
package goid

import "runtime"

// ID returns the id of the calling goroutine, or 0 if it could not be parsed.
func ID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
