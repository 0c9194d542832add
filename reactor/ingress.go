// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"github.com/eapache/queue"
)

// postQueue is a FIFO of posted callbacks, backed by a ring buffer.
// The zero value is ready to use.
//
// Thread Safety: NOT thread-safe. The reactor guards it with postMu.
type postQueue struct {
	q *queue.Queue
}

// Push appends a callback.
func (x *postQueue) Push(fn func()) {
	if x.q == nil {
		x.q = queue.New()
	}
	x.q.Add(fn)
}

// Pop removes the oldest callback, returning false if empty.
func (x *postQueue) Pop() (func(), bool) {
	if x.Length() == 0 {
		return nil, false
	}
	return x.q.Remove().(func()), true
}

// Drain removes up to n callbacks, appending them to dst.
func (x *postQueue) Drain(dst []func(), n int) []func() {
	for ; n > 0; n-- {
		fn, ok := x.Pop()
		if !ok {
			break
		}
		dst = append(dst, fn)
	}
	return dst
}

// Length returns the number of queued callbacks.
func (x *postQueue) Length() int {
	if x.q == nil {
		return 0
	}
	return x.q.Length()
}
