// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package hostloop

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Handle is a scheduled callback, returned by CallSoon.
type Handle struct {
	when      time.Time
	fn        func()
	loop      *EventLoop
	seq       uint64
	index     int // heap index, -1 when not queued, guarded by loop.mu
	cancelled atomic.Bool
}

// Cancel prevents the callback from running, if it has not yet started.
// It is safe to call from any goroutine, any number of times.
func (h *Handle) Cancel() {
	if h.cancelled.CompareAndSwap(false, true) {
		h.loop.unschedule(h)
	}
}

// Cancelled reports whether Cancel was called.
func (h *Handle) Cancelled() bool { return h.cancelled.Load() }

func (h *Handle) String() string {
	state := "pending"
	if h.Cancelled() {
		state = "cancelled"
	}
	return fmt.Sprintf("<Handle #%d %s>", h.seq, state)
}

// TimerHandle is a scheduled callback with a deadline, returned by
// CallLater and CallAt.
type TimerHandle struct {
	Handle
}

// When returns the scheduled time.
func (h *TimerHandle) When() time.Time { return h.when }

func (h *TimerHandle) String() string {
	state := "pending"
	if h.Cancelled() {
		state = "cancelled"
	}
	return fmt.Sprintf("<TimerHandle #%d when=%s %s>", h.seq, h.when.Format(time.RFC3339Nano), state)
}

// handleHeap is a min-heap of handles, ordered by (when, seq).
type handleHeap []*Handle

func (h handleHeap) Len() int { return len(h) }

func (h handleHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h handleHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *handleHeap) Push(x any) {
	v := x.(*Handle)
	v.index = len(*h)
	*h = append(*h, v)
}

func (h *handleHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	x.index = -1
	*h = old[:n-1]
	return x
}
