// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package timerq implements the one-shot timer queue used by the host
// bindings. It is not safe for concurrent use.
package timerq

import (
	"container/heap"
	"time"
)

// Entry is a queued timer.
type Entry struct {
	When  time.Time
	Fn    func()
	ID    uint64
	index int
}

// Queue is a min-heap of timers, ordered by deadline then ID, with removal
// by ID.
type Queue struct {
	byID   map[uint64]*Entry
	heap   entryHeap
	nextID uint64
}

type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].When.Equal(h[j].When) {
		return h[i].ID < h[j].ID
	}
	return h[i].When.Before(h[j].When)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Add queues fn to fire at when, returning its (non-zero) ID.
func (q *Queue) Add(when time.Time, fn func()) uint64 {
	if q.byID == nil {
		q.byID = make(map[uint64]*Entry)
	}
	q.nextID++
	e := &Entry{When: when, Fn: fn, ID: q.nextID}
	heap.Push(&q.heap, e)
	q.byID[e.ID] = e
	return e.ID
}

// Remove dequeues the timer with the given ID, reporting whether it was
// present.
func (q *Queue) Remove(id uint64) bool {
	e, ok := q.byID[id]
	if !ok {
		return false
	}
	delete(q.byID, id)
	heap.Remove(&q.heap, e.index)
	return true
}

// Next returns the earliest deadline.
func (q *Queue) Next() (time.Time, bool) {
	if len(q.heap) == 0 {
		return time.Time{}, false
	}
	return q.heap[0].When, true
}

// PopDue removes and returns the earliest timer, if it is due at or before
// now.
func (q *Queue) PopDue(now time.Time) (*Entry, bool) {
	if len(q.heap) == 0 || q.heap[0].When.After(now) {
		return nil, false
	}
	e := heap.Pop(&q.heap).(*Entry)
	delete(q.byID, e.ID)
	return e, true
}

// Len returns the number of queued timers.
func (q *Queue) Len() int { return len(q.heap) }

// Clear drops all timers.
func (q *Queue) Clear() {
	for i := range q.heap {
		q.heap[i] = nil
	}
	q.heap = q.heap[:0]
	clear(q.byID)
}
