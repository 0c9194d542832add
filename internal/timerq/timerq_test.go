// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package timerq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_order(t *testing.T) {
	var q Queue
	base := time.Now()
	var got []int
	for i, d := range []time.Duration{3, 1, 2, 1, 0} {
		q.Add(base.Add(d*time.Millisecond), func() { got = append(got, i) })
	}
	next, ok := q.Next()
	require.True(t, ok)
	assert.Equal(t, base, next)

	for {
		e, ok := q.PopDue(base.Add(10 * time.Millisecond))
		if !ok {
			break
		}
		e.Fn()
	}
	// equal deadlines fire in insertion order
	assert.Equal(t, []int{4, 1, 3, 2, 0}, got)
	assert.Zero(t, q.Len())
}

func TestQueue_popDuePartial(t *testing.T) {
	var q Queue
	base := time.Now()
	id := q.Add(base, func() {})
	q.Add(base.Add(time.Hour), func() {})

	e, ok := q.PopDue(base)
	require.True(t, ok)
	assert.Equal(t, id, e.ID)
	_, ok = q.PopDue(base)
	assert.False(t, ok)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_remove(t *testing.T) {
	var q Queue
	base := time.Now()
	a := q.Add(base, func() {})
	b := q.Add(base.Add(time.Second), func() {})

	assert.True(t, q.Remove(a))
	assert.False(t, q.Remove(a))
	next, ok := q.Next()
	require.True(t, ok)
	assert.Equal(t, base.Add(time.Second), next)

	assert.True(t, q.Remove(b))
	_, ok = q.Next()
	assert.False(t, ok)
}

func TestQueue_clear(t *testing.T) {
	var q Queue
	id := q.Add(time.Now(), func() {})
	q.Clear()
	assert.Zero(t, q.Len())
	assert.False(t, q.Remove(id))
	assert.NotEqual(t, id, q.Add(time.Now(), func() {}))
}
