// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package locks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestCondition_requiresOwnership(t *testing.T) {
	c := NewCondition(nil)
	_, err := c.Wait(0)
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.ErrorIs(t, c.Notify(1), ErrNotOwner)
	assert.ErrorIs(t, c.NotifyAll(), ErrNotOwner)
	assert.IsType(t, (*RLock)(nil), c.Locker())
}

func TestCondition_waitTimeoutRestoresRecursion(t *testing.T) {
	l := NewRLock()
	c := NewCondition(l)
	c.Lock()
	c.Lock()
	ok, err := c.Wait(10 * time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, l.Count())
	c.Unlock()
	c.Unlock()
	assert.False(t, l.Locked())
}

func TestCondition_waitReleasesLock(t *testing.T) {
	l := NewRLock()
	c := NewCondition(l)
	c.Lock()
	c.Lock()

	notified := make(chan error, 1)
	go func() {
		// succeeds only if Wait fully released the lock
		c.Lock()
		defer c.Unlock()
		notified <- c.Notify(1)
	}()

	ok, err := c.Wait(5 * time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, <-notified)
	assert.Equal(t, 2, l.Count())
	c.Unlock()
	c.Unlock()
}

func TestCondition_producerConsumer(t *testing.T) {
	c := NewCondition(NewLock())
	var items []int

	var g errgroup.Group
	results := make(chan int, 100)
	for w := 0; w < 4; w++ {
		g.Go(func() error {
			for {
				c.Lock()
				ok, err := c.WaitFor(func() bool { return len(items) > 0 }, 5*time.Second)
				if err != nil {
					c.Unlock()
					return err
				}
				if !ok {
					c.Unlock()
					return nil
				}
				v := items[0]
				items = items[1:]
				c.Unlock()
				if v < 0 {
					return nil
				}
				results <- v
			}
		})
	}

	for i := 0; i < 100; i++ {
		c.Lock()
		items = append(items, i)
		require.NoError(t, c.Notify(1))
		c.Unlock()
	}
	c.Lock()
	items = append(items, -1, -1, -1, -1)
	require.NoError(t, c.NotifyAll())
	c.Unlock()

	require.NoError(t, g.Wait())
	close(results)
	sum := 0
	for v := range results {
		sum += v
	}
	assert.Equal(t, 99*100/2, sum)
}

func TestCondition_waitForTimeout(t *testing.T) {
	c := NewCondition(nil)
	c.Lock()
	defer c.Unlock()
	calls := 0
	ok, err := c.WaitFor(func() bool { calls++; return false }, 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, calls, 2)
}
