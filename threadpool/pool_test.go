// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package threadpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/go-hostloop/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_runsAll(t *testing.T) {
	p, err := New(4)
	require.NoError(t, err)

	var n atomic.Int64
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Start(func() { n.Add(1) }, nil))
	}
	require.True(t, p.WaitForDone(5*time.Second))
	assert.Equal(t, int64(100), n.Load())
	assert.Zero(t, p.ActiveThreadCount())
}

func TestPool_boundedConcurrency(t *testing.T) {
	p, err := New(2)
	require.NoError(t, err)
	assert.Equal(t, 2, p.MaxThreadCount())

	var (
		cur, peak atomic.Int64
		release   = make(chan struct{})
	)
	for i := 0; i < 6; i++ {
		require.NoError(t, p.Start(func() {
			v := cur.Add(1)
			for {
				old := peak.Load()
				if v <= old || peak.CompareAndSwap(old, v) {
					break
				}
			}
			<-release
			cur.Add(-1)
		}, nil))
	}

	require.Eventually(t, func() bool { return p.ActiveThreadCount() == 2 }, time.Second, time.Millisecond)
	assert.False(t, p.WaitForDone(10*time.Millisecond))
	close(release)
	require.True(t, p.WaitForDone(5*time.Second))
	assert.Equal(t, int64(2), peak.Load())
}

func TestPool_clear(t *testing.T) {
	p, err := New(1)
	require.NoError(t, err)

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Start(func() {
		close(started)
		<-block
	}, nil))
	<-started

	var ran atomic.Int64
	var discarded []int
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Start(func() { ran.Add(1) }, func() { discarded = append(discarded, i) }))
	}
	require.NoError(t, p.Start(func() { ran.Add(1) }, nil))
	assert.Equal(t, 4, p.Clear())
	assert.Equal(t, []int{0, 1, 2}, discarded)
	close(block)
	require.True(t, p.WaitForDone(5*time.Second))
	assert.Zero(t, ran.Load())
}

func TestPool_closed(t *testing.T) {
	p, err := New(1)
	require.NoError(t, err)
	p.Close()
	assert.ErrorIs(t, p.Start(func() {}, nil), ErrPoolClosed)
	assert.True(t, p.WaitForDone(0))
}

func TestPool_panicReported(t *testing.T) {
	var (
		mu  sync.Mutex
		got []host.Exception
	)
	defer host.SetUnhandledHandler(func(exc host.Exception) {
		mu.Lock()
		got = append(got, exc)
		mu.Unlock()
	})()

	p, err := New(1)
	require.NoError(t, err)
	require.NoError(t, p.Start(func() { panic("task failed") }, nil))
	var after atomic.Bool
	require.NoError(t, p.Start(func() { after.Store(true) }, nil))
	require.True(t, p.WaitForDone(5*time.Second))
	assert.True(t, after.Load())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	var pe host.PanicError
	require.ErrorAs(t, got[0].Err, &pe)
	assert.Equal(t, "task failed", pe.Value)
}

func TestGlobal(t *testing.T) {
	assert.Same(t, Global(), Global())
	assert.GreaterOrEqual(t, Global().MaxThreadCount(), 1)
}
