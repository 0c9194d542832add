// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package thread

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/go-hostloop/chanhost"
	"github.com/joeycumines/go-hostloop/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runReactor(t *testing.T) *chanhost.Reactor {
	t.Helper()
	r := chanhost.New(nil)
	done := make(chan error, 1)
	go func() { done <- r.Exec() }()
	require.Eventually(t, r.Executing, time.Second, time.Millisecond)
	t.Cleanup(func() {
		r.Exit()
		assert.NoError(t, <-done)
		assert.NoError(t, r.Close())
	})
	return r
}

func TestNewTimer_noReactor(t *testing.T) {
	_, err := NewTimer(nil)
	assert.ErrorIs(t, err, host.ErrHostUnavailable)
}

func TestTimer_singleShotOnOwner(t *testing.T) {
	r := runReactor(t)
	fired := make(chan bool, 1)
	tm, err := SingleShot(r, 5*time.Millisecond, func() { fired <- r.IsOwnerThread() })
	require.NoError(t, err)
	assert.True(t, tm.Active())
	select {
	case owner := <-fired:
		assert.True(t, owner)
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	assert.Eventually(t, func() bool { return !tm.Active() }, time.Second, time.Millisecond)
}

func TestTimer_cancelBeforeFire(t *testing.T) {
	r := runReactor(t)
	var fired atomic.Bool
	tm, err := SingleShot(r, 20*time.Millisecond, func() { fired.Store(true) })
	require.NoError(t, err)
	tm.Cancel()
	assert.False(t, tm.Active())
	time.Sleep(50 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestTimer_repeatCancelInsideCallback(t *testing.T) {
	r := runReactor(t)
	tm, err := NewTimer(r)
	require.NoError(t, err)

	var count atomic.Int32
	done := make(chan struct{})
	require.NoError(t, tm.Start(time.Millisecond, func() {
		if count.Add(1) == 3 {
			tm.Cancel()
			close(done)
		}
	}, true))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not repeat")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(3), count.Load())
	assert.False(t, tm.Active())
}

func TestTimer_restartReplacesSchedule(t *testing.T) {
	r := runReactor(t)
	tm, err := NewTimer(r)
	require.NoError(t, err)

	var first, second atomic.Int32
	require.NoError(t, tm.Start(30*time.Millisecond, func() { first.Add(1) }, false))
	require.NoError(t, tm.Start(time.Millisecond, func() { second.Add(1) }, false))
	assert.Equal(t, time.Millisecond, tm.Interval())

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestTimer_idleReactor(t *testing.T) {
	r := chanhost.New(nil)
	defer r.Close()
	var fired bool
	_, err := SingleShot(r, 0, func() {
		fired = true
		r.Exit()
	})
	require.NoError(t, err)
	require.NoError(t, r.Exec())
	assert.True(t, fired)
}

func TestTimer_nilCallback(t *testing.T) {
	r := chanhost.New(nil)
	defer r.Close()
	tm, err := NewTimer(r)
	require.NoError(t, err)
	assert.ErrorIs(t, tm.Start(0, nil, false), ErrNilCallback)
}
