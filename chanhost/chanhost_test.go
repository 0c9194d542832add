// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package chanhost

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/go-hostloop/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactor_execPostExit(t *testing.T) {
	r := New(nil)
	defer r.Close()

	done := make(chan error, 1)
	go func() { done <- r.Exec() }()
	require.Eventually(t, r.Executing, time.Second, time.Millisecond)

	ran := make(chan bool, 1)
	require.NoError(t, r.Post(func() { ran <- r.IsOwnerThread() }))
	select {
	case owner := <-ran:
		assert.True(t, owner)
	case <-time.After(time.Second):
		t.Fatal("post did not run")
	}

	_, err := r.StartTimer(0, func() {})
	assert.ErrorIs(t, err, host.ErrWrongThread)
	assert.ErrorIs(t, r.Exec(), host.ErrAlreadyExecuting)
	assert.ErrorIs(t, r.Close(), host.ErrReactorBusy)

	r.Exit()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("exec did not return")
	}
}

func TestReactor_timersAndKill(t *testing.T) {
	r := New(nil)
	defer r.Close()

	var fired []int
	for i, d := range []time.Duration{5, 0, 0} {
		_, err := r.StartTimer(d*time.Millisecond, func() { fired = append(fired, i) })
		require.NoError(t, err)
	}
	id, err := r.StartTimer(0, func() { fired = append(fired, -1) })
	require.NoError(t, err)
	require.NoError(t, r.KillTimer(id))

	deadline := time.Now().Add(time.Second)
	for len(fired) < 3 && time.Now().Before(deadline) {
		require.NoError(t, r.ProcessEvents(20*time.Millisecond))
	}
	assert.Equal(t, []int{1, 2, 0}, fired)
}

func TestReactor_notifiersUnsupported(t *testing.T) {
	r := New(nil)
	defer r.Close()
	assert.ErrorIs(t, r.AddNotifier(0, host.Read, func() {}), host.ErrUnsupported)
	assert.ErrorIs(t, r.SetNotifierEnabled(0, host.Read, true), host.ErrUnsupported)
	assert.ErrorIs(t, r.RemoveNotifier(0, host.Read), host.ErrUnsupported)
}

func TestReactor_close(t *testing.T) {
	r := New(nil)
	var ran atomic.Bool
	require.NoError(t, r.Post(func() { ran.Store(true) }))
	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.Close(), host.ErrReactorClosed)
	assert.ErrorIs(t, r.Post(func() {}), host.ErrReactorClosed)
	assert.ErrorIs(t, r.ProcessEvents(0), host.ErrReactorClosed)
	assert.False(t, ran.Load())
}

func TestBindingRegistered(t *testing.T) {
	b, ok := host.Lookup(Name)
	require.True(t, ok)
	assert.Equal(t, Name, b.Name())
	hr, err := b.NewReactor()
	require.NoError(t, err)
	assert.Equal(t, Name, hr.Binding())
	require.NoError(t, hr.Close())
}
