// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package futures

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/go-hostloop/chanhost"
	"github.com/joeycumines/go-hostloop/dispatch"
	"github.com/joeycumines/go-hostloop/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture_result(t *testing.T) {
	f := New()
	_, err := uuid.Parse(f.ID())
	require.NoError(t, err)
	assert.Equal(t, Pending, f.State())
	assert.False(t, f.Done())

	_, err = f.Result(5 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	require.NoError(t, f.SetResult(42))
	assert.True(t, f.Done())
	assert.Equal(t, Finished, f.State())
	v, err := f.Result(0)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	exc, err := f.Exception(0)
	require.NoError(t, err)
	assert.NoError(t, exc)

	assert.ErrorIs(t, f.SetResult(1), ErrAlreadyDone)
	assert.ErrorIs(t, f.SetException(errors.New("late")), ErrAlreadyDone)
	assert.False(t, f.Cancel())
	assert.Contains(t, f.String(), "finished returned 42")
}

func TestFuture_exception(t *testing.T) {
	boom := errors.New("boom")
	f := New()
	assert.Error(t, f.SetException(nil))
	go func() { _ = f.SetException(boom) }()
	_, err := f.Result(time.Second)
	assert.ErrorIs(t, err, boom)
	exc, err := f.Exception(0)
	require.NoError(t, err)
	assert.ErrorIs(t, exc, boom)
	assert.Contains(t, f.String(), "raised boom")
}

func TestFuture_cancel(t *testing.T) {
	f := New()
	assert.True(t, f.Cancel())
	assert.True(t, f.Cancel())
	assert.True(t, f.Cancelled())
	assert.True(t, f.Done())
	_, err := f.Result(0)
	assert.ErrorIs(t, err, ErrCancelled)
	_, err = f.Exception(0)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, f.SetResult(1), ErrAlreadyDone)

	ok, err := f.SetRunningOrNotifyCancel()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, strings.HasSuffix(f.String(), "cancelled>"))
}

func TestFuture_setRunning(t *testing.T) {
	f := New()
	ok, err := f.SetRunningOrNotifyCancel()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, f.Running())
	assert.False(t, f.Cancel())

	_, err = f.SetRunningOrNotifyCancel()
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestFuture_callbacksInlineWithoutDispatcher(t *testing.T) {
	f := New()
	var order []int
	f.AddDoneCallback(func(*Future) { order = append(order, 1) })
	f.AddDoneCallback(func(*Future) { order = append(order, 2) })
	f.AddDoneCallback(nil)
	require.NoError(t, f.SetResult(nil))
	f.AddDoneCallback(func(got *Future) {
		assert.Same(t, f, got)
		order = append(order, 3)
	})
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestFuture_callbacksOnReactor(t *testing.T) {
	r := chanhost.New(nil)
	defer r.Close()
	d, err := dispatch.New(r)
	require.NoError(t, err)
	defer d.Close()

	f := New(WithDispatcher(d))
	var (
		mu     sync.Mutex
		order  []int
		owners []bool
	)
	for i := 0; i < 3; i++ {
		f.AddDoneCallback(func(*Future) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, i)
			owners = append(owners, r.IsOwnerThread())
		})
	}

	go func() { _ = f.SetResult("ok") }()
	require.True(t, f.Wait(time.Second))
	require.Eventually(t, func() bool { return d.Pending() == 1 }, time.Second, time.Millisecond)

	// callbacks are delivered only once the reactor runs
	require.NoError(t, r.Post(r.Exit))
	require.NoError(t, r.Exec())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2}, order)
	assert.Equal(t, []bool{true, true, true}, owners)
}

func TestFuture_lateCallbackQueuesBehindDelivery(t *testing.T) {
	r := chanhost.New(nil)
	defer r.Close()
	d, err := dispatch.New(r)
	require.NoError(t, err)
	defer d.Close()

	f := New(WithDispatcher(d))
	var order []string
	require.NoError(t, d.Post(func() {
		defer r.Exit()
		f.AddDoneCallback(func(*Future) { order = append(order, "a") })

		// resolved off the reactor, so "a" is posted rather than run
		resolved := make(chan error, 1)
		go func() { resolved <- f.SetResult(nil) }()
		require.NoError(t, <-resolved)
		require.Equal(t, 1, d.Pending())

		f.AddDoneCallback(func(*Future) { order = append(order, "b") })
		assert.Empty(t, order)

		require.NoError(t, r.ProcessEvents(0))
		assert.Equal(t, []string{"a", "b"}, order)

		// nothing queued, so later registrations run inline
		f.AddDoneCallback(func(*Future) { order = append(order, "c") })
		assert.Equal(t, []string{"a", "b", "c"}, order)
	}))
	require.NoError(t, r.Exec())
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestFuture_lateCallbackAfterDispatcherClosed(t *testing.T) {
	r := chanhost.New(nil)
	defer r.Close()
	d, err := dispatch.New(r)
	require.NoError(t, err)

	f := New(WithDispatcher(d))
	var order []string
	f.AddDoneCallback(func(*Future) { order = append(order, "a") })
	require.NoError(t, f.SetResult(nil))
	require.Equal(t, 1, d.Pending())

	// the queued delivery is dropped, and must not strand later callbacks
	d.Close()
	f.AddDoneCallback(func(*Future) { order = append(order, "b") })
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestFuture_callbackPanicReported(t *testing.T) {
	got := make(chan host.Exception, 1)
	defer host.SetUnhandledHandler(func(exc host.Exception) { got <- exc })()

	f := New()
	var after bool
	f.AddDoneCallback(func(*Future) { panic("cb") })
	f.AddDoneCallback(func(*Future) { after = true })
	require.NoError(t, f.SetResult(nil))

	exc := <-got
	assert.Equal(t, f.ID(), exc.Fields["future"])
	assert.True(t, after)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "cancelled", Cancelled.String())
	assert.Equal(t, "finished", Finished.String())
	assert.Equal(t, "State(9)", State(9).String())
}
