// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin

package hostloop

import (
	"os"
	"testing"
	"time"

	"github.com/joeycumines/go-hostloop/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newPollLoop(t *testing.T) (*EventLoop, [2]int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	r, err := reactor.New()
	require.NoError(t, err)
	l, err := New(WithReactor(r))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, l.Close())
		assert.NoError(t, r.Close())
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return l, [2]int{fds[0], fds[1]}
}

func runUntil(t *testing.T, l *EventLoop, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		require.True(t, time.Now().Before(deadline), "condition not met")
		require.NoError(t, l.RunOnce(10*time.Millisecond))
	}
}

func TestEventLoop_readerRemovedInsideCallback(t *testing.T) {
	l, fds := newPollLoop(t)

	var (
		got   []byte
		reads int
	)
	require.NoError(t, l.AddReader(fds[0], func() {
		reads++
		buf := make([]byte, 64)
		n, err := unix.Read(fds[0], buf)
		assert.NoError(t, err)
		got = append(got, buf[:n]...)
		ok, err := l.RemoveReader(fds[0])
		assert.NoError(t, err)
		assert.True(t, ok)
	}))

	_, err := unix.Write(fds[1], []byte("hello"))
	require.NoError(t, err)
	runUntil(t, l, func() bool { return reads != 0 })
	assert.Equal(t, "hello", string(got))

	_, err = unix.Write(fds[1], []byte("again"))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, l.RunOnce(5*time.Millisecond))
	}
	assert.Equal(t, 1, reads)

	ok, err := l.RemoveReader(fds[0])
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEventLoop_levelTriggeredReader(t *testing.T) {
	l, fds := newPollLoop(t)

	var calls int
	require.NoError(t, l.AddReader(fds[0], func() { calls++ }))
	_, err := unix.Write(fds[1], []byte("x"))
	require.NoError(t, err)

	// the data is never read, so the reader keeps firing
	runUntil(t, l, func() bool { return calls >= 3 })

	ok, err := l.RemoveReader(fds[0])
	require.NoError(t, err)
	assert.True(t, ok)
	before := calls
	for i := 0; i < 3; i++ {
		require.NoError(t, l.RunOnce(5*time.Millisecond))
	}
	assert.Equal(t, before, calls)
}

func TestEventLoop_replaceReader(t *testing.T) {
	l, fds := newPollLoop(t)

	var first, second int
	require.NoError(t, l.AddReader(fds[0], func() { first++ }))
	require.NoError(t, l.AddReader(fds[0], func() {
		second++
		_, _ = l.RemoveReader(fds[0])
	}))
	_, err := unix.Write(fds[1], []byte("x"))
	require.NoError(t, err)
	runUntil(t, l, func() bool { return second != 0 })
	assert.Zero(t, first)
	assert.Equal(t, 1, second)
}

func TestEventLoop_writer(t *testing.T) {
	l, fds := newPollLoop(t)

	var wrote bool
	require.NoError(t, l.AddWriter(fds[1], func() {
		_, err := unix.Write(fds[1], []byte("ping"))
		assert.NoError(t, err)
		wrote = true
		ok, err := l.RemoveWriter(fds[1])
		assert.NoError(t, err)
		assert.True(t, ok)
	}))
	var got string
	require.NoError(t, l.AddReader(fds[0], func() {
		buf := make([]byte, 16)
		n, _ := unix.Read(fds[0], buf)
		got += string(buf[:n])
	}))
	runUntil(t, l, func() bool { return got == "ping" })
	assert.True(t, wrote)
}

func TestEventLoop_watchFromOtherGoroutineWhileRunning(t *testing.T) {
	l, fds := newPollLoop(t)

	done := make(chan error, 1)
	go func() { done <- l.RunForever() }()
	require.Eventually(t, l.IsRunning, time.Second, time.Millisecond)
	require.Eventually(t, l.Reactor().Executing, time.Second, time.Millisecond)

	fired := make(chan struct{})
	require.NoError(t, l.AddReader(fds[0], func() {
		buf := make([]byte, 8)
		_, _ = unix.Read(fds[0], buf)
		_, _ = l.RemoveReader(fds[0])
		close(fired)
		l.Stop()
	}))
	_, err := unix.Write(fds[1], []byte("x"))
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not fire")
	}
	require.NoError(t, <-done)
}

func TestFileDescriptor_keepsFileNonBlocking(t *testing.T) {
	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	defer pr.Close()
	defer pw.Close()

	fd, err := FileDescriptor(pr)
	require.NoError(t, err)
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	require.NoError(t, err)
	assert.NotZero(t, flags&unix.O_NONBLOCK)
}
