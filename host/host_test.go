// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package host

import (
	"bytes"
	"errors"
	"testing"

	"github.com/joeycumines/go-hostloop/logging"
	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBinding struct{ name string }

func (b fakeBinding) Name() string                 { return b.name }
func (b fakeBinding) NewReactor() (Reactor, error) { return nil, ErrUnsupported }
func (b fakeBinding) GlobalThreadPool() ThreadPool { return nil }

type fakeReactor struct {
	Reactor
	owner bool
}

func (r *fakeReactor) IsOwnerThread() bool { return r.owner }

// withRegistry isolates the package registry for the duration of a test.
func withRegistry(t *testing.T, names ...string) {
	t.Helper()
	registry.mu.Lock()
	oldBindings, oldSelected, oldErr := registry.bindings, registry.selected, registry.err
	registry.bindings, registry.selected, registry.err = nil, nil, nil
	registry.mu.Unlock()
	t.Cleanup(func() {
		registry.mu.Lock()
		registry.bindings, registry.selected, registry.err = oldBindings, oldSelected, oldErr
		registry.mu.Unlock()
	})
	for _, name := range names {
		Register(fakeBinding{name})
	}
}

func TestDirection_String(t *testing.T) {
	assert.Equal(t, "read", Read.String())
	assert.Equal(t, "write", Write.String())
	assert.Equal(t, "unknown", Direction(0).String())
}

func TestSelect_preference(t *testing.T) {
	withRegistry(t, "chan", "poll")
	t.Setenv(EnvAPI, "")

	b, err := Select()
	require.NoError(t, err)
	assert.Equal(t, "poll", b.Name())
	assert.Equal(t, []string{"chan", "poll"}, Bindings())

	sel, ok := Selected()
	require.True(t, ok)
	assert.Equal(t, "poll", sel.Name())
}

func TestSelect_env(t *testing.T) {
	withRegistry(t, "chan", "poll")
	t.Setenv(EnvAPI, "CHAN")

	b, err := Select()
	require.NoError(t, err)
	assert.Equal(t, "chan", b.Name())

	// read once: later changes are ignored
	t.Setenv(EnvAPI, "poll")
	b, err = Select()
	require.NoError(t, err)
	assert.Equal(t, "chan", b.Name())
}

func TestSelect_unavailable(t *testing.T) {
	withRegistry(t, "chan")
	t.Setenv(EnvAPI, "qt6")

	_, err := Select()
	assert.ErrorIs(t, err, ErrHostUnavailable)
	_, err = Select()
	assert.ErrorIs(t, err, ErrHostUnavailable)
}

func TestSelect_noBindings(t *testing.T) {
	withRegistry(t)
	t.Setenv(EnvAPI, "")
	_, err := Select()
	assert.ErrorIs(t, err, ErrHostUnavailable)
}

func TestBind_alreadyBound(t *testing.T) {
	withRegistry(t, "chan", "poll")

	b, err := Bind("chan")
	require.NoError(t, err)
	assert.Equal(t, "chan", b.Name())

	_, err = Bind("chan")
	assert.NoError(t, err)

	_, err = Bind("poll")
	assert.ErrorIs(t, err, ErrAlreadyBound)

	b, err = Select()
	require.NoError(t, err)
	assert.Equal(t, "chan", b.Name())
}

func TestBind_unknown(t *testing.T) {
	withRegistry(t, "chan")
	_, err := Bind("poll")
	assert.ErrorIs(t, err, ErrHostUnavailable)
}

func TestRegister_duplicatePanics(t *testing.T) {
	withRegistry(t, "chan")
	assert.Panics(t, func() { Register(fakeBinding{"chan"}) })
}

func TestClaim(t *testing.T) {
	a, b := &fakeReactor{owner: true}, &fakeReactor{}

	require.NoError(t, Claim(a))
	defer Release(a)
	assert.Same(t, a, Current())
	assert.True(t, OnOwnerThread())

	assert.ErrorIs(t, Claim(b), ErrAlreadyBound)

	Release(b) // not the holder
	assert.Same(t, a, Current())

	Release(a)
	assert.Nil(t, Current())
	assert.False(t, OnOwnerThread())

	require.NoError(t, Claim(b))
	Release(b)
}

func TestReportUnhandled_handler(t *testing.T) {
	var got []Exception
	restore := SetUnhandledHandler(func(exc Exception) { got = append(got, exc) })
	defer restore()

	err := errors.New("boom")
	ReportUnhandled(Exception{Message: "m", Err: err})
	require.Len(t, got, 1)
	assert.Equal(t, "m", got[0].Message)
	assert.ErrorIs(t, got[0].Err, err)
}

func TestReportUnhandled_fallsBackToLog(t *testing.T) {
	var buf bytes.Buffer
	defer logging.SetDefault(logging.New(&buf, logiface.LevelInformational))()

	ReportUnhandled(Exception{Message: "no handler", Err: errors.New("e1"), Fields: map[string]any{"fd": 3}})
	assert.Contains(t, buf.String(), "no handler")
	assert.Contains(t, buf.String(), "e1")

	restore := SetUnhandledHandler(func(Exception) { panic("handler broke") })
	ReportUnhandled(Exception{Message: "second"})
	restore()
	assert.Contains(t, buf.String(), "handler broke")
	assert.Contains(t, buf.String(), "second")
}

func TestPanicError(t *testing.T) {
	base := errors.New("inner")
	err := Recovered(base)
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "inner")

	var pe PanicError
	require.ErrorAs(t, Recovered("str"), &pe)
	assert.Equal(t, "str", pe.Value)
	assert.NotEmpty(t, pe.Stack)
	assert.Nil(t, pe.Unwrap())
}
