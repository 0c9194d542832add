// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package hostloop

import (
	"github.com/joeycumines/go-hostloop/futures"
)

// RunInExecutor runs fn on ex, or the default executor if ex is nil,
// returning a future whose callbacks run on the loop.
func (l *EventLoop) RunInExecutor(ex *futures.Executor, fn func() (any, error)) (*futures.Future, error) {
	if l.IsClosed() {
		return nil, ErrLoopClosed
	}
	if ex == nil {
		var err error
		if ex, err = l.defaultExecutor(); err != nil {
			return nil, err
		}
	}
	return ex.Submit(fn)
}

// SetDefaultExecutor replaces the executor used by RunInExecutor. The loop
// does not shut down an executor set this way.
func (l *EventLoop) SetDefaultExecutor(ex *futures.Executor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.executor, l.ownExecutor = ex, false
}

func (l *EventLoop) defaultExecutor() (*futures.Executor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.executor != nil {
		return l.executor, nil
	}
	ex, err := futures.NewExecutor(
		futures.WithDispatcher(l.dispatcher),
		futures.WithLogger(l.base),
	)
	if err != nil {
		return nil, err
	}
	l.executor, l.ownExecutor = ex, true
	return ex, nil
}
