// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package hostloop

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joeycumines/go-hostloop/futures"
	"github.com/joeycumines/go-hostloop/host"
	"github.com/joeycumines/go-hostloop/logging"
)

// EnvDebug enables debug mode, when set to a true value (see
// [strconv.ParseBool]).
const EnvDebug = "HOSTLOOP_DEBUG"

// defaultSlowCallback is the duration beyond which, in debug mode, a
// callback is logged as slow.
const defaultSlowCallback = 100 * time.Millisecond

// loopOptions holds configuration options for EventLoop creation.
type loopOptions struct {
	reactor          host.Reactor
	logger           *logging.Logger
	exceptionHandler ExceptionHandler
	executor         *futures.Executor
	binding          string
	slowCallback     time.Duration
	debug            bool
	debugSet         bool
}

// LoopOption configures an EventLoop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithReactor runs the loop on r, which the caller retains ownership of.
// Without it, a reactor is created from the selected binding, and closed
// with the loop.
func WithReactor(r host.Reactor) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if r == nil {
			return errors.New("hostloop: nil reactor")
		}
		opts.reactor = r
		return nil
	}}
}

// WithBinding binds the process to the named binding, failing with
// [host.ErrAlreadyBound] if another is already bound.
func WithBinding(name string) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.binding = name
		return nil
	}}
}

// WithLogger sets the loop's logger. Defaults to [logging.Default].
func WithLogger(logger *logging.Logger) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithDebug sets debug mode, overriding [EnvDebug].
func WithDebug(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.debug, opts.debugSet = enabled, true
		return nil
	}}
}

// WithSlowCallbackDuration sets the threshold for slow callback warnings,
// in debug mode.
func WithSlowCallbackDuration(d time.Duration) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if d <= 0 {
			return errors.New("hostloop: slow callback duration must be positive")
		}
		opts.slowCallback = d
		return nil
	}}
}

// WithExceptionHandler sets the initial exception handler.
func WithExceptionHandler(h ExceptionHandler) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.exceptionHandler = h
		return nil
	}}
}

// WithDefaultExecutor sets the executor used by RunInExecutor. Without
// it, one is created on first use, and shut down with the loop.
func WithDefaultExecutor(ex *futures.Executor) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.executor = ex
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		slowCallback: defaultSlowCallback,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	if !cfg.debugSet {
		cfg.debug = debugFromEnv()
	}
	return cfg, nil
}

func debugFromEnv() bool {
	v, ok := os.LookupEnv(EnvDebug)
	if !ok || v == "" {
		return false
	}
	enabled, err := strconv.ParseBool(v)
	return err == nil && enabled
}
