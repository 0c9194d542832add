// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"errors"
	"time"

	"github.com/joeycumines/go-hostloop/logging"
)

// defaultMaxPollTimeout bounds a single blocking poll within Exec.
const defaultMaxPollTimeout = 10 * time.Second

// reactorOptions holds configuration options for Reactor creation.
type reactorOptions struct {
	logger         *logging.Logger
	maxPollTimeout time.Duration
}

// Option configures a Reactor instance.
type Option interface {
	applyReactor(*reactorOptions) error
}

// reactorOptionImpl implements Option.
type reactorOptionImpl struct {
	applyReactorFunc func(*reactorOptions) error
}

func (o *reactorOptionImpl) applyReactor(opts *reactorOptions) error {
	return o.applyReactorFunc(opts)
}

// WithLogger sets the logger used by the reactor. Defaults to
// [logging.Default].
func WithLogger(logger *logging.Logger) Option {
	return &reactorOptionImpl{func(opts *reactorOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMaxPollTimeout caps how long Exec blocks in a single poll.
func WithMaxPollTimeout(d time.Duration) Option {
	return &reactorOptionImpl{func(opts *reactorOptions) error {
		if d <= 0 {
			return errors.New("reactor: max poll timeout must be positive")
		}
		opts.maxPollTimeout = d
		return nil
	}}
}

// resolveReactorOptions applies Option instances to reactorOptions.
func resolveReactorOptions(opts []Option) (*reactorOptions, error) {
	cfg := &reactorOptions{
		maxPollTimeout: defaultMaxPollTimeout,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyReactor(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
