// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin

package reactor

import (
	"github.com/joeycumines/go-hostloop/host"
	"github.com/joeycumines/go-hostloop/threadpool"
)

type binding struct{}

func init() {
	host.Register(binding{})
}

func (binding) Name() string { return Name }

func (binding) NewReactor() (host.Reactor, error) { return New() }

func (binding) GlobalThreadPool() host.ThreadPool { return threadpool.Global() }
