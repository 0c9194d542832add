// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package hostloop implements an asynchronous event loop on top of a host
// reactor: a single-threaded, cooperative dispatch loop that owns timers,
// readiness notification, and posted work.
//
// An [EventLoop] multiplexes every scheduled callback onto one host timer,
// and every I/O watch onto the reactor's notifiers. Callbacks always run on
// the reactor's owner goroutine, in (deadline, scheduling order) order.
//
// The companion packages bridge conventional blocking code onto the same
// reactor: [github.com/joeycumines/go-hostloop/locks] (locks and
// conditions that keep the reactor responsive while blocking),
// [github.com/joeycumines/go-hostloop/thread] (threads and timers), and
// [github.com/joeycumines/go-hostloop/futures] (futures and executors).
//
// # Bindings
//
// The reactor implementation is selected once per process, from the
// HOSTLOOP_API environment variable, or the first available of "poll"
// (epoll/kqueue) and "chan" (portable). Importing this package registers
// both. See [host.Select].
package hostloop
