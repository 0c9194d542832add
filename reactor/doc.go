// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package reactor implements the "poll" host binding: a single-threaded
// reactor built on epoll (Linux) or kqueue (Darwin).
//
// # Iteration
//
// Each iteration (see [Reactor.ProcessEvents]) performs, in order:
//   - a poll for I/O readiness, blocking only if no posted callbacks are
//     pending and no timer is due, and never beyond the next timer deadline
//   - dispatch of readiness notifiers
//   - expired timers, in deadline order
//   - posted callbacks queued before this step began
//
// Posted callbacks wake a blocked poll using an eventfd (Linux) or a
// self-pipe (Darwin).
//
// # Notifiers
//
// Notifiers are level triggered, one per (fd, direction). Each may be
// disabled without being unregistered, which is how the event loop adapter
// suppresses repeated readiness while a callback is pending.
//
// Importing this package registers the binding with the host package, on
// supported platforms.
package reactor

// Name is the name the binding registers under.
const Name = "poll"
