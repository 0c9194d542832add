// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin

package reactor

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-hostloop/host"
)

// Initial size of the fd table, grown on demand.
const maxFDs = 65536

// maxFDLimit is the maximum fd value supported.
const maxFDLimit = 100000000

// ioEvents represents the type of I/O events to monitor.
type ioEvents uint32

const (
	eventRead ioEvents = 1 << iota
	eventWrite
	eventError
	eventHangup
)

// readyEvent is a readiness report, copied out of the kernel buffer so that
// dispatch may safely re-enter the poller.
type readyEvent struct {
	fd     int
	events ioEvents
}

// fdInfo stores the notifiers registered for a single fd.
type fdInfo struct {
	read    func()
	write   func()
	enabled ioEvents
}

// interest returns the events the kernel should report for the fd.
func (x *fdInfo) interest() ioEvents {
	var v ioEvents
	if x.read != nil {
		v |= eventRead
	}
	if x.write != nil {
		v |= eventWrite
	}
	return v & x.enabled
}

// fastPoller manages readiness notifiers on top of the platform pollerSys.
//
// The fd table is guarded by fdMu, which is held across the interest update
// syscall, but never while invoking callbacks.
type fastPoller struct {
	sys    pollerSys
	fds    []fdInfo
	fdMu   sync.RWMutex
	closed atomic.Bool
}

func dirEvent(dir host.Direction) (ioEvents, error) {
	switch dir {
	case host.Read:
		return eventRead, nil
	case host.Write:
		return eventWrite, nil
	default:
		return 0, host.ErrInvalidDirection
	}
}

// Init initializes the platform poller.
func (p *fastPoller) Init() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if err := p.sys.init(); err != nil {
		return err
	}
	p.fds = make([]fdInfo, maxFDs)
	return nil
}

// Close closes the platform poller. It is idempotent.
func (p *fastPoller) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.sys.close()
}

// SetHandler registers (or replaces) the notifier for (fd, dir), enabled.
func (p *fastPoller) SetHandler(fd int, dir host.Direction, cb func()) error {
	if cb == nil {
		return ErrNilCallback
	}
	bit, err := dirEvent(dir)
	if err != nil {
		return err
	}
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if fd < 0 || fd >= maxFDLimit {
		return ErrFDOutOfRange
	}

	p.fdMu.Lock()
	defer p.fdMu.Unlock()

	if fd >= len(p.fds) {
		newSize := fd*2 + 1
		if newSize > maxFDLimit {
			newSize = maxFDLimit + 1
		}
		newFds := make([]fdInfo, newSize)
		copy(newFds, p.fds)
		p.fds = newFds
	}

	prev := p.fds[fd]
	info := &p.fds[fd]
	if bit == eventRead {
		info.read = cb
	} else {
		info.write = cb
	}
	info.enabled |= bit
	if err := p.sys.update(fd, prev.interest(), info.interest()); err != nil {
		*info = prev // Rollback
		return err
	}
	return nil
}

// RemoveHandler unregisters the notifier for (fd, dir). Kernel errors are
// ignored, as the fd may already have been closed.
func (p *fastPoller) RemoveHandler(fd int, dir host.Direction) error {
	bit, err := dirEvent(dir)
	if err != nil {
		return err
	}
	p.fdMu.Lock()
	defer p.fdMu.Unlock()
	info, err := p.lookupLocked(fd, bit)
	if err != nil {
		return err
	}
	old := info.interest()
	if bit == eventRead {
		info.read = nil
	} else {
		info.write = nil
	}
	info.enabled &^= bit
	if !p.closed.Load() {
		_ = p.sys.update(fd, old, info.interest())
	}
	return nil
}

// SetEnabled toggles delivery for a registered notifier.
func (p *fastPoller) SetEnabled(fd int, dir host.Direction, enabled bool) error {
	bit, err := dirEvent(dir)
	if err != nil {
		return err
	}
	if p.closed.Load() {
		return ErrPollerClosed
	}
	p.fdMu.Lock()
	defer p.fdMu.Unlock()
	info, err := p.lookupLocked(fd, bit)
	if err != nil {
		return err
	}
	old := info.interest()
	if enabled {
		info.enabled |= bit
	} else {
		info.enabled &^= bit
	}
	return p.sys.update(fd, old, info.interest())
}

func (p *fastPoller) lookupLocked(fd int, bit ioEvents) (*fdInfo, error) {
	if fd < 0 || fd >= len(p.fds) {
		return nil, host.ErrNotifierNotFound
	}
	info := &p.fds[fd]
	if (bit == eventRead && info.read == nil) || (bit == eventWrite && info.write == nil) {
		return nil, host.ErrNotifierNotFound
	}
	return info, nil
}

// Poll waits up to timeoutMs (negative blocks indefinitely) for readiness,
// appending reports to dst.
func (p *fastPoller) Poll(timeoutMs int, dst []readyEvent) ([]readyEvent, error) {
	if p.closed.Load() {
		return dst, ErrPollerClosed
	}
	return p.sys.wait(timeoutMs, dst)
}

// Dispatch invokes the notifiers matching ev. Each notifier is looked up
// immediately before invocation, so a notifier removed or disabled by an
// earlier callback is not called.
func (p *fastPoller) Dispatch(ev readyEvent, invoke func(func())) {
	if ev.events&(eventRead|eventError|eventHangup) != 0 {
		if cb := p.handler(ev.fd, eventRead); cb != nil {
			invoke(cb)
		}
	}
	if ev.events&(eventWrite|eventError|eventHangup) != 0 {
		if cb := p.handler(ev.fd, eventWrite); cb != nil {
			invoke(cb)
		}
	}
}

func (p *fastPoller) handler(fd int, bit ioEvents) func() {
	p.fdMu.RLock()
	defer p.fdMu.RUnlock()
	if fd < 0 || fd >= len(p.fds) || p.fds[fd].enabled&bit == 0 {
		return nil
	}
	if bit == eventRead {
		return p.fds[fd].read
	}
	return p.fds[fd].write
}
