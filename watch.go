// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package hostloop

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/joeycumines/go-hostloop/host"
)

type watchKey struct {
	fd  int
	dir host.Direction
}

// watch is an I/O watch. A replaced or removed watch is stale, and its
// notifications are ignored.
type watch struct {
	fn     func()
	handle *Handle
	key    watchKey
}

// AddReader calls fn on the loop whenever fd is readable, replacing any
// existing reader for fd.
func (l *EventLoop) AddReader(fd int, fn func()) error {
	return l.addWatch(watchKey{fd: fd, dir: host.Read}, fn)
}

// AddWriter calls fn on the loop whenever fd is writable, replacing any
// existing writer for fd.
func (l *EventLoop) AddWriter(fd int, fn func()) error {
	return l.addWatch(watchKey{fd: fd, dir: host.Write}, fn)
}

// RemoveReader removes the reader for fd, reporting whether one existed.
func (l *EventLoop) RemoveReader(fd int) (bool, error) {
	return l.Unwatch(fd, host.Read)
}

// RemoveWriter removes the writer for fd, reporting whether one existed.
func (l *EventLoop) RemoveWriter(fd int) (bool, error) {
	return l.Unwatch(fd, host.Write)
}

func (l *EventLoop) addWatch(key watchKey, fn func()) error {
	if fn == nil {
		return ErrNilCallback
	}
	if key.fd < 0 {
		return fmt.Errorf("%w: negative fd %d", ErrInvalidFileObject, key.fd)
	}
	w := &watch{key: key, fn: fn}

	l.mu.Lock()
	if l.watches == nil {
		l.mu.Unlock()
		return ErrLoopClosed
	}
	var pending *Handle
	if old := l.watches[key]; old != nil {
		pending = old.handle
	}
	l.watches[key] = w
	l.mu.Unlock()

	if pending != nil {
		pending.Cancel()
	}

	err := l.onOwner(func() error {
		if !l.isCurrent(w) {
			return nil
		}
		return l.reactor.AddNotifier(key.fd, key.dir, func() { l.onReady(w) })
	})
	if err != nil {
		l.mu.Lock()
		if l.watches[key] == w {
			delete(l.watches, key)
		}
		l.mu.Unlock()
		return fmt.Errorf("hostloop: add %s watch for fd %d: %w", key.dir, key.fd, err)
	}
	return nil
}

// Unwatch removes the watch for (fd, dir), reporting whether one existed.
// It is safe to call from within the watch's own callback.
func (l *EventLoop) Unwatch(fd int, dir host.Direction) (bool, error) {
	key := watchKey{fd: fd, dir: dir}
	l.mu.Lock()
	w := l.watches[key]
	if w == nil {
		closed := l.watches == nil
		l.mu.Unlock()
		if closed {
			return false, ErrLoopClosed
		}
		return false, nil
	}
	delete(l.watches, key)
	pending := w.handle
	l.mu.Unlock()

	if pending != nil {
		pending.Cancel()
	}

	err := l.onOwner(func() error {
		l.mu.Lock()
		readded := l.watches[key] != nil
		l.mu.Unlock()
		if readded {
			return nil
		}
		if err := l.reactor.RemoveNotifier(fd, dir); err != nil && !errors.Is(err, host.ErrNotifierNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return true, fmt.Errorf("hostloop: remove %s watch for fd %d: %w", dir, fd, err)
	}
	return true, nil
}

func (l *EventLoop) isCurrent(w *watch) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.watches[w.key] == w
}

// onReady runs on the owner, when the notifier fires. The notifier stays
// disabled until the callback has run, so a level-triggered fd does not
// flood the loop.
func (l *EventLoop) onReady(w *watch) {
	if !l.isCurrent(w) {
		return
	}
	if err := l.reactor.SetNotifierEnabled(w.key.fd, w.key.dir, false); err != nil {
		l.logger.Warning().Err(err).Int("fd", w.key.fd).Log("failed to disable notifier")
	}
	h, err := l.CallSoon(func() { l.runWatch(w) })
	if err != nil {
		l.logger.Warning().Err(err).Int("fd", w.key.fd).Log("failed to schedule watch callback")
		return
	}
	l.mu.Lock()
	w.handle = h
	l.mu.Unlock()
}

func (l *EventLoop) runWatch(w *watch) {
	defer func() {
		if l.isCurrent(w) {
			if err := l.reactor.SetNotifierEnabled(w.key.fd, w.key.dir, true); err != nil {
				l.logger.Warning().Err(err).Int("fd", w.key.fd).Log("failed to re-enable notifier")
			}
		}
	}()
	w.fn()
}

// onOwner runs fn on the reactor's owner goroutine. If the reactor is idle
// fn runs directly. Otherwise it is dispatched, and its error reported to
// the exception handler.
func (l *EventLoop) onOwner(fn func() error) error {
	if l.reactor.IsOwnerThread() || !l.reactor.Executing() {
		err := fn()
		if !errors.Is(err, host.ErrWrongThread) {
			return err
		}
	}
	return l.dispatcher.Post(func() {
		if err := fn(); err != nil {
			l.CallExceptionHandler(ExceptionContext{
				Message: "failed to update watch",
				Err:     err,
			})
		}
	})
}

// FileDescriptor returns the file descriptor of v, which may be an int, a
// uintptr, a [syscall.Conn] (such as *os.File or *net.TCPConn), or a value
// with an Fd method.
func FileDescriptor(v any) (int, error) {
	var fd int
	switch x := v.(type) {
	case int:
		fd = x
	case uintptr:
		fd = int(x)
	case syscall.Conn:
		// Control leaves the descriptor's blocking mode untouched, unlike
		// (*os.File).Fd
		rc, err := x.SyscallConn()
		if err != nil {
			return -1, fmt.Errorf("%w: %w", ErrInvalidFileObject, err)
		}
		if err := rc.Control(func(u uintptr) { fd = int(u) }); err != nil {
			return -1, fmt.Errorf("%w: %w", ErrInvalidFileObject, err)
		}
	case interface{ Fd() uintptr }:
		fd = int(x.Fd())
	default:
		return -1, fmt.Errorf("%w: %T", ErrInvalidFileObject, v)
	}
	if fd < 0 {
		return -1, fmt.Errorf("%w: negative fd %d", ErrInvalidFileObject, fd)
	}
	return fd, nil
}
