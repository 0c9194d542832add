// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// pollerSys is the epoll backend.
type pollerSys struct {
	epfd     int
	eventBuf [256]unix.EpollEvent
}

func (s *pollerSys) init() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	s.epfd = epfd
	return nil
}

func (s *pollerSys) close() error {
	return unix.Close(s.epfd)
}

// update moves the kernel interest for fd from old to new.
func (s *pollerSys) update(fd int, old, new ioEvents) error {
	switch {
	case old == new:
		return nil
	case new == 0:
		return unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	}
	ev := &unix.EpollEvent{
		Events: eventsToEpoll(new),
		Fd:     int32(fd),
	}
	if old == 0 {
		return unix.EpollCtl(s.epfd, unix.EPOLL_CTL_ADD, fd, ev)
	}
	return unix.EpollCtl(s.epfd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (s *pollerSys) wait(timeoutMs int, dst []readyEvent) ([]readyEvent, error) {
	n, err := unix.EpollWait(s.epfd, s.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, err
	}
	for i := 0; i < n; i++ {
		dst = append(dst, readyEvent{
			fd:     int(s.eventBuf[i].Fd),
			events: epollToEvents(s.eventBuf[i].Events),
		})
	}
	return dst, nil
}

// eventsToEpoll converts ioEvents to epoll event flags.
func eventsToEpoll(events ioEvents) uint32 {
	var epollEvents uint32
	if events&eventRead != 0 {
		epollEvents |= unix.EPOLLIN
	}
	if events&eventWrite != 0 {
		epollEvents |= unix.EPOLLOUT
	}
	return epollEvents
}

// epollToEvents converts epoll event flags to ioEvents.
func epollToEvents(epollEvents uint32) ioEvents {
	var events ioEvents
	if epollEvents&unix.EPOLLIN != 0 {
		events |= eventRead
	}
	if epollEvents&unix.EPOLLOUT != 0 {
		events |= eventWrite
	}
	if epollEvents&unix.EPOLLERR != 0 {
		events |= eventError
	}
	if epollEvents&unix.EPOLLHUP != 0 {
		events |= eventHangup
	}
	return events
}
