// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build darwin

package reactor

import (
	"golang.org/x/sys/unix"
)

// pollerSys is the kqueue backend.
type pollerSys struct {
	kq       int
	eventBuf [256]unix.Kevent_t
}

func (s *pollerSys) init() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)
	s.kq = kq
	return nil
}

func (s *pollerSys) close() error {
	return unix.Close(s.kq)
}

// update moves the kernel interest for fd from old to new.
func (s *pollerSys) update(fd int, old, new ioEvents) error {
	if removed := old &^ new; removed != 0 {
		if kevents := eventsToKevents(fd, removed, unix.EV_DELETE); len(kevents) > 0 {
			_, _ = unix.Kevent(s.kq, kevents, nil, nil) // Ignore errors on delete
		}
	}
	if added := new &^ old; added != 0 {
		if kevents := eventsToKevents(fd, added, unix.EV_ADD|unix.EV_ENABLE); len(kevents) > 0 {
			if _, err := unix.Kevent(s.kq, kevents, nil, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *pollerSys) wait(timeoutMs int, dst []readyEvent) ([]readyEvent, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64((timeoutMs % 1000) * 1000000),
		}
	}
	n, err := unix.Kevent(s.kq, nil, s.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, err
	}
	for i := 0; i < n; i++ {
		dst = append(dst, readyEvent{
			fd:     int(s.eventBuf[i].Ident),
			events: keventToEvents(&s.eventBuf[i]),
		})
	}
	return dst, nil
}

// eventsToKevents converts ioEvents to kqueue kevent structures.
func eventsToKevents(fd int, events ioEvents, flags uint16) []unix.Kevent_t {
	var kevents []unix.Kevent_t
	if events&eventRead != 0 {
		kevents = append(kevents, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_READ,
			Flags:  flags,
		})
	}
	if events&eventWrite != 0 {
		kevents = append(kevents, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_WRITE,
			Flags:  flags,
		})
	}
	return kevents
}

// keventToEvents converts a kqueue event to ioEvents. Only the filter's own
// direction is reported, with EOF folded into it.
func keventToEvents(kev *unix.Kevent_t) ioEvents {
	var events ioEvents
	switch kev.Filter {
	case unix.EVFILT_READ:
		events |= eventRead
	case unix.EVFILT_WRITE:
		events |= eventWrite
	}
	if kev.Flags&unix.EV_ERROR != 0 && events == 0 {
		events |= eventError
	}
	return events
}
