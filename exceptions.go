// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package hostloop

import (
	"github.com/joeycumines/go-hostloop/futures"
	"github.com/joeycumines/go-hostloop/host"
)

// ExceptionContext describes an error that escaped a callback.
type ExceptionContext struct {
	Err     error
	Handle  *Handle
	Future  *futures.Future
	Fields  map[string]any
	Message string
}

// ExceptionHandler handles errors escaping callbacks run by the loop.
type ExceptionHandler func(l *EventLoop, ctx ExceptionContext)

// SetExceptionHandler sets the exception handler. Nil restores the
// default, see DefaultExceptionHandler.
func (l *EventLoop) SetExceptionHandler(h ExceptionHandler) {
	l.mu.Lock()
	l.exceptionHandler = h
	l.mu.Unlock()
}

// ExceptionHandler returns the custom exception handler, or nil.
func (l *EventLoop) ExceptionHandler() ExceptionHandler {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exceptionHandler
}

// CallExceptionHandler passes ctx to the exception handler. If the custom
// handler panics, both errors are passed to the default handler.
func (l *EventLoop) CallExceptionHandler(ctx ExceptionContext) {
	h := l.ExceptionHandler()
	if h == nil {
		l.DefaultExceptionHandler(ctx)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.DefaultExceptionHandler(ExceptionContext{
				Message: "unhandled error in exception handler",
				Err:     host.Recovered(r),
				Fields:  map[string]any{"context": ctx.Message},
			})
			l.DefaultExceptionHandler(ctx)
		}
	}()
	h(l, ctx)
}

// DefaultExceptionHandler logs ctx at error level. The loop keeps running.
func (l *EventLoop) DefaultExceptionHandler(ctx ExceptionContext) {
	msg := ctx.Message
	if msg == "" {
		msg = "unhandled exception in event loop"
	}
	b := l.logger.Err().Err(ctx.Err)
	if ctx.Handle != nil {
		b = b.Uint64("handle", ctx.Handle.seq)
	}
	if ctx.Future != nil {
		b = b.Str("future", ctx.Future.ID())
	}
	for k, v := range ctx.Fields {
		b = b.Any(k, v)
	}
	b.Log(msg)
}

// onUnhandled receives exceptions reported by the companion packages,
// while the loop holds the reactor claim.
func (l *EventLoop) onUnhandled(exc host.Exception) {
	l.CallExceptionHandler(ExceptionContext{
		Message: exc.Message,
		Err:     exc.Err,
		Fields:  exc.Fields,
	})
}

func (l *EventLoop) onDropped(dropped int, reason error) {
	if l.IsClosed() {
		l.logger.Debug().Err(reason).Int("dropped", dropped).Log("dispatched callbacks discarded on close")
		return
	}
	l.CallExceptionHandler(ExceptionContext{
		Message: "dispatched callbacks dropped",
		Err:     reason,
		Fields:  map[string]any{"dropped": dropped},
	})
}
