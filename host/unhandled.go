// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package host

import (
	"runtime/debug"
	"sync"

	"github.com/joeycumines/go-hostloop/logging"
)

// Exception describes an error that escaped user code, such as a panicking
// callback, or a thread target that failed.
type Exception struct {
	Fields  map[string]any
	Err     error
	Message string
}

var unhandled struct {
	mu      sync.RWMutex
	handler func(Exception)
}

// SetUnhandledHandler installs the process-wide handler for exceptions that
// no more specific hook consumed. It returns a function restoring the
// previous handler.
func SetUnhandledHandler(fn func(Exception)) (restore func()) {
	unhandled.mu.Lock()
	old := unhandled.handler
	unhandled.handler = fn
	unhandled.mu.Unlock()
	return func() {
		unhandled.mu.Lock()
		unhandled.handler = old
		unhandled.mu.Unlock()
	}
}

// ReportUnhandled routes exc to the installed handler, or logs it at error
// level if there is none. It never panics.
func ReportUnhandled(exc Exception) {
	unhandled.mu.RLock()
	fn := unhandled.handler
	unhandled.mu.RUnlock()
	if fn != nil {
		if safeCall(fn, exc) {
			return
		}
	}
	LogException(nil, exc)
}

// LogException writes exc to logger (or the default logger) at error level.
func LogException(logger *logging.Logger, exc Exception) {
	msg := exc.Message
	if msg == "" {
		msg = "unhandled exception"
	}
	b := logging.OrDefault(logger).Err().Err(exc.Err)
	for k, v := range exc.Fields {
		b = b.Any(k, v)
	}
	b.Log(msg)
}

// Recovered converts a recovered panic value to an error, capturing the
// stack of the calling goroutine.
func Recovered(r any) error {
	return PanicError{Value: r, Stack: debug.Stack()}
}

func safeCall(fn func(Exception), exc Exception) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			LogException(nil, Exception{
				Message: "unhandled exception handler panicked",
				Err:     Recovered(r),
			})
			ok = false
		}
	}()
	fn(exc)
	return true
}
