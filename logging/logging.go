// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package logging provides the default structured logger shared by the
// hostloop packages.
//
// All components accept a [logiface.Logger] via options, and fall back to
// [Default] when none is provided. The default logger writes JSON lines to
// stderr using stumpy, at the level given by the HOSTLOOP_LOG_LEVEL
// environment variable (default: info).
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// EnvLevel is the environment variable consulted by [LevelFromEnv].
const EnvLevel = "HOSTLOOP_LOG_LEVEL"

// Logger is the logger type used throughout the module.
type Logger = logiface.Logger[logiface.Event]

var (
	defaultOnce   sync.Once
	defaultLogger atomic.Pointer[Logger]
)

// New returns a logger writing JSON lines to w, at the given level.
func New(w io.Writer, level logiface.Level) *Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

// Default returns the process-wide default logger.
func Default() *Logger {
	defaultOnce.Do(func() {
		if defaultLogger.Load() == nil {
			defaultLogger.CompareAndSwap(nil, New(os.Stderr, LevelFromEnv()))
		}
	})
	return defaultLogger.Load()
}

// SetDefault replaces the process-wide default logger, returning a function
// that restores the previous one. A nil logger disables default logging.
func SetDefault(l *Logger) (restore func()) {
	Default()
	if l == nil {
		l = New(io.Discard, logiface.LevelDisabled)
	}
	old := defaultLogger.Swap(l)
	return func() { defaultLogger.Store(old) }
}

// OrDefault returns l, or [Default] if l is nil.
func OrDefault(l *Logger) *Logger {
	if l != nil {
		return l
	}
	return Default()
}

// Component returns a child of l (or the default logger) which tags every
// event with the given component name.
func Component(l *Logger, name string) *Logger {
	l = OrDefault(l)
	if c := l.Clone(); c != nil {
		return c.Str("component", name).Logger()
	}
	return l
}

// LevelFromEnv parses [EnvLevel], returning LevelInformational if it is
// unset or invalid.
func LevelFromEnv() logiface.Level {
	if v, ok := os.LookupEnv(EnvLevel); ok {
		if level, err := ParseLevel(v); err == nil {
			return level
		}
	}
	return logiface.LevelInformational
}

// ParseLevel converts a syslog-style keyword (as produced by
// [logiface.Level.String]) into a level. Common aliases are accepted.
func ParseLevel(s string) (logiface.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled", "off", "none":
		return logiface.LevelDisabled, nil
	case "emerg", "emergency", "panic":
		return logiface.LevelEmergency, nil
	case "alert":
		return logiface.LevelAlert, nil
	case "crit", "critical", "fatal":
		return logiface.LevelCritical, nil
	case "err", "error":
		return logiface.LevelError, nil
	case "warning", "warn":
		return logiface.LevelWarning, nil
	case "notice":
		return logiface.LevelNotice, nil
	case "info", "informational", "":
		return logiface.LevelInformational, nil
	case "debug":
		return logiface.LevelDebug, nil
	case "trace":
		return logiface.LevelTrace, nil
	}
	return logiface.LevelDisabled, fmt.Errorf("logging: unknown level %q", s)
}
