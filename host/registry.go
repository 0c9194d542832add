// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package host

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
)

// EnvAPI is the environment variable naming the binding to use.
const EnvAPI = "HOSTLOOP_API"

// preference is the order in which bindings are tried when EnvAPI is unset.
var preference = []string{"poll", "chan"}

var registry struct {
	mu       sync.Mutex
	bindings map[string]Binding
	selected Binding
	err      error
}

// Register makes a binding available for selection. It is intended to be
// called from the init function of binding packages, and panics on a
// duplicate name.
func Register(b Binding) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if registry.bindings == nil {
		registry.bindings = make(map[string]Binding)
	}
	name := b.Name()
	if _, ok := registry.bindings[name]; ok {
		panic(fmt.Sprintf("host: binding %q registered twice", name))
	}
	registry.bindings[name] = b
}

// Bindings returns the names of all registered bindings, sorted.
func Bindings() []string {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	names := make([]string, 0, len(registry.bindings))
	for name := range registry.bindings {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Lookup returns a registered binding by name, without selecting it.
func Lookup(name string) (Binding, bool) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	b, ok := registry.bindings[name]
	return b, ok
}

// Selected returns the binding the process is locked to, if any.
func Selected() (Binding, bool) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return registry.selected, registry.selected != nil
}

// Select returns the process binding, choosing it on first use from EnvAPI,
// or by preference when EnvAPI is unset. A failed selection is sticky.
func Select() (Binding, error) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if registry.selected != nil || registry.err != nil {
		return registry.selected, registry.err
	}
	name := strings.TrimSpace(os.Getenv(EnvAPI))
	if name != "" {
		b, ok := registry.bindings[strings.ToLower(name)]
		if !ok {
			registry.err = fmt.Errorf("%w: %s=%q", ErrHostUnavailable, EnvAPI, name)
			return nil, registry.err
		}
		registry.selected = b
		return b, nil
	}
	for _, name := range preference {
		if b, ok := registry.bindings[name]; ok {
			registry.selected = b
			return b, nil
		}
	}
	registry.err = ErrHostUnavailable
	return nil, registry.err
}

// Bind locks the process to the named binding. Binding the already selected
// binding again is a no-op, while switching fails with ErrAlreadyBound.
func Bind(name string) (Binding, error) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if registry.selected != nil {
		if registry.selected.Name() == name {
			return registry.selected, nil
		}
		return nil, fmt.Errorf("%w to %q", ErrAlreadyBound, registry.selected.Name())
	}
	b, ok := registry.bindings[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrHostUnavailable, name)
	}
	registry.selected = b
	registry.err = nil
	return b, nil
}
