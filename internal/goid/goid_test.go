// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package goid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_stableWithinGoroutine(t *testing.T) {
	a := ID()
	b := ID()
	require.NotZero(t, a)
	assert.Equal(t, a, b)
}

func TestID_distinctAcrossGoroutines(t *testing.T) {
	main := ID()
	ch := make(chan uint64)
	go func() { ch <- ID() }()
	other := <-ch
	require.NotZero(t, other)
	assert.NotEqual(t, main, other)
}
