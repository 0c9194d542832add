// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build !(linux || darwin)

package main

import (
	"github.com/spf13/cobra"
)

func addPlatformCommands(*cobra.Command, *rootOptions) {}
