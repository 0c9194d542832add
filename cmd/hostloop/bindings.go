// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"fmt"

	"github.com/joeycumines/go-hostloop/host"
	"github.com/spf13/cobra"
)

func newBindingsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bindings",
		Short: "List the available host bindings, marking the one selected",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				b   host.Binding
				err error
			)
			if opts.api != "" {
				b, err = host.Bind(opts.api)
			} else {
				b, err = host.Select()
			}
			if err != nil {
				return err
			}
			for _, name := range host.Bindings() {
				marker := " "
				if name == b.Name() {
					marker = "*"
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
