// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"fmt"
	"os"

	"github.com/joeycumines/go-hostloop"
	"github.com/joeycumines/go-hostloop/logging"
	"github.com/spf13/cobra"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	api      string
	logLevel string
	debug    bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	var restoreLogger func()

	cmd := &cobra.Command{
		Use:           "hostloop",
		Short:         "Host reactor event loop tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logLevel == "" {
				return nil
			}
			level, err := logging.ParseLevel(opts.logLevel)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", opts.logLevel, err)
			}
			restoreLogger = logging.SetDefault(logging.New(cmd.ErrOrStderr(), level))
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if restoreLogger != nil {
				restoreLogger()
				restoreLogger = nil
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.api, "api", "", "binding to use (default: $HOSTLOOP_API, then the first available)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", os.Getenv(logging.EnvLevel), "log level (err, warning, info, debug, trace)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable event loop debug mode")

	cmd.AddCommand(newBindingsCommand(opts))
	cmd.AddCommand(newSleepCommand(opts))
	addPlatformCommands(cmd, opts)

	return cmd
}

// newLoop creates an event loop per the global flags.
func (o *rootOptions) newLoop() (*hostloop.EventLoop, error) {
	var opts []hostloop.LoopOption
	if o.api != "" {
		opts = append(opts, hostloop.WithBinding(o.api))
	}
	if o.debug {
		opts = append(opts, hostloop.WithDebug(true))
	}
	return hostloop.New(opts...)
}
