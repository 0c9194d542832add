// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-hostloop/thread"
	"github.com/spf13/cobra"
)

func newSleepCommand(opts *rootOptions) *cobra.Command {
	var (
		duration time.Duration
		ticks    int
	)
	cmd := &cobra.Command{
		Use:   "sleep",
		Short: "Run the event loop until a timer fires",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if duration < 0 {
				return fmt.Errorf("negative duration: %s", duration)
			}
			l, err := opts.newLoop()
			if err != nil {
				return err
			}
			defer l.Close()

			out := cmd.OutOrStdout()
			start := l.Time()

			if ticks > 0 {
				timer, err := thread.NewTimer(l.Reactor())
				if err != nil {
					return err
				}
				interval := duration / time.Duration(ticks+1)
				n := 0
				if err := timer.Start(interval, func() {
					n++
					fmt.Fprintf(out, "tick %d\n", n)
					if n == ticks {
						timer.Cancel()
					}
				}, true); err != nil {
					return err
				}
				defer timer.Cancel()
			}

			if _, err := l.CallLater(duration, func() {
				fmt.Fprintf(out, "slept %s\n", l.Time().Sub(start).Round(time.Millisecond))
				l.Stop()
			}); err != nil {
				return err
			}
			return l.RunForever()
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", time.Second, "how long to sleep")
	cmd.Flags().IntVar(&ticks, "ticks", 0, "number of evenly spaced ticks to print while sleeping")
	return cmd
}
