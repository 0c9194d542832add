// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/go-hostloop"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

func addPlatformCommands(cmd *cobra.Command, opts *rootOptions) {
	cmd.AddCommand(newEchoCommand(opts))
}

func newEchoCommand(opts *rootOptions) *cobra.Command {
	var (
		addr  string
		conns int
	)
	cmd := &cobra.Command{
		Use:   "echo",
		Short: "Run a TCP echo server driven by the event loop's I/O watches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runEcho(ctx, opts, cmd, addr, conns)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7007", "IPv4 address to listen on")
	cmd.Flags().IntVar(&conns, "conns", 0, "exit after serving this many connections (0 serves forever)")
	return cmd
}

func runEcho(ctx context.Context, opts *rootOptions, cmd *cobra.Command, addr string, conns int) error {
	lfd, bound, err := listenTCP4(addr)
	if err != nil {
		return err
	}
	defer unix.Close(lfd)

	l, err := opts.newLoop()
	if err != nil {
		return err
	}
	defer l.Close()

	srv := &echoServer{loop: l, limit: conns, out: cmd}
	if err := l.AddReader(lfd, func() { srv.accept(lfd) }); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", bound); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var g errgroup.Group
	g.Go(func() error {
		defer cancel()
		return l.RunForever()
	})
	g.Go(func() error {
		<-ctx.Done()
		if _, err := l.CallSoonThreadsafe(l.Stop); err != nil && !errors.Is(err, hostloop.ErrLoopClosed) {
			return err
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	srv.closeAll()
	return nil
}

type echoServer struct {
	loop   *hostloop.EventLoop
	out    *cobra.Command
	open   map[int]struct{}
	limit  int
	served int
}

func (s *echoServer) accept(lfd int) {
	fd, _, err := unix.Accept(lfd)
	if err != nil {
		if !errors.Is(err, unix.EAGAIN) {
			s.out.PrintErrf("accept: %v\n", err)
		}
		return
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		s.out.PrintErrf("set nonblock: %v\n", err)
		_ = unix.Close(fd)
		return
	}
	if s.open == nil {
		s.open = make(map[int]struct{})
	}
	s.open[fd] = struct{}{}
	if err := s.loop.AddReader(fd, func() { s.echo(fd) }); err != nil {
		s.out.PrintErrf("watch connection: %v\n", err)
		s.close(fd)
	}
}

func (s *echoServer) echo(fd int) {
	var buf [4096]byte
	n, err := unix.Read(fd, buf[:])
	switch {
	case errors.Is(err, unix.EAGAIN):
		return
	case err != nil || n == 0:
		s.close(fd)
		return
	}
	for b := buf[:n]; len(b) > 0; {
		w, err := unix.Write(fd, b)
		if err != nil {
			s.close(fd)
			return
		}
		b = b[w:]
	}
}

func (s *echoServer) close(fd int) {
	if _, ok := s.open[fd]; !ok {
		return
	}
	delete(s.open, fd)
	_, _ = s.loop.RemoveReader(fd)
	_ = unix.Close(fd)
	s.served++
	if s.limit > 0 && s.served >= s.limit {
		s.loop.Stop()
	}
}

func (s *echoServer) closeAll() {
	for fd := range s.open {
		_ = unix.Close(fd)
	}
	s.open = nil
}

// listenTCP4 opens a non-blocking listening socket, returning it and the
// bound address.
func listenTCP4(addr string) (int, string, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp4", addr)
	if err != nil {
		return -1, "", err
	}
	sa := &unix.SockaddrInet4{Port: tcpAddr.Port}
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, "", fmt.Errorf("socket: %w", err)
	}
	fail := func(op string, err error) (int, string, error) {
		_ = unix.Close(fd)
		return -1, "", fmt.Errorf("%s: %w", op, err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fail("setsockopt", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		return fail("bind", err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		return fail("listen", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return fail("set nonblock", err)
	}
	name, err := unix.Getsockname(fd)
	if err != nil {
		return fail("getsockname", err)
	}
	bound := addr
	if in4, ok := name.(*unix.SockaddrInet4); ok {
		bound = (&net.TCPAddr{IP: net.IP(in4.Addr[:]), Port: in4.Port}).String()
	}
	return fd, bound, nil
}
