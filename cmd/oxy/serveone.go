package main

import (
	"context"
	"flag"
	"fmt"
	"net"
)

// runServeOne implements the `serve-one` subcommand: bind bind-address,
// accept exactly one TCP connection, and service it inline as the
// responder in this same process (no knock gate, no fork). Grounded on
// original_source/arg.rs's "serve-one" subcommand description.
func runServeOne(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve-one", flag.ExitOnError)
	port := fs.Int("p", 2600, "TCP port to bind")
	if err := fs.Parse(args); err != nil {
		return err
	}
	bindAddr := "::0"
	if fs.NArg() > 0 {
		bindAddr = fs.Arg(0)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", bindAddr, *port))
	if err != nil {
		return fmt.Errorf("serve-one: bind %s:%d: %w", bindAddr, *port, err)
	}
	defer ln.Close()

	conn, err := ln.Accept()
	if err != nil {
		return fmt.Errorf("serve-one: accept: %w", err)
	}
	ln.Close()

	return serveResponder(ctx, conn)
}
