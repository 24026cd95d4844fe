package main

import (
	"context"
	"flag"
	"fmt"
	"net"
)

// runReverseServer implements `reverse-server`: dial out to a listening
// `reverse-client`, then act as the Noise responder over that connection.
// Useful when the machine meant to be administered sits behind NAT and
// cannot itself be dialed. Grounded on original_source/arg.rs's
// "reverse-server" subcommand description.
func runReverseServer(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reverse-server", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("reverse-server: destination required")
	}
	destination := fs.Arg(0)

	conn, err := net.Dial("tcp", destination)
	if err != nil {
		return fmt.Errorf("reverse-server: dial %s: %w", destination, err)
	}

	return serveResponder(ctx, conn)
}
