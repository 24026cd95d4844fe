package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"

	"oxy/internal/logging"
	"oxy/internal/peercore"
)

func fdFile(fd int) *os.File {
	return os.NewFile(uintptr(fd), fmt.Sprintf("fd%d", fd))
}

// runReexec implements the `reexec` subcommand: service a single connection
// inherited on a file descriptor (fd 3 when spawned by ReexecForker) as the
// responder. Grounded on original_source/src/reexec.rs, which services a
// connection handed to it over an inherited fd or stdio.
func runReexec(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reexec", flag.ExitOnError)
	fd := fs.Int("fd", 3, "inherited file descriptor carrying the accepted connection")
	if err := fs.Parse(args); err != nil {
		return err
	}

	conn, err := connFromFD(*fd)
	if err != nil {
		return fmt.Errorf("reexec: %w", err)
	}

	return serveResponder(ctx, conn)
}

// serveResponder drives one accepted connection through the responder role
// to completion: handshake, privilege drop, dispatch loop, until Wait
// returns (the core's Exit always terminates the process, per spec.md §7's
// connection-fatal contract, so this function only returns on handshake or
// setup failure).
func serveResponder(ctx context.Context, conn net.Conn) error {
	self, table, _, policy, err := loadServerIdentity()
	if err != nil {
		return err
	}

	log := logging.Component(newLogger(), "peercore")
	core := peercore.CreateResponder(conn, self, table, log)
	core.SetPolicy(policy)
	core.SetPostAuthHook(func(c *peercore.Core) error {
		peer := c.Peer()
		if err := peercore.DropPrivileges(peer); err != nil {
			return fmt.Errorf("privilege drop: %w", err)
		}
		return nil
	})

	if err := core.Launch(ctx); err != nil {
		return fmt.Errorf("responder: launch: %w", err)
	}
	core.Wait()
	return nil
}
