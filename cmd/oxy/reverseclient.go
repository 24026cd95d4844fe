package main

import (
	"context"
	"flag"
	"fmt"
	"net"

	"oxy/internal/logging"
	"oxy/internal/peercore"
)

// runReverseClient implements `reverse-client`: bind a port, wait for a
// reverse-server to dial in, then act as the Noise initiator ("be a client")
// over that connection. Grounded on original_source/arg.rs's
// "reverse-client" subcommand description; shares runInitiatorSession with
// runClient since both drive the initiator role identically once connected.
func runReverseClient(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reverse-client", flag.ExitOnError)
	identity := fs.String("i", "", "peer identity to authenticate as")
	var metacommands stringList
	fs.Var(&metacommands, "m", "metacommand to run after connecting (repeatable)")
	var localFwds, remoteFwds, socksFwds stringList
	fs.Var(&localFwds, "L", "local port forward listen_host:listen_port:dest_host:dest_port (repeatable)")
	fs.Var(&remoteFwds, "R", "remote port forward listen_host:listen_port:dest_host:dest_port (repeatable)")
	fs.Var(&socksFwds, "D", "local SOCKS5 proxy listen address (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("reverse-client: bind-address required")
	}
	bindAddr := fs.Arg(0)
	command := "bash"
	if fs.NArg() > 1 {
		command = fs.Arg(1)
	}

	self, table, _, err := loadClientIdentity()
	if err != nil {
		return err
	}
	peer, err := resolvePeer(table, *identity)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return fmt.Errorf("reverse-client: bind %s: %w", bindAddr, err)
	}
	conn, err := ln.Accept()
	ln.Close()
	if err != nil {
		return fmt.Errorf("reverse-client: accept: %w", err)
	}

	core := peercore.CreateInitiator(conn, self, peer, logging.Component(newLogger(), "peercore"))
	if err := core.Launch(ctx); err != nil {
		return fmt.Errorf("reverse-client: launch: %w", err)
	}

	return runInitiatorSession(core, initiatorSession{
		command:      command,
		metacommands: metacommands,
		localFwds:    localFwds,
		remoteFwds:   remoteFwds,
		socksFwds:    socksFwds,
	})
}
