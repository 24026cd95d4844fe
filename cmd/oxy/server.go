package main

import (
	"context"
	"flag"
	"fmt"
	"net"

	"oxy/internal/admission"
	"oxy/internal/logging"
)

// runServer implements the `server` subcommand: bind the knock gate, and
// for every admitted TCP connection, reexec this binary as `oxy reexec` with
// the socket inherited as fd 3. See SPEC_FULL.md §4.8.
func runServer(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	port := fs.Int("p", 2600, "TCP port to listen on")
	knockPort := fs.Int("knock-port", 0, "UDP port to listen for knocks on (defaults to server.conf's knock_port)")
	_ = fs.Bool("unsafe-reexec", false, "bypass safety restrictions intended to avoid privilege elevation (not implemented)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	self, table, cfg, _, err := loadServerIdentity()
	if err != nil {
		return err
	}
	_ = self

	udpPort := *knockPort
	if udpPort == 0 {
		udpPort = cfg.KnockPort
	}
	if udpPort == 0 {
		return fmt.Errorf("server: no knock port configured (--knock-port or server.conf knock_port)")
	}

	log := logging.Component(newLogger(), "admission")
	forker := admission.ReexecForker{}
	srv := admission.New(table, forker, log, fmt.Sprintf(":%d", udpPort), fmt.Sprintf(":%d", *port))
	return srv.Run(ctx)
}

// connFromFD recovers the net.Conn a `reexec` process was handed as an
// inherited file descriptor.
func connFromFD(fd int) (net.Conn, error) {
	file := fdFile(fd)
	conn, err := net.FileConn(file)
	file.Close()
	if err != nil {
		return nil, fmt.Errorf("recover connection from fd %d: %w", fd, err)
	}
	return conn, nil
}
