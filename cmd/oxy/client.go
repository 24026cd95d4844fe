package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/shlex"
	"golang.org/x/term"

	"oxy/internal/knock"
	"oxy/internal/logging"
	"oxy/internal/message"
	"oxy/internal/peercore"
)

// runClient implements the `client` subcommand: knock, dial, handshake as
// initiator, then either run the requested metacommands/forwards or drop
// into an interactive PTY session. Grounded on original_source/src/client.rs's
// knock-then-connect sequence.
func runClient(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("client", flag.ExitOnError)
	identity := fs.String("i", "", "peer identity to authenticate as")
	port := fs.Int("p", 2600, "TCP port to connect to")
	var metacommands stringList
	fs.Var(&metacommands, "m", "metacommand to run after connecting (repeatable)")
	var localFwds, remoteFwds, socksFwds stringList
	fs.Var(&localFwds, "L", "local port forward listen_host:listen_port:dest_host:dest_port (repeatable)")
	fs.Var(&remoteFwds, "R", "remote port forward listen_host:listen_port:dest_host:dest_port (repeatable)")
	fs.Var(&socksFwds, "D", "local SOCKS5 proxy listen address (repeatable)")
	var via stringList
	fs.Var(&via, "via", "intermediary oxy server to hop through (repeatable)")
	_ = fs.Bool("X", false, "X forwarding (not implemented)")
	_ = fs.Bool("Y", false, "trusted X forwarding (not implemented)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return fmt.Errorf("client: destination required")
	}
	destination := rest[0]
	command := "bash"
	if len(rest) > 1 {
		command = rest[1]
	}

	if len(via) > 0 {
		return fmt.Errorf("client: --via multi-hop connections are not implemented")
	}

	self, table, cfg, err := loadClientIdentity()
	if err != nil {
		return err
	}

	peerName := *identity
	host := destination
	tcpPort := *port
	knockPort := *port
	for _, srv := range cfg.Servers {
		if srv.Name == destination {
			host = srv.Host
			if srv.Port != 0 {
				tcpPort = srv.Port
			}
			if srv.KnockPort != 0 {
				knockPort = srv.KnockPort
			}
			if peerName == "" {
				peerName = srv.Identity
			}
			break
		}
	}
	if peerName == "" {
		peerName = destination
	}

	peer, err := resolvePeer(table, peerName)
	if err != nil {
		return err
	}

	if err := sendKnock(host, knockPort, peer.KnockSecret[:]); err != nil {
		return fmt.Errorf("client: knock: %w", err)
	}
	time.Sleep(500 * time.Millisecond)

	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", host, tcpPort))
	if err != nil {
		return fmt.Errorf("client: dial %s:%d: %w", host, tcpPort, err)
	}

	core := peercore.CreateInitiator(conn, self, peer, logging.Component(newLogger(), "peercore"))
	if err := core.Launch(ctx); err != nil {
		return fmt.Errorf("client: launch: %w", err)
	}

	return runInitiatorSession(core, initiatorSession{
		command:      command,
		metacommands: metacommands,
		localFwds:    localFwds,
		remoteFwds:   remoteFwds,
		socksFwds:    socksFwds,
	})
}

// initiatorSession bundles the post-handshake work common to `client` and
// `reverse-client`: both act as the Noise initiator and then set up whatever
// mix of forwards, metacommands, or an interactive PTY the flags asked for.
type initiatorSession struct {
	command      string
	metacommands stringList
	localFwds    stringList
	remoteFwds   stringList
	socksFwds    stringList
}

func runInitiatorSession(core *peercore.Core, s initiatorSession) error {
	for _, spec := range s.localFwds {
		f, ok := parseForwardSpec(spec)
		if !ok {
			return fmt.Errorf("client: bad -L spec %q", spec)
		}
		if err := core.StartLocalForward(f.listen, f.dest); err != nil {
			return fmt.Errorf("client: -L %s: %w", spec, err)
		}
	}
	for _, spec := range s.remoteFwds {
		f, ok := parseForwardSpec(spec)
		if !ok {
			return fmt.Errorf("client: bad -R spec %q", spec)
		}
		if err := core.StartRemoteForward(f.listen, f.dest); err != nil {
			return fmt.Errorf("client: -R %s: %w", spec, err)
		}
	}
	for _, listen := range s.socksFwds {
		if err := core.StartSocksForward(listen); err != nil {
			return fmt.Errorf("client: -D %s: %w", listen, err)
		}
	}

	if len(s.metacommands) > 0 {
		for _, mc := range s.metacommands {
			if err := runMetacommand(core, mc); err != nil {
				return err
			}
		}
	} else if len(s.localFwds) == 0 && len(s.remoteFwds) == 0 && len(s.socksFwds) == 0 {
		if err := runInteractiveSession(core, s.command); err != nil {
			return err
		}
	}

	core.Wait()
	return nil
}

// runMetacommand validates mc as a well-formed shell command line (catching
// unbalanced quotes client-side, before they reach the peer) and sends it,
// printing the captured stdout/stderr once the peer finishes running it.
// "tun local remote" and "tap local remote" are handled locally instead,
// bridging tun/tap devices the way original_source/src/core/metacommands.rs's
// "tun"/"tap" subcommands do.
func runMetacommand(core *peercore.Core, mc string) error {
	fields, err := shlex.Split(mc)
	if err != nil {
		return fmt.Errorf("client: metacommand %q is not a valid shell command line: %w", mc, err)
	}
	if len(fields) == 3 && (fields[0] == "tun" || fields[0] == "tap") {
		return core.StartTunnel(fields[0] == "tap", fields[1], fields[2])
	}

	done := make(chan error, 1)
	core.WatchExternal(func(m message.Message) bool {
		if v, ok := m.(message.BasicCommandOutput); ok {
			os.Stdout.Write(v.Stdout)
			os.Stderr.Write(v.Stderr)
			done <- nil
			return true
		}
		return false
	})
	if _, err := core.Send(message.BasicCommand{Command: mc}); err != nil {
		return fmt.Errorf("client: send metacommand: %w", err)
	}
	return <-done
}

// sendKnock derives the current knock token and sends it to host:knockPort
// over UDP, as one datagram to the single address host resolves to.
func sendKnock(host string, knockPort int, secret []byte) error {
	codec := knock.NewCodec()
	token := codec.Make(secret, time.Now().Unix())

	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, knockPort))
	if err != nil {
		return err
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write(token[:])
	return err
}

// runInteractiveSession puts the local terminal in raw mode, requests a PTY
// running command, and pumps stdin/stdout through it until the session ends.
func runInteractiveSession(core *peercore.Core, command string) error {
	fd := int(os.Stdin.Fd())
	var restore func()
	if term.IsTerminal(fd) {
		prevState, err := term.MakeRaw(fd)
		if err == nil {
			restore = func() { _ = term.Restore(fd, prevState) }
			core.SetTerminalRestore(restore)
		}
	}

	cmd := command
	if _, err := core.Send(message.PtyRequest{Command: &cmd}); err != nil {
		return fmt.Errorf("client: request pty: %w", err)
	}
	sendPtySize(core, fd)
	go watchPtyResize(core, fd)

	core.WatchExternal(func(m message.Message) bool {
		switch v := m.(type) {
		case message.PtyOutput:
			os.Stdout.Write(v.Data)
		case message.PtyExited:
			core.Exit(int(v.Status))
			return true
		}
		return false
	})

	go pumpStdin(core)
	return nil
}

// sendPtySize advertises the current terminal size for fd, if it is in fact
// a terminal. A non-terminal stdin (piped input, redirected from a file)
// just leaves the peer at its pty default.
func sendPtySize(core *peercore.Core, fd int) {
	w, h, err := term.GetSize(fd)
	if err != nil {
		return
	}
	if _, err := core.Send(message.PtySizeAdvertisement{W: uint16(w), H: uint16(h)}); err != nil {
		core.Log().WithError(err).Warn("pty size advertisement failed")
	}
}

// watchPtyResize re-advertises the terminal size on every SIGWINCH,
// matching original_source/src/client.rs's resize handling, until the
// process exits.
func watchPtyResize(core *peercore.Core, fd int) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)
	for range sigCh {
		sendPtySize(core, fd)
	}
}

func pumpStdin(core *peercore.Core) {
	buf := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			core.Send(message.PtyInput{Data: data})
		}
		if err != nil {
			return
		}
	}
}
