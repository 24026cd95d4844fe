package peercore

import (
	"fmt"
	"net"

	"oxy/internal/message"
	"oxy/internal/socks5"
)

// streamRole distinguishes the two ends of a bridged port-forward
// connection. Whichever side accepted the connection locally (the -L
// initiator's listener, or the -R responder's listener) is the acceptor;
// whichever side dialed out to reach the ultimate destination (the -L
// responder, or the -R initiator) is the dialer. Naming the message variants
// by role rather than by forwarding direction lets local and remote
// forwarding share one bridge implementation.
type streamRole int

const (
	streamAcceptor streamRole = iota
	streamDialer
)

// portStream bridges a local net.Conn with the peer's matching half over
// RemoteStreamData/LocalStreamData, keyed by the reference both sides agree
// on (the creating message's ordinal on its direction's stream).
type portStream struct {
	ref  uint64
	conn net.Conn
	role streamRole
}

const forwardReadChunk = 16 * 1024

// bridgeConn starts the goroutine that reads conn and forwards each chunk to
// the peer as the role-appropriate stream-data variant, and registers the
// substream so incoming data/close messages can find it.
func (c *Core) bridgeConn(ref uint64, conn net.Conn, role streamRole) {
	c.forwards[ref] = &portStream{ref: ref, conn: conn, role: role}

	go func() {
		buf := make([]byte, forwardReadChunk)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				data := append([]byte(nil), buf[:n]...)
				c.post(func(c *Core) {
					if _, ok := c.forwards[ref]; !ok {
						return
					}
					if _, sendErr := c.Send(outboundStreamData(role, ref, data)); sendErr != nil {
						c.log.WithError(sendErr).Warn("forward data send failed")
					}
				})
			}
			if err != nil {
				c.post(func(c *Core) {
					c.closeForward(ref, role)
				})
				return
			}
		}
	}()
}

func outboundStreamData(role streamRole, ref uint64, data []byte) message.Message {
	if role == streamAcceptor {
		return message.RemoteStreamData{Reference: ref, Data: data}
	}
	return message.LocalStreamData{Reference: ref, Data: data}
}

func outboundStreamClosed(role streamRole, ref uint64) message.Message {
	if role == streamAcceptor {
		return message.RemoteStreamClosed{Reference: ref}
	}
	return message.LocalStreamClosed{Reference: ref}
}

func (c *Core) closeForward(ref uint64, role streamRole) {
	s, ok := c.forwards[ref]
	if !ok {
		return
	}
	_ = s.conn.Close()
	delete(c.forwards, ref)
	if _, err := c.Send(outboundStreamClosed(role, ref)); err != nil {
		c.log.WithError(err).Warn("forward close notify failed")
	}
}

// handleRemoteOpen is received by the dialer side: the peer accepted a new
// -L client connection and wants it bridged to addr.
func (c *Core) handleRemoteOpen(ref uint64, v message.RemoteOpen) error {
	conn, err := net.Dial("tcp", v.Addr)
	if err != nil {
		return fmt.Errorf("dial forward target %q: %w", v.Addr, err)
	}
	c.bridgeConn(ref, conn, streamDialer)
	return nil
}

// handleRemoteBind is received by the acceptor side for -R: the peer wants
// us to listen on its behalf and forward each accepted connection back.
func (c *Core) handleRemoteBind(ref uint64, v message.RemoteBind) error {
	ln, err := net.Listen("tcp", v.Addr)
	if err != nil {
		return fmt.Errorf("bind remote forward %q: %w", v.Addr, err)
	}
	bind := &remoteBind{ref: ref, listener: ln, addr: v.Addr}
	c.binds[ref] = bind

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			c.post(func(c *Core) {
				if _, ok := c.binds[ref]; !ok {
					_ = conn.Close()
					return
				}
				connRef, sendErr := c.sendSelfRef(func(ref uint64) message.Message {
					return message.BindConnectionAccepted{Reference: ref}
				})
				if sendErr != nil {
					c.log.WithError(sendErr).Warn("bind-accepted send failed")
					_ = conn.Close()
					return
				}
				c.bridgeConn(connRef, conn, streamAcceptor)
			})
		}
	}()
	return nil
}

type remoteBind struct {
	ref      uint64
	listener net.Listener
	addr     string
}

// handleBindConnectionAccepted is received by the dialer side for -R: the
// peer accepted a connection on our behalf; open the local destination and
// bridge it under the same reference.
func (c *Core) handleBindConnectionAccepted(v message.BindConnectionAccepted) error {
	if c.defaultBindTarget == "" {
		return fmt.Errorf("bind-connection-accepted with no active remote forward")
	}
	conn, err := net.Dial("tcp", c.defaultBindTarget)
	if err != nil {
		return fmt.Errorf("dial remote-bind local destination %q: %w", c.defaultBindTarget, err)
	}
	c.bridgeConn(v.Reference, conn, streamDialer)
	return nil
}

func (c *Core) handleRemoteStreamData(v message.RemoteStreamData) error {
	return c.writeForward(v.Reference, v.Data)
}

func (c *Core) handleLocalStreamData(v message.LocalStreamData) error {
	return c.writeForward(v.Reference, v.Data)
}

func (c *Core) writeForward(ref uint64, data []byte) error {
	s, ok := c.forwards[ref]
	if !ok {
		return nil
	}
	if _, err := s.conn.Write(data); err != nil {
		c.closeForward(ref, s.role)
		return fmt.Errorf("write to forwarded connection: %w", err)
	}
	return nil
}

func (c *Core) handleRemoteStreamClosed(v message.RemoteStreamClosed) error {
	if s, ok := c.forwards[v.Reference]; ok {
		_ = s.conn.Close()
		delete(c.forwards, v.Reference)
	}
	return nil
}

func (c *Core) handleLocalStreamClosed(v message.LocalStreamClosed) error {
	if s, ok := c.forwards[v.Reference]; ok {
		_ = s.conn.Close()
		delete(c.forwards, v.Reference)
	}
	return nil
}

// --- initiator-driven setup: -L and -D listeners ------------------------

// StartLocalForward implements -L: accept connections on listenAddr and
// bridge each to remoteAddr on the peer's side.
func (c *Core) StartLocalForward(listenAddr, remoteAddr string) error {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("bind local forward %q: %w", listenAddr, err)
	}
	go c.acceptLocalForward(ln, remoteAddr)
	return nil
}

func (c *Core) acceptLocalForward(ln net.Listener, remoteAddr string) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		c.post(func(c *Core) {
			ref, sendErr := c.Send(message.RemoteOpen{Addr: remoteAddr})
			if sendErr != nil {
				c.log.WithError(sendErr).Warn("remote-open send failed")
				_ = conn.Close()
				return
			}
			c.bridgeConn(ref, conn, streamAcceptor)
		})
	}
}

// StartSocksForward implements -D: accept connections on listenAddr, run a
// minimal SOCKS5 negotiation on each, then bridge to the negotiated target.
func (c *Core) StartSocksForward(listenAddr string) error {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("bind socks forward %q: %w", listenAddr, err)
	}
	go c.acceptSocksForward(ln)
	return nil
}

func (c *Core) acceptSocksForward(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go func(conn net.Conn) {
			dest, err := socks5.NewSession(conn).Negotiate()
			if err != nil {
				c.log.WithError(err).Debug("socks negotiation failed")
				_ = conn.Close()
				return
			}
			c.post(func(c *Core) {
				ref, sendErr := c.Send(message.RemoteOpen{Addr: dest})
				if sendErr != nil {
					c.log.WithError(sendErr).Warn("remote-open send failed")
					_ = conn.Close()
					return
				}
				c.bridgeConn(ref, conn, streamAcceptor)
			})
		}(conn)
	}
}

// StartRemoteForward implements -R: ask the peer to bind remoteListenAddr on
// its side and, for every connection it accepts, dial localDest on ours.
// One remote forward may be active per connection at a time: each accepted
// connection's BindConnectionAccepted carries a reference allocated fresh by
// the responder (not RemoteBind's own reference), so there is no per-bind
// key to dispatch on -- this mirrors how a single SSH -R tunnel works.
func (c *Core) StartRemoteForward(remoteListenAddr, localDest string) error {
	if _, err := c.Send(message.RemoteBind{Addr: remoteListenAddr}); err != nil {
		return fmt.Errorf("remote-bind send failed: %w", err)
	}
	c.defaultBindTarget = localDest
	return nil
}
