// Package peercore implements Oxy: the per-connection actor that owns a
// FramedTransport once it exists, drives the handshake that produces it, and
// multiplexes every substream (file transfers, port forwards, PTY, tun/tap,
// piped commands) over the single typed-message channel that transport
// exposes. See SPEC_FULL.md §4.6 and §5.
//
// Concurrency follows the Go rendering of the spec's "single-threaded
// cooperative" scheduling model described in §5: exactly one goroutine (run)
// ever touches Core's substream maps or counters. Every other goroutine this
// package starts (the receive loop, keepalive tickers, substream readers)
// communicates back into that goroutine by enqueueing a coreEvent, never by
// mutating Core state directly -- the same "serialize through one path"
// discipline the teacher applies with DefaultOutbound's mutex, rendered here
// as a channel instead because the surface is event-shaped, not a single
// write call.
package peercore

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"oxy/internal/domain"
	"oxy/internal/handshake"
	"oxy/internal/message"
	"oxy/internal/restrictions"
	"oxy/internal/transport"
)

const (
	pingInterval    = 60 * time.Second
	inactiveTimeout = 180 * time.Second
	eventQueueDepth = 256
)

// Transport is the subset of transport.FramedTransport's method set Core
// depends on; tests substitute a fake so peercore logic can be exercised
// without a real Noise handshake or AEAD sealing.
type Transport interface {
	Send(m message.Message) error
	Receive() (message.Message, error)
	HasWriteSpace() bool
	IsClosed() bool
	Close() error
}

// SendHook is pushed via PushSendHook and invoked once per outbound service
// iteration. Returning false removes it from the list.
type SendHook func(c *Core) bool

type watcher struct {
	fn func(message.Message) bool
}

// coreEvent is the Go rendering of spec.md §5's single funneled event union:
// either an inbound message to dispatch, or an arbitrary callback a
// substream goroutine wants run on the loop goroutine.
type coreEvent struct {
	incoming message.Message
	fn       func(*Core)
}

// Core is one connection's Oxy actor.
type Core struct {
	conn net.Conn
	role Role
	self domain.StaticKeypair

	// Responder-only: the full peer table, needed because the handshake
	// resolves which peer this connection belongs to from the wire.
	peers *domain.PeerTable
	// Initiator-only: the single peer being dialed.
	targetPeer domain.Peer

	transport Transport
	policy    restrictions.Policy

	state        atomic.Int32
	peer         domain.Peer
	peerUsername string

	daemon       bool
	postAuthHook func(*Core) error

	launched atomic.Bool

	outCounter atomic.Uint64
	inCounter  uint64 // loop-goroutine-owned

	watchers  []watcher
	sendHooks []SendHook

	events chan coreEvent
	done   chan struct{}

	log *logrus.Entry

	lastSeen time.Time

	downloads map[uint64]*fileSender
	uploads   map[uint64]*fileReceiver
	pty       *ptySession
	tunnels   map[uint64]*tunnelStream
	forwards  map[uint64]*portStream
	binds     map[uint64]*remoteBind
	pipes     map[uint64]*pipeChild

	defaultBindTarget string

	exitOnce   sync.Once
	exitFn     func(code int)
	terminalFn func()
}

// SetTerminalRestore registers the callback Exit invokes to restore the
// controlling terminal to cooked mode. Raw-mode is put in place by whichever
// layer drives an interactive PTY session (cmd/oxy), so restoring it belongs
// to that same layer; Core only guarantees it is called exactly once, before
// the process exits.
func (c *Core) SetTerminalRestore(fn func()) { c.terminalFn = fn }

// CreateInitiator builds a Core that will dial peer as the Noise "Alice".
func CreateInitiator(conn net.Conn, self domain.StaticKeypair, peer domain.Peer, log *logrus.Entry) *Core {
	c := newCore(conn, RoleInitiator, self, log)
	c.targetPeer = peer
	return c
}

// CreateResponder builds a Core that will authenticate the dialing peer
// against peers as the Noise "Bob".
func CreateResponder(conn net.Conn, self domain.StaticKeypair, peers *domain.PeerTable, log *logrus.Entry) *Core {
	c := newCore(conn, RoleResponder, self, log)
	c.peers = peers
	return c
}

func newCore(conn net.Conn, role Role, self domain.StaticKeypair, log *logrus.Entry) *Core {
	c := &Core{
		conn:      conn,
		role:      role,
		self:      self,
		events:    make(chan coreEvent, eventQueueDepth),
		done:      make(chan struct{}),
		log:       log,
		lastSeen:  time.Now(),
		downloads: make(map[uint64]*fileSender),
		uploads:   make(map[uint64]*fileReceiver),
		tunnels:   make(map[uint64]*tunnelStream),
		forwards:  make(map[uint64]*portStream),
		binds:     make(map[uint64]*remoteBind),
		pipes:     make(map[uint64]*pipeChild),
	}
	c.exitFn = c.defaultExit
	c.state.Store(int32(StateNaked))
	return c
}

// --- configuration hooks, valid before Launch --------------------------

func (c *Core) SetPeerName(name string)              { c.peer.Name = name }
func (c *Core) SetDaemon(daemon bool)                { c.daemon = daemon }
func (c *Core) SetPolicy(p restrictions.Policy)      { c.policy = p }
func (c *Core) SetPostAuthHook(fn func(*Core) error) { c.postAuthHook = fn }

// SetExitFunc overrides the terminator Exit calls after cleanup, for tests.
func (c *Core) SetExitFunc(fn func(code int)) { c.exitFn = fn }

func (c *Core) State() State       { return State(c.state.Load()) }
func (c *Core) Role() Role         { return c.role }
func (c *Core) PeerName() string   { return c.peer.Name }
func (c *Core) Peer() domain.Peer  { return c.peer }
func (c *Core) Log() *logrus.Entry { return c.log }

// --- public contract: launch / send / watch / push_send_hook -----------

// Launch performs the Noise handshake as the appropriate role, derives
// session keys, promotes the connection to a FramedTransport, then starts
// the dispatch loop, keepalive tickers, and receive loop as goroutines.
// Idempotent: a second call is a no-op.
func (c *Core) Launch(ctx context.Context) error {
	if !c.launched.CompareAndSwap(false, true) {
		return nil
	}

	c.state.Store(int32(StateHandshaking))
	rt := transport.NewRawFrame(c.conn)

	var (
		res handshake.Result
		err error
	)
	switch c.role {
	case RoleInitiator:
		res, err = handshake.RunInitiator(rt, c.self, c.targetPeer)
		c.peer = c.targetPeer
	case RoleResponder:
		res, err = handshake.RunResponder(rt, c.self, c.peers)
		if err == nil {
			if p, ok := c.peers.ByName(res.PeerName); ok {
				c.peer = *p
			}
		}
	}
	if err != nil {
		return fmt.Errorf("peercore: handshake: %w", err)
	}

	keys, err := transport.DeriveSessionKeys(res, c.peer.PSK, c.role == RoleInitiator)
	if err != nil {
		return fmt.Errorf("peercore: derive session keys: %w", err)
	}
	c.transport = transport.NewFramedTransport(c.conn, keys)
	c.state.Store(int32(StateAuthenticated))
	c.log = c.log.WithField("peer", c.peer.Name)

	if c.postAuthHook != nil {
		if err := c.postAuthHook(c); err != nil {
			return fmt.Errorf("peercore: post-auth hook: %w", err)
		}
	}

	c.lastSeen = time.Now()
	go c.recvLoop(ctx)
	go c.keepaliveLoop(ctx)
	go c.run(ctx)
	return nil
}

// Wait blocks until the core's dispatch loop has exited.
func (c *Core) Wait() { <-c.done }

// Send encodes and transmits m, allocating and returning the outgoing
// counter value that identifies it (and any substream it creates). The
// first reference handed out is 0, per the wire protocol's "0, 1, 2, ..."
// numbering.
func (c *Core) Send(m message.Message) (uint64, error) {
	ref := c.outCounter.Add(1) - 1
	if err := c.transport.Send(m); err != nil {
		return ref, fmt.Errorf("peercore: send: %w", err)
	}
	return ref, nil
}

// sendSelfRef is for the rare message that must carry its own forthcoming
// reference as payload (e.g. BindConnectionAccepted announcing a brand new
// substream), rather than one established by an earlier request. It
// reserves the next outgoing reference, lets build embed it in the
// message, then transmits.
func (c *Core) sendSelfRef(build func(ref uint64) message.Message) (uint64, error) {
	ref := c.outCounter.Add(1) - 1
	if err := c.transport.Send(build(ref)); err != nil {
		return ref, fmt.Errorf("peercore: send: %w", err)
	}
	return ref, nil
}

// Watch registers a response-matching callback fired for every subsequently
// received message, in dispatch order. fn returns true to self-unregister.
// Like the rest of Core's substream bookkeeping, only the loop goroutine may
// call this safely.
func (c *Core) Watch(fn func(message.Message) bool) {
	if len(c.watchers) >= maxWatchers {
		c.log.Warn("watcher population at capacity, dropping oldest")
		c.watchers = c.watchers[1:]
	}
	c.watchers = append(c.watchers, watcher{fn: fn})
}

const maxWatchers = 256

// WatchExternal registers fn from any goroutine (cmd/oxy's CLI layer, not
// the loop goroutine), blocking until registration is visible to dispatch.
// Everywhere inside peercore itself, call Watch directly instead.
func (c *Core) WatchExternal(fn func(message.Message) bool) {
	c.postSync(func(c *Core) { c.Watch(fn) })
}

// postSync runs fn on the loop goroutine and blocks until it completes.
func (c *Core) postSync(fn func(c *Core)) {
	done := make(chan struct{})
	c.post(func(c *Core) {
		fn(c)
		close(done)
	})
	<-done
}

// PushSendHook registers a hook invoked once per outbound service iteration
// until it returns false. Hooks may themselves call PushSendHook; the splice
// in serviceOutbound below reads c.sendHooks directly rather than a snapshot,
// so a hook appended reentrantly still runs before the current pass ends.
func (c *Core) PushSendHook(hook SendHook) {
	c.sendHooks = append(c.sendHooks, hook)
}

// post delivers an event from any goroutine into the single loop goroutine.
func (c *Core) post(fn func(*Core)) {
	select {
	case c.events <- coreEvent{fn: fn}:
	case <-c.done:
	}
}

// Exit runs cleanup (substream teardown, terminal restore on the initiator)
// then terminates the process via the configured exit function (os.Exit by
// default; tests override it with SetExitFunc).
func (c *Core) Exit(code int) {
	c.exitOnce.Do(func() {
		c.teardownSubstreams()
		if c.role == RoleInitiator && c.terminalFn != nil {
			c.terminalFn()
		}
		if c.transport != nil {
			_ = c.transport.Close()
		} else {
			_ = c.conn.Close()
		}
		// exitFn runs before done is closed, so a Wait caller cannot return
		// (and end the process with its own code) ahead of it.
		c.exitFn(code)
		close(c.done)
	})
}

func (c *Core) defaultExit(code int) {
	osExit(code)
}

var osExit = os.Exit

func (c *Core) teardownSubstreams() {
	for _, f := range c.forwards {
		_ = f.conn.Close()
	}
	for _, b := range c.binds {
		if b.listener != nil {
			_ = b.listener.Close()
		}
	}
	for _, t := range c.tunnels {
		_ = t.dev.Close()
	}
	for _, p := range c.pipes {
		_ = p.kill()
	}
	if c.pty != nil {
		_ = c.pty.kill()
	}
}

// --- dispatch loop -------------------------------------------------------

func (c *Core) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.Exit(0)
			return
		case <-c.done:
			return
		case ev, ok := <-c.events:
			if !ok {
				return
			}
			if ev.fn != nil {
				ev.fn(c)
			} else {
				c.dispatchIncoming(ev.incoming)
			}
			select {
			case <-c.done:
				return
			default:
			}
			c.serviceOutbound()
		}
	}
}

func (c *Core) recvLoop(ctx context.Context) {
	for {
		m, err := c.transport.Receive()
		if err != nil {
			c.post(func(c *Core) {
				c.log.WithError(err).Info("transport closed, exiting")
				c.Exit(0)
			})
			return
		}
		select {
		case c.events <- coreEvent{incoming: m}:
		case <-c.done:
			return
		}
	}
}

func (c *Core) keepaliveLoop(ctx context.Context) {
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()
	checkTicker := time.NewTicker(inactiveTimeout / 6)
	defer checkTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-pingTicker.C:
			c.post(func(c *Core) {
				if _, err := c.Send(message.Ping{}); err != nil {
					c.log.WithError(err).Warn("keepalive ping failed")
				}
			})
		case <-checkTicker.C:
			c.post(func(c *Core) {
				if time.Since(c.lastSeen) > inactiveTimeout {
					c.log.Warn("keepalive timeout, exiting")
					c.Exit(2)
				}
			})
		}
	}
}

func (c *Core) dispatchIncoming(m message.Message) {
	// ref is this message's ordinal on its direction's stream, which equals
	// the reference the sender got back from Send -- the two counters stay
	// in lockstep because the transport delivers one direction's messages
	// strictly in order with nothing dropped. Any substream this message
	// creates (a transfer, a bind, a pty, a tunnel) is keyed by ref. Both
	// counters start at 0, per spec.md §8 property 3.
	ref := c.inCounter
	c.inCounter++
	c.lastSeen = time.Now()
	c.fireWatchers(m)

	filtered, err := restrictions.Apply(c.policy, c.peerUsername, m)
	if err != nil {
		c.sendReject(ref, err.Error())
		return
	}
	if err := c.handle(ref, filtered); err != nil {
		c.sendReject(ref, err.Error())
	}
}

func (c *Core) fireWatchers(m message.Message) {
	if len(c.watchers) == 0 {
		return
	}
	kept := c.watchers[:0]
	for _, w := range c.watchers {
		if !w.fn(m) {
			kept = append(kept, w)
		}
	}
	c.watchers = kept
}

func (c *Core) sendReject(ref uint64, note string) {
	if _, err := c.Send(message.Reject{Reference: ref, Note: note}); err != nil {
		c.log.WithError(err).Warn("failed to send reject")
	}
}

// serviceOutbound runs after every dispatch: it drains up to one chunk per
// active file transfer and runs every registered send hook, both gated by
// the transport's write-space back-pressure signal per SPEC_FULL.md §5.
func (c *Core) serviceOutbound() {
	if len(c.downloads) > 0 {
		// An active download needs another pass even if no other event
		// arrives, so queue an empty one.
		go c.post(func(*Core) {})
	}
	if !c.transport.HasWriteSpace() {
		return
	}
	c.serviceFileSenders()

	write := 0
	for i := 0; i < len(c.sendHooks); i++ {
		if c.sendHooks[i](c) {
			c.sendHooks[write] = c.sendHooks[i]
			write++
		}
	}
	c.sendHooks = c.sendHooks[:write]
}
