// Package admission implements the server-side UDP port-knock gate and the
// TCP acceptor it controls: a UDP listener that validates rotating knock
// tokens, a bounded recent-knock list, and a TCP listener that is bound only
// while that list is non-empty. See SPEC_FULL.md §4.8 / spec.md §4.8.
package admission

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"oxy/internal/domain"
	"oxy/internal/knock"
)

// knockWindow is how long a validated knock keeps its source IP admitted.
const knockWindow = 50 * time.Second

// maxKnockEntries bounds the recent-knock list; beyond this the oldest
// entries are evicted FIFO regardless of age.
const maxKnockEntries = 1000

// sweepInterval is how often the admission list is purged of expired
// entries and the TCP listener is torn down if nothing remains.
const sweepInterval = 5 * time.Second

// Forker hands an admitted TCP connection off to a connection processor,
// either by forking (or re-execing) a fresh process that inherits the
// socket, or by servicing it inline.
type Forker interface {
	Serve(conn net.Conn) error
}

type knockEntry struct {
	addr netip.Addr
	seen time.Time
}

// Server is the UDP knock listener paired with the TCP acceptor it gates.
type Server struct {
	peers     *domain.PeerTable
	codec     *knock.Codec
	forker    Forker
	log       *logrus.Entry
	udpAddr   string
	tcpAddr   string

	mu          sync.Mutex
	entries     []knockEntry
	tcpListener net.Listener
}

// New builds an admission server. udpAddr/tcpAddr are "host:port" (or
// ":port") listen specifications.
func New(peers *domain.PeerTable, forker Forker, log *logrus.Entry, udpAddr, tcpAddr string) *Server {
	return &Server{
		peers:   peers,
		codec:   knock.NewCodec(),
		forker:  forker,
		log:     log,
		udpAddr: udpAddr,
		tcpAddr: tcpAddr,
	}
}

// Run binds the UDP knock socket and serves until ctx is canceled. It
// prefers an IPv6 dual-stack listener, falling back to IPv4-only when the
// platform or address family doesn't support it. The knock-read loop and the
// admission-list sweep run as a supervised pair via errgroup: either one
// returning an error cancels the other and Run reports it.
func (s *Server) Run(ctx context.Context) error {
	udpConn, err := s.listenUDP()
	if err != nil {
		return fmt.Errorf("admission: bind udp: %w", err)
	}
	defer udpConn.Close()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		s.sweepLoop(groupCtx)
		return nil
	})
	group.Go(func() error {
		return s.readLoop(groupCtx, udpConn)
	})
	return group.Wait()
}

func (s *Server) readLoop(ctx context.Context, udpConn *net.UDPConn) error {
	buf := make([]byte, knock.TokenSize+16)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		udpConn.SetReadDeadline(time.Now().Add(time.Second))
		n, remote, err := udpConn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return fmt.Errorf("admission: read udp: %w", err)
		}
		s.handleKnock(buf[:n], remote.Addr())
	}
}

func (s *Server) listenUDP() (*net.UDPConn, error) {
	if conn, err := net.ListenUDP("udp6", udpAddrOrNil(s.udpAddr)); err == nil {
		return conn, nil
	}
	return net.ListenUDP("udp4", udpAddrOrNil(s.udpAddr))
}

func udpAddrOrNil(spec string) *net.UDPAddr {
	addr, err := net.ResolveUDPAddr("udp", spec)
	if err != nil {
		return nil
	}
	return addr
}

func (s *Server) handleKnock(token []byte, addr netip.Addr) {
	if len(token) != knock.TokenSize {
		return
	}
	now := time.Now().Unix()

	var accepted bool
	for _, name := range s.peers.Names() {
		peer, ok := s.peers.ByName(name)
		if !ok {
			continue
		}
		if s.codec.Verify(peer.KnockSecret[:], now, peer.Name, token) {
			accepted = true
			break
		}
	}
	if !accepted {
		s.log.WithField("remote", addr.String()).Debug("rejected knock")
		return
	}

	s.log.WithField("remote", addr.String()).Info("admitted knock")
	s.admit(addr)
}

func (s *Server) admit(addr netip.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, knockEntry{addr: addr, seen: time.Now()})
	if len(s.entries) > maxKnockEntries {
		s.entries = s.entries[len(s.entries)-maxKnockEntries:]
	}
	if s.tcpListener == nil {
		if err := s.bindTCPLocked(); err != nil {
			s.log.WithError(err).Error("failed to bind tcp listener after admitted knock")
		}
	}
}

func (s *Server) bindTCPLocked() error {
	ln, err := net.Listen("tcp", s.tcpAddr)
	if err != nil {
		return err
	}
	s.tcpListener = ln
	go s.acceptLoop(ln)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		if !s.isAdmitted(conn.RemoteAddr()) {
			conn.Close()
			continue
		}
		if err := s.forker.Serve(conn); err != nil {
			s.log.WithError(err).Error("failed to dispatch accepted connection")
			conn.Close()
		}
	}
}

func (s *Server) isAdmitted(remote net.Addr) bool {
	host, _, err := net.SplitHostPort(remote.String())
	if err != nil {
		return false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-knockWindow)
	for _, e := range s.entries {
		if e.addr == addr && e.seen.After(cutoff) {
			return true
		}
	}
	return false
}

func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Server) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-knockWindow)
	live := s.entries[:0]
	for _, e := range s.entries {
		if e.seen.After(cutoff) {
			live = append(live, e)
		}
	}
	s.entries = live

	if len(s.entries) == 0 && s.tcpListener != nil {
		_ = s.tcpListener.Close()
		s.tcpListener = nil
	}
}
