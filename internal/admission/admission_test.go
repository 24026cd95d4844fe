package admission

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"oxy/internal/domain"
	"oxy/internal/knock"
)

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(testDiscard{})
	return l.WithField("test", true)
}

type testDiscard struct{}

func (testDiscard) Write(p []byte) (int, error) { return len(p), nil }

func TestHandleKnockAdmitsKnownPeer(t *testing.T) {
	var secret [32]byte
	secret[0] = 0x42
	table, err := domain.NewPeerTable([]domain.Peer{{Name: "client", KnockSecret: secret}})
	if err != nil {
		t.Fatalf("peer table: %v", err)
	}

	forker := InlineForker{Handle: func(conn net.Conn) {
		conn.Close()
	}}

	s := New(table, forker, discardLogger(), "127.0.0.1:0", "127.0.0.1:0")

	codec := knock.NewCodec()
	token := codec.Make(secret[:], time.Now().Unix())

	s.handleKnock(token[:], mustParseAddr(t, "127.0.0.1"))

	s.mu.Lock()
	n := len(s.entries)
	hasListener := s.tcpListener != nil
	s.mu.Unlock()

	if n != 1 {
		t.Fatalf("expected 1 admitted knock entry, got %d", n)
	}
	if !hasListener {
		t.Fatal("expected tcp listener to be bound after an admitted knock")
	}
	s.tcpListener.Close()
}

func TestHandleKnockRejectsUnknownSecret(t *testing.T) {
	table, err := domain.NewPeerTable(nil)
	if err != nil {
		t.Fatalf("peer table: %v", err)
	}
	forker := InlineForker{Handle: func(conn net.Conn) { conn.Close() }}
	s := New(table, forker, discardLogger(), "127.0.0.1:0", "127.0.0.1:0")

	token := make([]byte, knock.TokenSize)
	s.handleKnock(token, mustParseAddr(t, "127.0.0.1"))

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) != 0 {
		t.Fatal("expected no admitted entries for an unknown secret")
	}
}

func TestSweepTearsDownListenerAfterExpiry(t *testing.T) {
	var secret [32]byte
	table, _ := domain.NewPeerTable([]domain.Peer{{Name: "client", KnockSecret: secret}})
	forker := InlineForker{Handle: func(conn net.Conn) { conn.Close() }}
	s := New(table, forker, discardLogger(), "127.0.0.1:0", "127.0.0.1:0")

	s.admit(mustParseAddr(t, "127.0.0.1"))
	s.mu.Lock()
	s.entries[0].seen = time.Now().Add(-knockWindow - time.Second)
	s.mu.Unlock()

	s.sweep()

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) != 0 {
		t.Fatal("expected expired entry to be purged")
	}
	if s.tcpListener != nil {
		t.Fatal("expected tcp listener to be torn down once no entries remain")
	}
}

func TestIsAdmittedRespectsWindow(t *testing.T) {
	var secret [32]byte
	table, _ := domain.NewPeerTable([]domain.Peer{{Name: "client", KnockSecret: secret}})
	forker := InlineForker{Handle: func(conn net.Conn) { conn.Close() }}
	s := New(table, forker, discardLogger(), "127.0.0.1:0", "127.0.0.1:0")
	s.admit(mustParseAddr(t, "127.0.0.1"))
	defer func() {
		s.mu.Lock()
		if s.tcpListener != nil {
			s.tcpListener.Close()
		}
		s.mu.Unlock()
	}()

	conn := &fakeAddrConn{remote: "127.0.0.1:54321"}
	if !s.isAdmitted(conn.RemoteAddr()) {
		t.Fatal("expected 127.0.0.1 to be admitted")
	}

	other := &fakeAddrConn{remote: "10.0.0.5:1234"}
	if s.isAdmitted(other.RemoteAddr()) {
		t.Fatal("expected a different source IP to not be admitted")
	}
}

type fakeAddrConn struct{ remote string }

func (f *fakeAddrConn) RemoteAddr() net.Addr { return fakeAddr(f.remote) }

type fakeAddr string

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return string(a) }

func mustParseAddr(t *testing.T, s string) netip.Addr {
	t.Helper()
	addr, err := netip.ParseAddr(s)
	if err != nil {
		t.Fatalf("bad ip %q: %v", s, err)
	}
	return addr
}
