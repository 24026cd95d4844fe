package handshake

import (
	"errors"
	"sync"
	"testing"

	"oxy/internal/domain"
)

var errAborted = errors.New("handshake test: pipe aborted")

// pipeTransport connects an initiator and a responder in-process via two
// buffered channels, standing in for transport.RawFrame in these tests. Both
// ends share an abort channel so a side that fails before writing its frame
// does not leave the other blocked forever in ReadFrame.
type pipeTransport struct {
	out       chan []byte
	in        chan []byte
	abort     chan struct{}
	abortOnce *sync.Once
}

func newPipe() (a, b *pipeTransport) {
	c1 := make(chan []byte, 1)
	c2 := make(chan []byte, 1)
	abort := make(chan struct{})
	once := &sync.Once{}
	return &pipeTransport{out: c1, in: c2, abort: abort, abortOnce: once},
		&pipeTransport{out: c2, in: c1, abort: abort, abortOnce: once}
}

func (p *pipeTransport) WriteFrame(payload []byte) error {
	cp := append([]byte(nil), payload...)
	p.out <- cp
	return nil
}

func (p *pipeTransport) ReadFrame() ([]byte, error) {
	select {
	case f := <-p.in:
		return f, nil
	case <-p.abort:
		return nil, errAborted
	}
}

// Abort unblocks the peer's ReadFrame if it is still waiting for a message
// that will now never arrive.
func (p *pipeTransport) Abort() {
	p.abortOnce.Do(func() { close(p.abort) })
}

func mustKeypair(t *testing.T) domain.StaticKeypair {
	t.Helper()
	kp, err := GenerateStaticKeypair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	return kp
}

func TestHandshakeAuthenticatesBothPeers(t *testing.T) {
	clientKeys := mustKeypair(t)
	serverKeys := mustKeypair(t)

	psk := [32]byte{1, 2, 3}

	peer := domain.Peer{
		Name:      "server",
		PublicKey: serverKeys.Public,
		PSK:       psk,
	}
	table, err := domain.NewPeerTable([]domain.Peer{{
		Name:      "client",
		PublicKey: clientKeys.Public,
		PSK:       psk,
	}})
	if err != nil {
		t.Fatalf("peer table: %v", err)
	}

	initTransport, respTransport := newPipe()

	type result struct {
		res Result
		err error
	}
	initCh := make(chan result, 1)
	respCh := make(chan result, 1)

	go func() {
		r, err := RunInitiator(initTransport, clientKeys, peer)
		initCh <- result{r, err}
	}()
	go func() {
		r, err := RunResponder(respTransport, serverKeys, table)
		respCh <- result{r, err}
	}()

	ir := <-initCh
	rr := <-respCh

	if ir.err != nil {
		t.Fatalf("initiator failed: %v", ir.err)
	}
	if rr.err != nil {
		t.Fatalf("responder failed: %v", rr.err)
	}
	if rr.res.PeerName != "client" {
		t.Fatalf("responder resolved peer %q, want %q", rr.res.PeerName, "client")
	}
	if len(ir.res.ChannelBinding) == 0 || string(ir.res.ChannelBinding) != string(rr.res.ChannelBinding) {
		t.Fatal("expected both sides to derive the same channel binding")
	}
}

func TestHandshakeRejectsUnknownInitiatorKey(t *testing.T) {
	strangerKeys := mustKeypair(t)
	serverKeys := mustKeypair(t)
	psk := [32]byte{9, 9, 9}

	peer := domain.Peer{
		Name:      "server",
		PublicKey: serverKeys.Public,
		PSK:       psk,
	}
	// Responder's table does not contain strangerKeys.Public.
	table, err := domain.NewPeerTable(nil)
	if err != nil {
		t.Fatalf("peer table: %v", err)
	}

	initTransport, respTransport := newPipe()

	respErrCh := make(chan error, 1)
	go func() {
		_, err := RunResponder(respTransport, serverKeys, table)
		if err != nil {
			respTransport.Abort()
		}
		respErrCh <- err
	}()

	_, initErr := RunInitiator(initTransport, strangerKeys, peer)

	if err := <-respErrCh; err == nil {
		t.Fatal("expected responder to reject an initiator whose static key is not in the peer table")
	}
	if initErr == nil {
		t.Fatal("expected initiator to fail since the responder never completed the handshake")
	}
}

func TestHandshakeRejectsWrongPSK(t *testing.T) {
	clientKeys := mustKeypair(t)
	serverKeys := mustKeypair(t)

	peer := domain.Peer{
		Name:      "server",
		PublicKey: serverKeys.Public,
		PSK:       [32]byte{1},
	}
	table, err := domain.NewPeerTable([]domain.Peer{{
		Name:      "client",
		PublicKey: clientKeys.Public,
		PSK:       [32]byte{2}, // mismatched PSK
	}})
	if err != nil {
		t.Fatalf("peer table: %v", err)
	}

	initTransport, respTransport := newPipe()

	respErrCh := make(chan error, 1)
	go func() {
		_, err := RunResponder(respTransport, serverKeys, table)
		if err != nil {
			respTransport.Abort()
		}
		respErrCh <- err
	}()

	_, initErr := RunInitiator(initTransport, clientKeys, peer)
	if initErr != nil {
		initTransport.Abort()
	}
	respErr := <-respErrCh

	if initErr == nil && respErr == nil {
		t.Fatal("expected handshake with mismatched PSKs to fail on at least one side")
	}
}
