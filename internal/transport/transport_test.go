package transport

import (
	"bytes"
	"net"
	"testing"
	"time"

	"oxy/internal/message"
)

func TestRawFrameRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ta := NewRawFrame(a)
	tb := NewRawFrame(b)

	payload := []byte("noise message one")
	errCh := make(chan error, 1)
	go func() { errCh <- ta.WriteFrame(payload) }()

	got, err := tb.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestRawFrameRejectsOversizedFrame(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ta := NewRawFrame(a)
	oversized := bytes.Repeat([]byte{0}, maxRawFrame+1)
	if err := ta.WriteFrame(oversized); err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	_ = b
}

func symmetricKeys() (SessionKeys, SessionKeys) {
	var k1, k2 [32]byte
	for i := range k1 {
		k1[i] = byte(i)
		k2[i] = byte(255 - i)
	}
	// side A sends with k1, receives with k2; side B is the mirror.
	return SessionKeys{Send: k1, Recv: k2}, SessionKeys{Send: k2, Recv: k1}
}

func TestFramedTransportSendReceive(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	keysA, keysB := symmetricKeys()
	ta := NewFramedTransport(a, keysA)
	tb := NewFramedTransport(b, keysB)

	want := message.BasicCommand{Command: "echo hello"}
	errCh := make(chan error, 1)
	go func() { errCh <- ta.Send(want) }()

	got, err := tb.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Send: %v", err)
	}
	cmd, ok := got.(message.BasicCommand)
	if !ok || cmd.Command != want.Command {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestFramedTransportFragmentsLargeMessage(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	keysA, keysB := symmetricKeys()
	ta := NewFramedTransport(a, keysA)
	tb := NewFramedTransport(b, keysB)

	big := bytes.Repeat([]byte{0x9}, maxChunkPayload*5)
	want := message.FileData{Reference: 42, Data: big}

	errCh := make(chan error, 1)
	go func() { errCh <- ta.Send(want) }()

	got, err := tb.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Send: %v", err)
	}
	fd, ok := got.(message.FileData)
	if !ok || fd.Reference != want.Reference || !bytes.Equal(fd.Data, want.Data) {
		t.Fatal("large message round trip mismatch")
	}
}

func TestFramedTransportRejectsBadTag(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	_, keysB := symmetricKeys()
	// Deliberately mismatched keys: ta's send key is not tb's recv key.
	var wrong [32]byte
	for i := range wrong {
		wrong[i] = byte(i + 1)
	}
	ta := NewFramedTransport(a, SessionKeys{Send: wrong, Recv: wrong})
	tb := NewFramedTransport(b, keysB)

	go func() { _ = ta.Send(message.Ping{}) }()

	if _, err := tb.Receive(); err == nil {
		t.Fatal("expected a bad-tag error from mismatched keys")
	}
}

func TestHasWriteSpaceReportsDefaultOpen(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	keysA, _ := symmetricKeys()
	ta := NewFramedTransport(a, keysA)
	if !ta.HasWriteSpace() {
		t.Fatal("expected fresh transport to report write space available")
	}
	if ta.IsClosed() {
		t.Fatal("expected fresh transport to not be closed")
	}
}

func TestIsClosedAfterReadError(t *testing.T) {
	a, b := net.Pipe()
	keysA, _ := symmetricKeys()
	ta := NewFramedTransport(a, keysA)
	b.Close()
	a.SetReadDeadline(time.Now().Add(time.Second))

	if _, err := ta.Receive(); err == nil {
		t.Fatal("expected Receive to fail after peer closed")
	}
	if !ta.IsClosed() {
		t.Fatal("expected IsClosed to report true after a read error")
	}
}
