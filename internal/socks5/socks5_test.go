package socks5

import (
	"net"
	"testing"
)

func TestNegotiateIPv4Connect(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	destCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		dest, err := NewSession(server).Negotiate()
		destCh <- dest
		errCh <- err
	}()

	// greeting: version 5, 1 method, no-auth
	if _, err := client.Write([]byte{0x05, 0x01, 0x00}); err != nil {
		t.Fatalf("write greeting: %v", err)
	}
	reply := make([]byte, 2)
	if _, err := client.Read(reply); err != nil {
		t.Fatalf("read greeting reply: %v", err)
	}
	if reply[0] != 0x05 || reply[1] != 0x00 {
		t.Fatalf("unexpected greeting reply: %v", reply)
	}

	// CONNECT 93.184.216.34:80
	req := []byte{0x05, 0x01, 0x00, 0x01, 93, 184, 216, 34, 0x00, 0x50}
	if _, err := client.Write(req); err != nil {
		t.Fatalf("write request: %v", err)
	}
	connReply := make([]byte, 10)
	if _, err := client.Read(connReply); err != nil {
		t.Fatalf("read connect reply: %v", err)
	}
	if connReply[1] != 0x00 {
		t.Fatalf("expected success reply, got %v", connReply)
	}

	dest := <-destCh
	if err := <-errCh; err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if want := "93.184.216.34:80"; dest != want {
		t.Fatalf("got %q, want %q", dest, want)
	}
}

func TestNegotiateDomainConnect(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	destCh := make(chan string, 1)
	go func() {
		dest, _ := NewSession(server).Negotiate()
		destCh <- dest
	}()

	client.Write([]byte{0x05, 0x01, 0x00})
	io_discard(client, 2)

	domain := "example.org"
	req := append([]byte{0x05, 0x01, 0x00, 0x03, byte(len(domain))}, []byte(domain)...)
	req = append(req, 0x01, 0xBB) // port 443
	client.Write(req)
	io_discard(client, 10)

	dest := <-destCh
	if want := "example.org:443"; dest != want {
		t.Fatalf("got %q, want %q", dest, want)
	}
}

func TestNegotiateRejectsIPv6(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := NewSession(server).Negotiate()
		errCh <- err
	}()

	client.Write([]byte{0x05, 0x01, 0x00})
	io_discard(client, 2)

	req := []byte{0x05, 0x01, 0x00, 0x04}
	req = append(req, make([]byte, 16)...)
	req = append(req, 0x00, 0x50)
	client.Write(req)
	io_discard(client, 10)

	if err := <-errCh; err != ErrNotImplemented {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}
}

func io_discard(conn net.Conn, n int) {
	buf := make([]byte, n)
	_, _ = conn.Read(buf)
}
