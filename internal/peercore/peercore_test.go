package peercore

import (
	"context"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"oxy/internal/domain"
	"oxy/internal/message"
)

// fakeTransport is an in-memory substitute for transport.FramedTransport:
// sent messages go onto outbox, and Receive drains an inbox fed by the test.
// Both peercore.Transport implementers stay symmetric with the real one so
// Core's logic can be exercised without a Noise handshake or AEAD sealing.
type fakeTransport struct {
	mu       sync.Mutex
	outbox   []message.Message
	inbox    chan message.Message
	closed   bool
	writable bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbox: make(chan message.Message, 64), writable: true}
}

func (f *fakeTransport) Send(m message.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return net.ErrClosed
	}
	f.outbox = append(f.outbox, m)
	return nil
}

func (f *fakeTransport) Receive() (message.Message, error) {
	m, ok := <-f.inbox
	if !ok {
		return nil, net.ErrClosed
	}
	return m, nil
}

func (f *fakeTransport) HasWriteSpace() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writable
}

func (f *fakeTransport) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.inbox)
	}
	return nil
}

func (f *fakeTransport) deliver(m message.Message) {
	f.inbox <- m
}

func (f *fakeTransport) sent() []message.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]message.Message, len(f.outbox))
	copy(out, f.outbox)
	return out
}

// newTestCore builds an authenticated Core wired to a fakeTransport, bypassing
// Launch's handshake so dispatch logic can be tested directly. exitFn is
// overridden to record instead of terminating the process, per SetExitFunc's
// documented test seam.
func newTestCore(t *testing.T) (*Core, *fakeTransport, *int) {
	t.Helper()
	conn, peer := net.Pipe()
	t.Cleanup(func() { _ = conn.Close(); _ = peer.Close() })

	log := logrus.NewEntry(logrus.New())
	core := newCore(conn, RoleResponder, domain.StaticKeypair{}, log)
	ft := newFakeTransport()
	core.transport = ft
	core.state.Store(int32(StateAuthenticated))

	exitCode := new(int)
	*exitCode = -1
	core.SetExitFunc(func(code int) { *exitCode = code })

	ctx := context.Background()
	go core.recvLoop(ctx)
	go core.run(ctx)

	t.Cleanup(func() { core.Exit(0) })
	return core, ft, exitCode
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestDispatchRepliesPongToPing(t *testing.T) {
	_, ft, _ := newTestCore(t)

	ft.deliver(message.Ping{})
	waitFor(t, func() bool { return len(ft.sent()) == 1 })

	sent := ft.sent()
	if _, ok := sent[0].(message.Pong); !ok {
		t.Fatalf("expected Pong reply to Ping, got %T", sent[0])
	}
}

func TestWatcherFiresAndSelfUnregisters(t *testing.T) {
	core, ft, _ := newTestCore(t)

	var mu sync.Mutex
	var pingsSeen int
	done := make(chan struct{})
	var doneOnce sync.Once

	core.postSync(func(c *Core) {
		c.Watch(func(m message.Message) bool {
			mu.Lock()
			if _, ok := m.(message.Ping); ok {
				pingsSeen++
			}
			mu.Unlock()
			if _, ok := m.(message.Success); ok {
				doneOnce.Do(func() { close(done) })
				return true
			}
			return false
		})
	})

	ft.deliver(message.Ping{})
	ft.deliver(message.Success{Reference: 7})
	ft.deliver(message.Ping{})

	<-done
	// Drain the loop once more so the second Ping (post-unregister) has been
	// dispatched before we assert on the count.
	core.postSync(func(c *Core) {})

	mu.Lock()
	defer mu.Unlock()
	if pingsSeen != 1 {
		t.Fatalf("watcher should have unregistered after Success, saw %d Pings", pingsSeen)
	}
}

func TestSendHookReentrantAppend(t *testing.T) {
	core, _, _ := newTestCore(t)

	var mu sync.Mutex
	calls := 0
	second := make(chan struct{})

	core.postSync(func(c *Core) {
		c.PushSendHook(func(c *Core) bool {
			mu.Lock()
			calls++
			mu.Unlock()
			c.PushSendHook(func(c *Core) bool {
				mu.Lock()
				calls++
				mu.Unlock()
				close(second)
				return false
			})
			return false
		})
	})

	core.postSync(func(c *Core) {})
	<-second
	core.postSync(func(c *Core) {})

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("expected both hooks to run in the same pass, calls=%d", calls)
	}
}

func TestFileDownloadChunking(t *testing.T) {
	_, ft, _ := newTestCore(t)

	dir := t.TempDir()
	path := dir + "/data.bin"
	payload := make([]byte, fileReadChunk+10)
	for i := range payload {
		payload[i] = byte(i)
	}
	writeFile(t, path, payload)

	ft.deliver(message.DownloadRequest{Path: path})

	waitFor(t, func() bool {
		return countFileData(ft.sent()) >= 3 // two data chunks + EOF marker
	})

	var reassembled []byte
	eofSeen := false
	for _, m := range ft.sent() {
		fd, ok := m.(message.FileData)
		if !ok {
			continue
		}
		if len(fd.Data) == 0 {
			eofSeen = true
			continue
		}
		reassembled = append(reassembled, fd.Data...)
	}
	if !eofSeen {
		t.Fatal("expected an empty FileData EOF marker")
	}
	if len(reassembled) != len(payload) {
		t.Fatalf("reassembled %d bytes, want %d", len(reassembled), len(payload))
	}
}

func TestFileUploadCompletion(t *testing.T) {
	core, ft, _ := newTestCore(t)

	dir := t.TempDir()
	path := dir + "/uploaded.bin"

	ft.deliver(message.UploadRequest{Path: path})

	var ref uint64
	waitFor(t, func() bool {
		found := false
		core.postSync(func(c *Core) {
			for r, recv := range c.uploads {
				if recv.path == path {
					ref = r
					found = true
				}
			}
		})
		return found
	})

	ft.deliver(message.FileData{Reference: ref, Data: []byte("hello world")})
	ft.deliver(message.FileData{Reference: ref})

	waitFor(t, func() bool {
		for _, m := range ft.sent() {
			if s, ok := m.(message.Success); ok && s.Reference == ref {
				return true
			}
		}
		return false
	})

	got := readFile(t, path)
	if string(got) != "hello world" {
		t.Fatalf("uploaded content = %q, want %q", got, "hello world")
	}
}

func TestForwardBridging(t *testing.T) {
	core, ft, _ := newTestCore(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	ft.deliver(message.RemoteOpen{Addr: ln.Addr().String()})

	var remoteConn net.Conn
	select {
	case remoteConn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dialed connection")
	}
	t.Cleanup(func() { _ = remoteConn.Close() })

	if _, err := remoteConn.Write([]byte("ping")); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		for _, m := range ft.sent() {
			if d, ok := m.(message.LocalStreamData); ok && string(d.Data) == "ping" {
				return true
			}
		}
		return false
	})

	var ref uint64
	core.postSync(func(c *Core) {
		for r := range c.forwards {
			ref = r
		}
	})

	ft.deliver(message.RemoteStreamData{Reference: ref, Data: []byte("pong")})

	buf := make([]byte, 4)
	_ = remoteConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := remoteConn.Read(buf)
	if err != nil || string(buf[:n]) != "pong" {
		t.Fatalf("expected to read back 'pong', got %q err=%v", buf[:n], err)
	}
}

func countFileData(sent []message.Message) int {
	n := 0
	for _, m := range sent {
		if _, ok := m.(message.FileData); ok {
			n++
		}
	}
	return n
}
