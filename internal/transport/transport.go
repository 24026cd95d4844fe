// Package transport implements the two wire stages a connection passes
// through: RawFrame, a bare length-prefixed byte stream used only to carry
// the Noise handshake messages, and FramedTransport, the fragmenting,
// AEAD-sealed message stream used for everything after the handshake
// completes. See SPEC_FULL.md §4.4.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"oxy/internal/message"
	"oxy/internal/outercrypto"
)

// maxRawFrame bounds the pre-handshake length prefix so a hostile peer
// cannot make us allocate an unbounded buffer before any authentication has
// happened.
const maxRawFrame = 4096

var ErrFrameTooLarge = errors.New("transport: frame exceeds maximum raw frame size")

// RawFrame is a length-prefixed (4-byte big-endian) byte stream over a
// net.Conn, used only to exchange the two Noise handshake messages before a
// FramedTransport exists.
type RawFrame struct {
	conn net.Conn
	mu   sync.Mutex
}

func NewRawFrame(conn net.Conn) *RawFrame {
	return &RawFrame{conn: conn}
}

func (t *RawFrame) WriteFrame(payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(payload) > maxRawFrame {
		return ErrFrameTooLarge
	}
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, uint32(len(payload)))
	if _, err := t.conn.Write(hdr); err != nil {
		return fmt.Errorf("transport: write raw header: %w", err)
	}
	if _, err := t.conn.Write(payload); err != nil {
		return fmt.Errorf("transport: write raw payload: %w", err)
	}
	return nil
}

func (t *RawFrame) ReadFrame() ([]byte, error) {
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(t.conn, hdr); err != nil {
		return nil, fmt.Errorf("transport: read raw header: %w", err)
	}
	n := binary.BigEndian.Uint32(hdr)
	if n > maxRawFrame {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(t.conn, buf); err != nil {
		return nil, fmt.Errorf("transport: read raw payload: %w", err)
	}
	return buf, nil
}

// writeQueueHighWaterMark is the point at which HasWriteSpace starts
// reporting back pressure. net.Conn does not expose real socket send-buffer
// occupancy, so this approximates it with a bounded internal queue depth.
const writeQueueHighWaterMark = 64

// FramedTransport is the post-handshake transport: every Send serializes a
// message, fragments it into MidSize chunks, seals each chunk with
// outercrypto, and writes it as an OuterSize packet. Receive reverses the
// process and reassembles fragments back into whole messages.
type FramedTransport struct {
	conn net.Conn

	sendKey [outercrypto.KeySize]byte
	recvKey [outercrypto.KeySize]byte

	writeMu  sync.Mutex
	sendSeq  uint32
	inFlight int32

	reassembler *reassembler

	closed atomic.Bool
}

func NewFramedTransport(conn net.Conn, keys SessionKeys) *FramedTransport {
	return &FramedTransport{
		conn:        conn,
		sendKey:     keys.Send,
		recvKey:     keys.Recv,
		reassembler: newReassembler(),
	}
}

// Send encodes and transmits one logical message, serialized into one or
// more sealed outer packets.
func (t *FramedTransport) Send(m message.Message) error {
	frame := message.Encode(m)
	seq := atomic.AddUint32(&t.sendSeq, 1)
	chunks := fragmentFrame(seq, frame)

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	atomic.AddInt32(&t.inFlight, 1)
	defer atomic.AddInt32(&t.inFlight, -1)

	for _, mid := range chunks {
		outer, err := outercrypto.Seal(t.sendKey[:], mid)
		if err != nil {
			return fmt.Errorf("transport: seal chunk: %w", err)
		}
		if _, err := t.conn.Write(outer); err != nil {
			return fmt.Errorf("transport: write outer packet: %w", err)
		}
	}
	return nil
}

// Receive blocks until one full logical message has been reassembled and
// decoded, or an error (including a bad tag or a codec failure) occurs.
func (t *FramedTransport) Receive() (message.Message, error) {
	for {
		mid, err := t.readOuterPacket()
		if err != nil {
			return nil, err
		}
		complete, done, err := t.reassembler.feed(mid)
		if err != nil {
			return nil, fmt.Errorf("transport: reassemble: %w", err)
		}
		if !done {
			continue
		}
		m, err := message.Decode(complete)
		if err != nil {
			return nil, fmt.Errorf("transport: decode message: %w", err)
		}
		return m, nil
	}
}

// BadFrame describes one frame ReceiveTolerant skipped instead of failing
// the stream over.
type BadFrame struct {
	Err error
}

// ReceiveTolerant behaves like Receive but reports decode failures to onBad
// instead of returning them, reading the next frame instead. Transport-level
// errors (a closed connection, a bad AEAD tag) still terminate the stream,
// since those indicate the stream itself can no longer be trusted.
func (t *FramedTransport) ReceiveTolerant(onBad func(BadFrame)) (message.Message, error) {
	for {
		mid, err := t.readOuterPacket()
		if err != nil {
			return nil, err
		}
		complete, done, err := t.reassembler.feed(mid)
		if err != nil {
			if onBad != nil {
				onBad(BadFrame{Err: err})
			}
			continue
		}
		if !done {
			continue
		}
		m, err := message.Decode(complete)
		if err != nil {
			if onBad != nil {
				onBad(BadFrame{Err: err})
			}
			continue
		}
		return m, nil
	}
}

func (t *FramedTransport) readOuterPacket() ([]byte, error) {
	outer := make([]byte, outercrypto.OuterSize)
	if _, err := io.ReadFull(t.conn, outer); err != nil {
		t.closed.Store(true)
		return nil, fmt.Errorf("transport: read outer packet: %w", err)
	}
	mid, err := outercrypto.Unseal(t.recvKey[:], outer)
	if err != nil {
		return nil, err
	}
	return mid, nil
}

// HasWriteSpace reports whether Send is unlikely to block for long. It is
// advisory: a true result does not guarantee a subsequent Send won't block,
// only that the outbound queue isn't already backed up.
func (t *FramedTransport) HasWriteSpace() bool {
	return atomic.LoadInt32(&t.inFlight) < writeQueueHighWaterMark
}

// IsClosed reports whether the underlying connection has observed a
// terminal read error.
func (t *FramedTransport) IsClosed() bool {
	return t.closed.Load()
}

func (t *FramedTransport) Close() error {
	t.closed.Store(true)
	return t.conn.Close()
}
