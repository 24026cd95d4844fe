package transport

import (
	"encoding/binary"
	"errors"
	"fmt"

	"oxy/internal/outercrypto"
)

// chunkHeaderSize is the width of the fragmentation header prepended to
// every mid-packet: msgSeq(4) + chunkIndex(2) + final(1) + payloadLen(2).
const chunkHeaderSize = 4 + 2 + 1 + 2

// maxChunkPayload is the largest logical-frame slice that fits in one
// mid-packet alongside the fragmentation header.
const maxChunkPayload = outercrypto.MidSize - chunkHeaderSize

var (
	// ErrChunkTooShort is returned when a mid-packet is too small to hold a
	// fragmentation header.
	ErrChunkTooShort = errors.New("transport: mid-packet shorter than fragmentation header")
	// ErrSequenceGap is returned when a reassembler observes chunk indices
	// out of order for a given message sequence number.
	ErrSequenceGap = errors.New("transport: out-of-order fragment")
)

type chunkHeader struct {
	msgSeq     uint32
	chunkIndex uint16
	final      bool
	payloadLen uint16
}

func encodeChunk(h chunkHeader, payload []byte) []byte {
	mid := make([]byte, outercrypto.MidSize)
	binary.BigEndian.PutUint32(mid[0:4], h.msgSeq)
	binary.BigEndian.PutUint16(mid[4:6], h.chunkIndex)
	if h.final {
		mid[6] = 1
	}
	binary.BigEndian.PutUint16(mid[7:9], h.payloadLen)
	copy(mid[chunkHeaderSize:], payload)
	return mid
}

func decodeChunk(mid []byte) (chunkHeader, []byte, error) {
	if len(mid) != outercrypto.MidSize {
		return chunkHeader{}, nil, ErrChunkTooShort
	}
	h := chunkHeader{
		msgSeq:     binary.BigEndian.Uint32(mid[0:4]),
		chunkIndex: binary.BigEndian.Uint16(mid[4:6]),
		final:      mid[6] != 0,
		payloadLen: binary.BigEndian.Uint16(mid[7:9]),
	}
	if int(h.payloadLen) > maxChunkPayload {
		return chunkHeader{}, nil, fmt.Errorf("transport: chunk claims payload of %d, max is %d", h.payloadLen, maxChunkPayload)
	}
	return h, mid[chunkHeaderSize : chunkHeaderSize+int(h.payloadLen)], nil
}

// fragmentFrame splits one logical frame into sequential MidSize-padded
// mid-packets tagged with msgSeq. A frame that fits in a single chunk is
// tagged final on chunk zero.
func fragmentFrame(msgSeq uint32, frame []byte) [][]byte {
	if len(frame) == 0 {
		return [][]byte{encodeChunk(chunkHeader{msgSeq: msgSeq, chunkIndex: 0, final: true, payloadLen: 0}, nil)}
	}

	var chunks [][]byte
	var idx uint16
	for off := 0; off < len(frame); off += maxChunkPayload {
		end := off + maxChunkPayload
		if end > len(frame) {
			end = len(frame)
		}
		final := end == len(frame)
		chunks = append(chunks, encodeChunk(chunkHeader{
			msgSeq:     msgSeq,
			chunkIndex: idx,
			final:      final,
			payloadLen: uint16(end - off),
		}, frame[off:end]))
		idx++
	}
	return chunks
}

// reassembler accumulates fragments of in-flight messages, keyed by msgSeq,
// until a final chunk completes one. It tolerates interleaved messages (more
// than one msgSeq in flight at once) but requires each message's own chunks
// to arrive with strictly increasing chunkIndex.
type reassembler struct {
	pending map[uint32][]byte
	next    map[uint32]uint16
}

func newReassembler() *reassembler {
	return &reassembler{pending: map[uint32][]byte{}, next: map[uint32]uint16{}}
}

// feed processes one decrypted mid-packet. It returns a completed frame and
// true once the message's final chunk arrives, or (nil, false) while a
// message is still assembling.
func (r *reassembler) feed(mid []byte) ([]byte, bool, error) {
	h, payload, err := decodeChunk(mid)
	if err != nil {
		return nil, false, err
	}
	if h.chunkIndex != r.next[h.msgSeq] {
		return nil, false, ErrSequenceGap
	}
	r.pending[h.msgSeq] = append(r.pending[h.msgSeq], payload...)
	r.next[h.msgSeq] = h.chunkIndex + 1

	if !h.final {
		return nil, false, nil
	}

	out := r.pending[h.msgSeq]
	delete(r.pending, h.msgSeq)
	delete(r.next, h.msgSeq)
	return out, true, nil
}
