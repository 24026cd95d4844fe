// Package message implements the closed tagged-union wire codec described
// in SPEC_FULL.md §4.5 and §6. Encoding is hand-written and deterministic
// (fixed-width big-endian integers, length-prefixed byte/string fields) so
// that an unrecognized tag decodes to a RawMessage instead of failing the
// whole frame -- new variants can be added at either end without breaking
// older peers.
package message

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Tag identifies a message variant on the wire.
type Tag uint16

const (
	TagDummy Tag = iota + 1
	TagPing
	TagPong
	TagReject
	TagSuccess
	TagBasicCommand
	TagPipeCommand
	TagBasicCommandOutput
	TagPipeCommandOutput
	TagPipeCommandInput
	TagPipeCommandExited
	TagPtyRequest
	TagPtySizeAdvertisement
	TagPtyInput
	TagPtyOutput
	TagPtyExited
	TagDownloadRequest
	TagUploadRequest
	TagFileData
	TagFileTruncateRequest
	TagFileHashRequest
	TagFileHashData
	TagRemoteOpen
	TagRemoteBind
	TagBindConnectionAccepted
	TagRemoteStreamData
	TagLocalStreamData
	TagRemoteStreamClosed
	TagLocalStreamClosed
	TagTunnelRequest
	TagTunnelData
	TagStatRequest
	TagStatResult
	TagReadDir
	TagReadDirResult
	TagKnockForward
	TagUsernameAdvertisement
)

// HashAlgorithm enumerates FileHashRequest/FileHashData digest algorithms.
type HashAlgorithm uint8

const (
	HashSHA1 HashAlgorithm = iota + 1
	HashSHA256
	HashSHA512
)

// Message is implemented by every known variant plus RawMessage.
type Message interface {
	Tag() Tag
	encodeBody() []byte
}

var ErrTruncated = errors.New("message: truncated field")

// Encode serializes a message into a self-contained frame: tag (uint16) +
// body length (uint32) + body.
func Encode(m Message) []byte {
	body := m.encodeBody()
	out := make([]byte, 2+4+len(body))
	binary.BigEndian.PutUint16(out[0:2], uint16(m.Tag()))
	binary.BigEndian.PutUint32(out[2:6], uint32(len(body)))
	copy(out[6:], body)
	return out
}

// Decode parses one frame produced by Encode. Unknown tags decode to a
// RawMessage rather than failing, per SPEC_FULL.md §4.5.
func Decode(frame []byte) (Message, error) {
	if len(frame) < 6 {
		return nil, ErrTruncated
	}
	tag := Tag(binary.BigEndian.Uint16(frame[0:2]))
	n := binary.BigEndian.Uint32(frame[2:6])
	if uint32(len(frame)-6) < n {
		return nil, ErrTruncated
	}
	body := frame[6 : 6+n]

	dec, ok := decoders[tag]
	if !ok {
		return RawMessage{TagValue: tag, Payload: append([]byte(nil), body...)}, nil
	}
	return dec(body)
}

// --- encode/decode helpers -------------------------------------------------

type bodyWriter struct{ buf []byte }

func (w *bodyWriter) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *bodyWriter) u16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *bodyWriter) u32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *bodyWriter) u64(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }
func (w *bodyWriter) i32(v int32)  { w.u32(uint32(v)) }
func (w *bodyWriter) bytes(b []byte) {
	w.u32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}
func (w *bodyWriter) str(s string) { w.bytes([]byte(s)) }
func (w *bodyWriter) boolean(b bool) {
	if b {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

type bodyReader struct {
	buf []byte
	off int
}

func (r *bodyReader) need(n int) error {
	if len(r.buf)-r.off < n {
		return ErrTruncated
	}
	return nil
}

func (r *bodyReader) u8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *bodyReader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *bodyReader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *bodyReader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

func (r *bodyReader) i32() (int32, error) {
	v, err := r.u32()
	return int32(v), err
}

func (r *bodyReader) bytes() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	v := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	return v, nil
}

func (r *bodyReader) str() (string, error) {
	b, err := r.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *bodyReader) boolean() (bool, error) {
	v, err := r.u8()
	return v != 0, err
}

// optionalU64 encodes a *uint64 as a present flag followed by the value.
func (w *bodyWriter) optionalU64(v *uint64) {
	if v == nil {
		w.boolean(false)
		return
	}
	w.boolean(true)
	w.u64(*v)
}

func (r *bodyReader) optionalU64() (*uint64, error) {
	present, err := r.boolean()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	v, err := r.u64()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (w *bodyWriter) optionalStr(v *string) {
	if v == nil {
		w.boolean(false)
		return
	}
	w.boolean(true)
	w.str(*v)
}

func (r *bodyReader) optionalStr() (*string, error) {
	present, err := r.boolean()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	v, err := r.str()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

var decoders = map[Tag]func([]byte) (Message, error){}

func register(tag Tag, fn func([]byte) (Message, error)) {
	decoders[tag] = fn
}

func fail(tag Tag, err error) (Message, error) {
	return nil, fmt.Errorf("message: decode tag %d: %w", tag, err)
}
