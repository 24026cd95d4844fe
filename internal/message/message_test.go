package message

import (
	"bytes"
	"reflect"
	"testing"
)

func roundTrip(t *testing.T, m Message) Message {
	t.Helper()
	frame := Encode(m)
	got, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode %T: %v", m, err)
	}
	return got
}

func u64p(v uint64) *uint64 { return &v }
func strp(v string) *string { return &v }

func TestRoundTripVariants(t *testing.T) {
	cases := []Message{
		Dummy{Data: []byte("pad")},
		Ping{},
		Pong{},
		Reject{Reference: 7, Note: "bad command"},
		Success{Reference: 7},
		BasicCommand{Command: "uname -a"},
		PipeCommand{Command: "cat"},
		BasicCommandOutput{Stdout: []byte("out"), Stderr: []byte("err")},
		PipeCommandOutput{Reference: 3, Stdout: []byte("o"), Stderr: nil},
		PipeCommandInput{Reference: 3, Input: []byte("hi")},
		PipeCommandExited{Reference: 3},
		PtyRequest{Command: nil},
		PtyRequest{Command: strp("/bin/bash")},
		PtySizeAdvertisement{W: 80, H: 24},
		PtyInput{Data: []byte("ls\n")},
		PtyOutput{Data: []byte("total 0\n")},
		PtyExited{Status: 130},
		DownloadRequest{Path: "/etc/hosts", OffsetStart: nil, OffsetEnd: nil},
		DownloadRequest{Path: "/etc/hosts", OffsetStart: u64p(10), OffsetEnd: u64p(20)},
		UploadRequest{Path: "/tmp/x", Filepart: "x.part", OffsetStart: u64p(0)},
		FileData{Reference: 1, Data: []byte("chunk")},
		FileData{Reference: 1, Data: nil}, // EOF marker
		FileTruncateRequest{Path: "/tmp/x", Len: 0},
		FileHashRequest{Path: "/tmp/x", Algorithm: HashSHA256},
		FileHashData{Path: "/tmp/x", Algorithm: HashSHA256, Digest: bytes.Repeat([]byte{0xAB}, 32)},
		RemoteOpen{Addr: "127.0.0.1:8080"},
		RemoteBind{Addr: "0.0.0.0:9000"},
		BindConnectionAccepted{Reference: 5},
		RemoteStreamData{Reference: 5, Data: []byte("abc")},
		LocalStreamData{Reference: 5, Data: []byte("def")},
		RemoteStreamClosed{Reference: 5},
		LocalStreamClosed{Reference: 5},
		TunnelRequest{Tap: false, Name: "oxy0"},
		TunnelRequest{Tap: true, Name: "oxy-tap0"},
		TunnelData{Reference: 2, Data: []byte{1, 2, 3, 4}},
		StatRequest{Path: "/"},
		StatResult{
			Path: "/", Len: 4096, IsDir: true, IsFile: false,
			Owner: "root", Group: "root", OctalPerms: 0o755,
			ATimeUnix: 1000, MTimeUnix: 2000, CTimeUnix: 3000,
		},
		ReadDir{Path: "/home"},
		ReadDirResult{Path: "/home", Complete: true, Answers: []string{"a", "b", "c"}},
		ReadDirResult{Path: "/home", Complete: false, Answers: nil},
		KnockForward{Destination: "10.0.0.1:51820", Knock: bytes.Repeat([]byte{0x11}, 100)},
		UsernameAdvertisement{Username: "alice"},
	}

	for _, want := range cases {
		got := roundTrip(t, want)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("round trip mismatch for %T:\n got:  %#v\n want: %#v", want, got, want)
		}
	}
}

func TestDecodeUnknownTagYieldsRawMessage(t *testing.T) {
	frame := Encode(RawMessage{TagValue: Tag(9999), Payload: []byte("future")})
	got, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode unknown tag: %v", err)
	}
	raw, ok := got.(RawMessage)
	if !ok {
		t.Fatalf("expected RawMessage, got %T", got)
	}
	if raw.TagValue != 9999 || string(raw.Payload) != "future" {
		t.Fatalf("unexpected raw message: %+v", raw)
	}
}

func TestDecodeTruncatedFrame(t *testing.T) {
	if _, err := Decode([]byte{0, 1}); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated for short frame, got %v", err)
	}

	full := Encode(BasicCommand{Command: "ls"})
	if _, err := Decode(full[:len(full)-1]); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated for short body, got %v", err)
	}
}

func TestDecodeMalformedBodyField(t *testing.T) {
	// Reject expects a uint64 reference; an empty body is too short.
	frame := make([]byte, 6)
	frame[0] = 0
	frame[1] = byte(TagReject)
	_, err := Decode(frame)
	if err == nil {
		t.Fatal("expected decode error for malformed Reject body")
	}
}
