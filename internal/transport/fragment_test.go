package transport

import (
	"bytes"
	"testing"
)

func TestFragmentSingleChunkRoundTrip(t *testing.T) {
	frame := []byte("small message")
	chunks := fragmentFrame(1, frame)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}

	r := newReassembler()
	got, done, err := r.feed(chunks[0])
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if !done {
		t.Fatal("expected single chunk to complete the message")
	}
	if !bytes.Equal(got, frame) {
		t.Fatalf("got %q, want %q", got, frame)
	}
}

func TestFragmentMultiChunkRoundTrip(t *testing.T) {
	frame := bytes.Repeat([]byte{0x42}, maxChunkPayload*3+17)
	chunks := fragmentFrame(7, frame)
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}

	r := newReassembler()
	var got []byte
	var done bool
	var err error
	for i, c := range chunks {
		got, done, err = r.feed(c)
		if err != nil {
			t.Fatalf("feed chunk %d: %v", i, err)
		}
		if i < len(chunks)-1 && done {
			t.Fatalf("chunk %d unexpectedly completed the message", i)
		}
	}
	if !done {
		t.Fatal("expected last chunk to complete the message")
	}
	if !bytes.Equal(got, frame) {
		t.Fatal("reassembled frame does not match original")
	}
}

func TestFragmentInterleavedMessages(t *testing.T) {
	frameA := bytes.Repeat([]byte{0xAA}, maxChunkPayload+5)
	frameB := []byte("second message")

	chunksA := fragmentFrame(1, frameA)
	chunksB := fragmentFrame(2, frameB)

	r := newReassembler()
	if _, done, err := r.feed(chunksA[0]); err != nil || done {
		t.Fatalf("unexpected state after first chunk of A: done=%v err=%v", done, err)
	}
	gotB, doneB, err := r.feed(chunksB[0])
	if err != nil || !doneB {
		t.Fatalf("expected B to complete immediately: done=%v err=%v", doneB, err)
	}
	if !bytes.Equal(gotB, frameB) {
		t.Fatal("B mismatch")
	}
	gotA, doneA, err := r.feed(chunksA[1])
	if err != nil || !doneA {
		t.Fatalf("expected A to complete on its second chunk: done=%v err=%v", doneA, err)
	}
	if !bytes.Equal(gotA, frameA) {
		t.Fatal("A mismatch")
	}
}

func TestFragmentRejectsOutOfOrderChunks(t *testing.T) {
	frame := bytes.Repeat([]byte{0x01}, maxChunkPayload+1)
	chunks := fragmentFrame(1, frame)

	r := newReassembler()
	if _, _, err := r.feed(chunks[1]); err != ErrSequenceGap {
		t.Fatalf("expected ErrSequenceGap, got %v", err)
	}
}
