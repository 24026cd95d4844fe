package outercrypto

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func randKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, KeySize)
	if _, err := rand.Read(k); err != nil {
		t.Fatalf("rand key: %v", err)
	}
	return k
}

func TestSealUnsealRoundTrip(t *testing.T) {
	key := randKey(t)
	mid := make([]byte, MidSize)
	if _, err := rand.Read(mid); err != nil {
		t.Fatalf("rand mid: %v", err)
	}

	outer, err := Seal(key, mid)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if len(outer) != OuterSize {
		t.Fatalf("outer size = %d, want %d", len(outer), OuterSize)
	}

	got, err := Unseal(key, outer)
	if err != nil {
		t.Fatalf("unseal: %v", err)
	}
	if !bytes.Equal(got, mid) {
		t.Fatalf("round trip mismatch")
	}
}

func TestUnsealRejectsBitFlip(t *testing.T) {
	key := randKey(t)
	mid := make([]byte, MidSize)
	outer, err := Seal(key, mid)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	outer[len(outer)-1] ^= 0x01

	if _, err := Unseal(key, outer); !errors.Is(err, ErrBadTag) {
		t.Fatalf("expected ErrBadTag, got %v", err)
	}
}

func TestSealPanicsOnWrongMidSize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on wrong mid size")
		}
	}()
	_, _ = Seal(randKey(t), make([]byte, MidSize-1))
}
