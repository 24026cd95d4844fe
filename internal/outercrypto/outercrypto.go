// Package outercrypto seals and unseals the fixed-size outer packets that
// carry every post-knock datagram on the wire. Fixed sizes defeat
// length-based traffic analysis; see SPEC_FULL.md §4.1.
package outercrypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// MidSize is the plaintext width of the mid-packet carried inside every
	// outer packet.
	MidSize = 296
	// NonceSize is the width of the XChaCha20-Poly1305 nonce.
	NonceSize = chacha20poly1305.NonceSizeX
	// TagSize is the width of the Poly1305 authentication tag.
	TagSize = 16
	// OuterSize is the total wire size of a sealed outer packet.
	OuterSize = NonceSize + MidSize + TagSize
	// KeySize is the width of the session AEAD key.
	KeySize = chacha20poly1305.KeySize
)

// ErrBadTag is returned when AEAD verification rejects an inbound packet.
var ErrBadTag = errors.New("outercrypto: bad tag")

func init() {
	// Compile-time-ish cross-check: these constants must line up or every
	// seal/unseal call below is silently wrong.
	if NonceSize+MidSize+TagSize != OuterSize {
		panic("outercrypto: inconsistent size constants")
	}
}

// Seal encrypts a MidSize plaintext into an OuterSize outer packet. key must
// be KeySize bytes and mid must be exactly MidSize bytes; both are caller
// invariants, not recoverable errors, since violating them is a programmer
// bug rather than a wire-level fault.
func Seal(key []byte, mid []byte) ([]byte, error) {
	if len(key) != KeySize {
		panic(fmt.Sprintf("outercrypto: key must be %d bytes, got %d", KeySize, len(key)))
	}
	if len(mid) != MidSize {
		panic(fmt.Sprintf("outercrypto: mid-packet must be %d bytes, got %d", MidSize, len(mid)))
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("outercrypto: new aead: %w", err)
	}

	nonce := make([]byte, NonceSize, OuterSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("outercrypto: rand nonce: %w", err)
	}

	out := aead.Seal(nonce, nonce, mid, nil)
	return out, nil
}

// Unseal decrypts an OuterSize outer packet back into a MidSize plaintext.
// Returns ErrBadTag if AEAD verification fails.
func Unseal(key []byte, outer []byte) ([]byte, error) {
	if len(key) != KeySize {
		panic(fmt.Sprintf("outercrypto: key must be %d bytes, got %d", KeySize, len(key)))
	}
	if len(outer) != OuterSize {
		panic(fmt.Sprintf("outercrypto: outer packet must be %d bytes, got %d", OuterSize, len(outer)))
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("outercrypto: new aead: %w", err)
	}

	nonce, ciphertext := outer[:NonceSize], outer[NonceSize:]
	mid, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrBadTag
	}
	return mid, nil
}
