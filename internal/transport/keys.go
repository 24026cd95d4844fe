package transport

import (
	"crypto/sha512"
	"fmt"

	"golang.org/x/crypto/hkdf"

	"oxy/internal/domain"
	"oxy/internal/handshake"
	"oxy/internal/outercrypto"
)

// SessionKeys holds the two directional outercrypto keys for one connection.
type SessionKeys struct {
	Send [outercrypto.KeySize]byte
	Recv [outercrypto.KeySize]byte
}

// DeriveSessionKeys extends the completed handshake with the relationship
// PSK via HKDF-SHA512, binding the result to this specific session via the
// handshake's channel binding. This keeps the outer XChaCha20-Poly1305 keys
// independent of (not derivable from) the Noise handshake's own AESGCM
// cipher states, per SPEC_FULL.md §3.
func DeriveSessionKeys(res handshake.Result, psk [domain.PSKSize]byte, initiator bool) (SessionKeys, error) {
	r := hkdf.New(sha512.New, psk[:], res.ChannelBinding, []byte("oxy session keys"))
	var material [2 * outercrypto.KeySize]byte
	if _, err := r.Read(material[:]); err != nil {
		return SessionKeys{}, fmt.Errorf("transport: derive session keys: %w", err)
	}

	initiatorToResponder := material[:outercrypto.KeySize]
	responderToInitiator := material[outercrypto.KeySize:]

	var keys SessionKeys
	if initiator {
		copy(keys.Send[:], initiatorToResponder)
		copy(keys.Recv[:], responderToInitiator)
	} else {
		copy(keys.Send[:], responderToInitiator)
		copy(keys.Recv[:], initiatorToResponder)
	}
	return keys, nil
}
