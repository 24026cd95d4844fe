package handshake

import (
	"crypto/rand"
	"fmt"

	"github.com/flynn/noise"

	"oxy/internal/domain"
)

// GenerateStaticKeypair creates a new Curve25519 static identity.
func GenerateStaticKeypair() (domain.StaticKeypair, error) {
	kp, err := noise.DH25519.GenerateKeypair(rand.Reader)
	if err != nil {
		return domain.StaticKeypair{}, fmt.Errorf("handshake: generate static keypair: %w", err)
	}
	var out domain.StaticKeypair
	copy(out.Private[:], kp.Private)
	copy(out.Public[:], kp.Public)
	return out, nil
}
