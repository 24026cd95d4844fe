// Package knock derives and verifies the time-rotated UDP knock tokens that
// gate TCP admission. See SPEC_FULL.md §3 "Knock token" and §4.2.
package knock

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/binary"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/pbkdf2"
)

// TokenSize is the width of a derived knock token.
const TokenSize = 100

const (
	windowSeconds = 60
	pbkdf2Iters   = 1024
	pbkdf2Salt    = "timeknock"
)

type cacheKey struct {
	t    int64
	peer string
}

// Codec derives and verifies knock tokens, caching recent derivations so a
// busy admission server does not re-run PBKDF2 per datagram.
type Codec struct {
	cache *lru.Cache[cacheKey, [TokenSize]byte]
}

// NewCodec builds a Codec with the spec-mandated 100-entry cache.
func NewCodec() *Codec {
	c, err := lru.New[cacheKey, [TokenSize]byte](100)
	if err != nil {
		// Only fails for a non-positive size, which 100 never is.
		panic(err)
	}
	return &Codec{cache: c}
}

func round(now int64) int64 {
	return now - (now % windowSeconds)
}

// derive computes PBKDF2-HMAC-SHA512(secret || BE64(t), salt="timeknock",
// 1024 iters, 100 bytes out), going through the cache keyed by (t, peerName).
func (c *Codec) derive(secret []byte, t int64, peerName string) [TokenSize]byte {
	key := cacheKey{t: t, peer: peerName}
	if cached, ok := c.cache.Get(key); ok {
		return cached
	}

	var be64 [8]byte
	binary.BigEndian.PutUint64(be64[:], uint64(t))

	input := make([]byte, 0, len(secret)+8)
	input = append(input, secret...)
	input = append(input, be64[:]...)

	derived := pbkdf2.Key(input, []byte(pbkdf2Salt), pbkdf2Iters, TokenSize, sha512.New)

	var token [TokenSize]byte
	copy(token[:], derived)

	c.cache.Add(key, token)
	return token
}

// Make derives the knock token for the 60-second window containing now,
// addressed to no particular peer name (used client-side, where the cache
// dimension is irrelevant because only one token is ever made per send).
func (c *Codec) Make(secret []byte, now int64) [TokenSize]byte {
	return c.derive(secret, round(now), "")
}

// Verify checks token against the windows for t, t-60 and t+60, tolerating
// up to one minute of clock skew in either direction plus window rollover.
// peerName scopes the derivation cache; pass the candidate peer's name.
func (c *Codec) Verify(secret []byte, now int64, peerName string, token []byte) bool {
	if len(token) != TokenSize {
		return false
	}
	base := round(now)
	for _, t := range [3]int64{base, base - windowSeconds, base + windowSeconds} {
		candidate := c.derive(secret, t, peerName)
		if subtle.ConstantTimeCompare(candidate[:], token) == 1 {
			return true
		}
	}
	return false
}
