// Package handshake wraps a Noise_IKpsk1_25519_AESGCM_SHA512 handshake
// (github.com/flynn/noise) to authenticate a connection and derive its
// session transport keys. See SPEC_FULL.md §4.3.
package handshake

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha512"
	"errors"
	"fmt"

	"github.com/flynn/noise"
	"golang.org/x/crypto/hkdf"

	"oxy/internal/domain"
)

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherAESGCM, noise.HashSHA512)

// Errors that make a handshake attempt connection-fatal.
var (
	ErrUnknownPeer  = errors.New("handshake: initiator static key not found in peer table")
	ErrBadPSKLength = errors.New("handshake: preshared key must be 32 bytes")
	ErrShortMessage = noise.ErrShortMessage
)

// Result is the outcome of a completed handshake: the two directional
// cipher states, the name of the peer the session was bound to, and the
// handshake hash to bind any further key derivation to this specific session.
type Result struct {
	// Send encrypts traffic going to the remote party.
	Send *noise.CipherState
	// Recv decrypts traffic coming from the remote party.
	Recv *noise.CipherState
	// PeerName is the resolved peer relationship this session authenticated as.
	PeerName string
	// ChannelBinding uniquely identifies this completed handshake; transport
	// session keys are derived from it together with the relationship PSK so
	// that session keys are distinct from (and not derivable from) the
	// Noise handshake's own AESGCM cipher states.
	ChannelBinding []byte
}

// rawTransport is the minimal synchronous length-prefixed byte transport the
// handshake runs over before a FramedTransport exists; transport.RawFrame
// implements it.
type rawTransport interface {
	WriteFrame(payload []byte) error
	ReadFrame() ([]byte, error)
}

// RunInitiator performs the "Alice" side: write message one with our static
// key, the peer's static key and the PSK at position 1, then consume the
// responder's reply.
func RunInitiator(rt rawTransport, self domain.StaticKeypair, peer domain.Peer) (Result, error) {
	if len(peer.PSK) != domain.PSKSize {
		return Result{}, ErrBadPSKLength
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:           cipherSuite,
		Pattern:               noise.HandshakeIK,
		Initiator:             true,
		StaticKeypair:         noise.DHKey{Private: self.Private[:], Public: self.Public[:]},
		PeerStatic:            peer.PublicKey[:],
		PresharedKey:          peer.PSK[:],
		PresharedKeyPlacement: 1,
	})
	if err != nil {
		return Result{}, fmt.Errorf("handshake: build initiator state: %w", err)
	}

	msg1, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return Result{}, fmt.Errorf("handshake: write message one: %w", err)
	}
	if err := rt.WriteFrame(msg1); err != nil {
		return Result{}, fmt.Errorf("handshake: send message one: %w", err)
	}

	msg2, err := rt.ReadFrame()
	if err != nil {
		return Result{}, fmt.Errorf("handshake: receive message two: %w", err)
	}
	_, cs1, cs2, err := hs.ReadMessage(nil, msg2)
	if err != nil {
		return Result{}, fmt.Errorf("handshake: read message two: %w", err)
	}
	if cs1 == nil || cs2 == nil {
		return Result{}, errors.New("handshake: initiator did not complete on message two")
	}

	return Result{Send: cs1, Recv: cs2, PeerName: peer.Name, ChannelBinding: hs.ChannelBinding()}, nil
}

// RunResponder performs the "Bob" side. It first peeks message one (using
// only its own static key, no PSK) to recover the initiator's static public
// key, looks that key up in the peer table to find the matching PSK, then
// restarts the handshake from scratch bound to that PSK and re-consumes the
// original message.
func RunResponder(rt rawTransport, self domain.StaticKeypair, peers *domain.PeerTable) (Result, error) {
	msg1, err := rt.ReadFrame()
	if err != nil {
		return Result{}, fmt.Errorf("handshake: receive message one: %w", err)
	}

	clientStatic, err := peekInitiatorStatic(self, msg1)
	if err != nil {
		return Result{}, fmt.Errorf("handshake: peek initiator static key: %w", err)
	}

	peer, ok := peers.ByPublicKey(clientStatic)
	if !ok {
		return Result{}, ErrUnknownPeer
	}
	if len(peer.PSK) != domain.PSKSize {
		return Result{}, ErrBadPSKLength
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:           cipherSuite,
		Pattern:               noise.HandshakeIK,
		Initiator:             false,
		StaticKeypair:         noise.DHKey{Private: self.Private[:], Public: self.Public[:]},
		PresharedKey:          peer.PSK[:],
		PresharedKeyPlacement: 1,
	})
	if err != nil {
		return Result{}, fmt.Errorf("handshake: build responder state: %w", err)
	}

	if _, _, _, err := hs.ReadMessage(nil, msg1); err != nil {
		return Result{}, fmt.Errorf("handshake: read message one (bound to psk): %w", err)
	}

	msg2, cs1, cs2, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return Result{}, fmt.Errorf("handshake: write message two: %w", err)
	}
	if cs1 == nil || cs2 == nil {
		return Result{}, errors.New("handshake: responder did not complete on message two")
	}
	if err := rt.WriteFrame(msg2); err != nil {
		return Result{}, fmt.Errorf("handshake: send message two: %w", err)
	}

	// On both sides cs1 protects initiator-to-responder traffic and cs2 the
	// reverse, so the responder sends with cs2 and receives with cs1.
	return Result{Send: cs2, Recv: cs1, PeerName: peer.Name, ChannelBinding: hs.ChannelBinding()}, nil
}

// peekInitiatorStatic replays, by hand, the portion of the
// Noise_IKpsk1_25519_AESGCM_SHA512 token sequence needed to recover the
// initiator's static public key from message one: MixHash of the responder's
// own static key (the IK pre-message), then the e and es tokens, then
// decryption of the s token. None of those steps depend on the PSK value
// itself -- the PSK token is appended at the end of message one's pattern,
// strictly after the s token -- so this is safe to do before the real PSK is
// known. It deliberately does not go on to process the ss or psk tokens or
// the message payload, since those DO depend on the (still unknown) PSK.
func peekInitiatorStatic(self domain.StaticKeypair, msg1 []byte) ([32]byte, error) {
	const dhLen = 32
	const tagLen = 16
	if len(msg1) < dhLen+dhLen+tagLen {
		return [32]byte{}, ErrShortMessage
	}

	h := protocolHash()
	h = mixHash(h, self.Public[:]) // IK responder pre-message: our own static key
	ck := h[:]

	e := msg1[:dhLen]
	h = mixHash(h, e)
	// IKpsk1 mixes every "e" token into the key, not just the psk token
	// itself; this is unconditional on the pattern's psk modifier and does
	// not require knowing the PSK's value.
	ck, _ = mixKey(ck, e)

	dh, err := noise.DH25519.DH(self.Private[:], e)
	if err != nil {
		return [32]byte{}, fmt.Errorf("dh(es): %w", err)
	}
	_, k := mixKey(ck, dh)

	sCiphertext := msg1[dhLen : dhLen+dhLen+tagLen]
	plain, err := aeadOpen(k, h[:], sCiphertext)
	if err != nil {
		return [32]byte{}, fmt.Errorf("decrypt s token: %w", err)
	}

	var out [32]byte
	copy(out[:], plain)
	return out, nil
}

const protocolName = "Noise_IKpsk1_25519_AESGCM_SHA512"

// protocolHash returns h0: the protocol name, zero-padded to HASHLEN (64 for
// SHA-512), then MixHash'd with an empty prologue.
func protocolHash() [64]byte {
	var h [64]byte
	copy(h[:], protocolName)
	return mixHash(h, nil)
}

func mixHash(h [64]byte, data []byte) [64]byte {
	sum := sha512.Sum512(append(append([]byte{}, h[:]...), data...))
	return sum
}

// mixKey runs the Noise HKDF(chaining_key, input_key_material, 2) step and
// returns the new chaining key and the 32-byte AEAD key derived from it.
func mixKey(chainingKey []byte, inputKeyMaterial []byte) (ck []byte, k []byte) {
	r := hkdf.New(sha512.New, inputKeyMaterial, chainingKey, nil)
	out := make([]byte, 64+64)
	if _, err := r.Read(out); err != nil {
		panic(fmt.Sprintf("handshake: hkdf read: %v", err))
	}
	return out[:64], out[64 : 64+32]
}

// aeadOpen decrypts a Noise handshake token using AES-GCM with a 32-byte
// key, the zero nonce (n=0, the first use of a freshly mixed key), and ad
// as associated data.
func aeadOpen(key, ad, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	return gcm.Open(nil, nonce, ciphertext, ad)
}
