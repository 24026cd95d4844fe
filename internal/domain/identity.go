// Package domain holds the long-lived value types shared across the protocol
// stack: key material, peer relationships, and the peer table that resolves
// them.
package domain

import "fmt"

// StaticKeySize is the width of a Curve25519 static key (public or private).
const StaticKeySize = 32

// PSKSize is the width of a Noise pre-shared key.
const PSKSize = 32

// KnockSecretSize is the width of a per-peer knock secret.
const KnockSecretSize = 32

// StaticKeypair is a party's long-term Curve25519 identity.
type StaticKeypair struct {
	Private [StaticKeySize]byte
	Public  [StaticKeySize]byte
}

// Peer is one named relationship: the peer's public key plus the shared
// secrets that bind a conversation with it.
type Peer struct {
	Name         string
	PublicKey    [StaticKeySize]byte
	PSK          [PSKSize]byte
	KnockSecret  [KnockSecretSize]byte
	SetUser      string // optional privilege-drop target, responder side only
	ForcedCmd    string // forced_command from the peer's config entry; not applied by the responder's policy, which uses the server-level setting only
}

// PeerTable resolves peers by name or by public key. Lookups by public key
// are what the responder side of the handshake needs to find the right PSK
// once it has peeked the initiator's static key out of message one.
type PeerTable struct {
	byName map[string]*Peer
	byKey  map[[StaticKeySize]byte]*Peer
}

// NewPeerTable builds a lookup table from a flat peer list. A peer with a
// duplicate name or public key is a configuration error.
func NewPeerTable(peers []Peer) (*PeerTable, error) {
	t := &PeerTable{
		byName: make(map[string]*Peer, len(peers)),
		byKey:  make(map[[StaticKeySize]byte]*Peer, len(peers)),
	}
	for i := range peers {
		p := &peers[i]
		if _, dup := t.byName[p.Name]; dup {
			return nil, fmt.Errorf("duplicate peer name %q", p.Name)
		}
		if _, dup := t.byKey[p.PublicKey]; dup {
			return nil, fmt.Errorf("duplicate peer public key for %q", p.Name)
		}
		t.byName[p.Name] = p
		t.byKey[p.PublicKey] = p
	}
	return t, nil
}

func (t *PeerTable) ByName(name string) (*Peer, bool) {
	p, ok := t.byName[name]
	return p, ok
}

func (t *PeerTable) ByPublicKey(key [StaticKeySize]byte) (*Peer, bool) {
	p, ok := t.byKey[key]
	return p, ok
}

func (t *PeerTable) Len() int { return len(t.byName) }

// Names returns every configured peer name, in no particular order.
func (t *PeerTable) Names() []string {
	names := make([]string, 0, len(t.byName))
	for name := range t.byName {
		names = append(names, name)
	}
	return names
}
