package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"oxy/internal/config"
	"oxy/internal/domain"
	"oxy/internal/logging"
	"oxy/internal/restrictions"
)

// newLogger builds the process-wide logger. Level is read from OXY_LOG_LEVEL
// (kept through privilege-drop's environment scrub, see
// internal/peercore/privilege.go), defaulting to info.
func newLogger() *logrus.Logger {
	level := os.Getenv("OXY_LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	return logging.New(level, os.Stderr)
}

// loadClientIdentity loads client.conf and builds the static keypair plus
// peer table a `client`/`reverse-client` command needs.
func loadClientIdentity() (domain.StaticKeypair, *domain.PeerTable, *config.ClientConfig, error) {
	mgr := config.NewClientManager()
	cfg, err := mgr.Load()
	if err != nil {
		return domain.StaticKeypair{}, nil, nil, fmt.Errorf("load client.conf: %w", err)
	}
	self, err := decodeKeypair(cfg.PrivateKey, cfg.PublicKey)
	if err != nil {
		return domain.StaticKeypair{}, nil, nil, err
	}
	table, err := buildPeerTable(cfg.Peers)
	if err != nil {
		return domain.StaticKeypair{}, nil, nil, err
	}
	return self, table, cfg, nil
}

// loadServerIdentity loads server.conf and builds the static keypair, peer
// table, and forced-command policy a `server`/`serve-one`/`reexec`/
// `reverse-server` command needs.
func loadServerIdentity() (domain.StaticKeypair, *domain.PeerTable, *config.ServerConfig, restrictions.Policy, error) {
	mgr := config.NewServerManager()
	cfg, err := mgr.Load()
	if err != nil {
		return domain.StaticKeypair{}, nil, nil, restrictions.Policy{}, fmt.Errorf("load server.conf: %w", err)
	}
	self, err := decodeKeypair(cfg.PrivateKey, cfg.PublicKey)
	if err != nil {
		return domain.StaticKeypair{}, nil, nil, restrictions.Policy{}, err
	}
	table, err := buildPeerTable(cfg.Peers)
	if err != nil {
		return domain.StaticKeypair{}, nil, nil, restrictions.Policy{}, err
	}
	policy := restrictions.Policy{ForcedCommand: cfg.ForcedCmd, SuMode: cfg.SuMode}
	return self, table, cfg, policy, nil
}

func decodeKeypair(privB32, pubB32 string) (domain.StaticKeypair, error) {
	var kp domain.StaticKeypair
	priv, err := config.DecodeKey(privB32)
	if err != nil {
		return kp, fmt.Errorf("decode private key: %w", err)
	}
	pub, err := config.DecodeKey(pubB32)
	if err != nil {
		return kp, fmt.Errorf("decode public key: %w", err)
	}
	kp.Private = priv
	kp.Public = pub
	return kp, nil
}

func buildPeerTable(entries []config.PeerEntry) (*domain.PeerTable, error) {
	peers := make([]domain.Peer, 0, len(entries))
	for _, e := range entries {
		pub, err := config.DecodeKey(e.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("peer %q: decode public key: %w", e.Name, err)
		}
		psk, err := config.DecodeKey(e.PSK)
		if err != nil {
			return nil, fmt.Errorf("peer %q: decode psk: %w", e.Name, err)
		}
		knockSecret, err := config.DecodeKey(e.KnockSecret)
		if err != nil {
			return nil, fmt.Errorf("peer %q: decode knock secret: %w", e.Name, err)
		}
		peers = append(peers, domain.Peer{
			Name:        e.Name,
			PublicKey:   pub,
			PSK:         psk,
			KnockSecret: knockSecret,
			SetUser:     e.SetUser,
			ForcedCmd:   e.ForcedCmd,
		})
	}
	return domain.NewPeerTable(peers)
}

// resolvePeer finds peerName (by -i or a server entry's
// identity field) in table, or returns a descriptive error.
func resolvePeer(table *domain.PeerTable, peerName string) (domain.Peer, error) {
	if peerName == "" {
		return domain.Peer{}, fmt.Errorf("no peer identity specified (-i)")
	}
	p, ok := table.ByName(peerName)
	if !ok {
		return domain.Peer{}, fmt.Errorf("unknown peer %q", peerName)
	}
	return *p, nil
}
