// Package config loads and saves the two on-disk TOML configuration files
// (client.conf, server.conf) under $HOME/.config/oxy/, mirroring the
// resolver/reader/writer split the teacher uses for its own JSON
// configuration files but serialized with github.com/pelletier/go-toml/v2.
package config

import (
	"encoding/base32"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// keyEncoding is the base32 alphabet used for every key/secret field on
// disk: unpadded standard alphabet, so config files stay free of '='.
var keyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// EncodeKey renders 32 bytes of key material for storage in a TOML file.
func EncodeKey(b [32]byte) string {
	return keyEncoding.EncodeToString(b[:])
}

// DecodeKey parses a key previously produced by EncodeKey.
func DecodeKey(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := keyEncoding.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("config: decode key: %w", err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("config: decoded key is %d bytes, want 32", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// PeerEntry is one named relationship persisted on disk: a public key plus
// the shared secrets that bind a conversation with it.
type PeerEntry struct {
	Name        string `toml:"name"`
	PublicKey   string `toml:"public_key"`
	PSK         string `toml:"psk"`
	KnockSecret string `toml:"knock_secret"`
	SetUser     string `toml:"setuser,omitempty"`
	ForcedCmd   string `toml:"forced_command,omitempty"`
}

// ServerEntry is one client-side "known host": where to dial and which peer
// relationship (by name, resolved against Peers) to use there. KnockPort is
// the UDP port the knock is sent to before dialing Port over TCP; servers
// commonly run the two on different ports so a port scan of the TCP port
// alone finds nothing listening.
type ServerEntry struct {
	Name      string `toml:"name"`
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	KnockPort int    `toml:"knock_port"`
	Identity  string `toml:"identity"`
}

// ClientConfig is the contents of client.conf.
type ClientConfig struct {
	PrivateKey string        `toml:"private_key"`
	PublicKey  string        `toml:"public_key"`
	Peers      []PeerEntry   `toml:"peers"`
	Servers    []ServerEntry `toml:"servers"`
}

// ServerConfig is the contents of server.conf.
type ServerConfig struct {
	PrivateKey  string      `toml:"private_key"`
	PublicKey   string      `toml:"public_key"`
	KnockPort   int         `toml:"knock_port"`
	ForcedCmd   string      `toml:"forced_command,omitempty"`
	SuMode      bool        `toml:"su_mode,omitempty"`
	Peers       []PeerEntry `toml:"peers"`
}

// Resolver locates a configuration file's path on disk.
type Resolver interface {
	Resolve() (string, error)
}

type homeResolver struct{ filename string }

// NewClientResolver resolves $HOME/.config/oxy/client.conf, or
// $OXY_CLIENT_CONFIG if set.
func NewClientResolver() Resolver { return homeResolver{filename: "client.conf"} }

// NewServerResolver resolves $HOME/.config/oxy/server.conf, or
// $OXY_SERVER_CONFIG if set.
func NewServerResolver() Resolver { return homeResolver{filename: "server.conf"} }

func (r homeResolver) Resolve() (string, error) {
	envVar := "OXY_CLIENT_CONFIG"
	if r.filename == "server.conf" {
		envVar = "OXY_SERVER_CONFIG"
	}
	if override := os.Getenv(envVar); override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "oxy", r.filename), nil
}

// ClientManager loads and saves client.conf.
type ClientManager struct{ resolver Resolver }

func NewClientManager() *ClientManager {
	return &ClientManager{resolver: NewClientResolver()}
}

func (m *ClientManager) Load() (*ClientConfig, error) {
	path, err := m.resolver.Resolve()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config: client configuration file %s does not exist", path)
		}
		return nil, err
	}
	var cfg ClientConfig
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

func (m *ClientManager) Save(cfg *ClientConfig) error {
	path, err := m.resolver.Resolve()
	if err != nil {
		return err
	}
	return writeTOML(path, cfg)
}

// ServerManager loads and saves server.conf.
type ServerManager struct{ resolver Resolver }

func NewServerManager() *ServerManager {
	return &ServerManager{resolver: NewServerResolver()}
}

func (m *ServerManager) Load() (*ServerConfig, error) {
	path, err := m.resolver.Resolve()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config: server configuration file %s does not exist", path)
		}
		return nil, err
	}
	var cfg ServerConfig
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

func (m *ServerManager) Save(cfg *ServerConfig) error {
	path, err := m.resolver.Resolve()
	if err != nil {
		return err
	}
	return writeTOML(path, cfg)
}

func writeTOML(path string, v interface{}) error {
	body, err := toml.Marshal(v)
	if err != nil {
		return fmt.Errorf("config: marshal %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, body, 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
