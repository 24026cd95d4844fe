package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"oxy/internal/config"
	"oxy/internal/handshake"
)

// runKeygen implements `keygen`: generate a fresh Curve25519 identity and
// either print it or seed a client.conf/server.conf with it, so a new
// deployment never has to hand-edit base32 key material. Grounded on
// original_source/arg.rs's "keygen" subcommand ("Generate keys") and
// internal/handshake's existing GenerateStaticKeypair, which already does
// exactly the DH25519 generation a keygen command needs.
func runKeygen(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	role := fs.String("role", "", `write into "client" or "server" config instead of printing to stdout`)
	if err := fs.Parse(args); err != nil {
		return err
	}

	kp, err := handshake.GenerateStaticKeypair()
	if err != nil {
		return fmt.Errorf("keygen: %w", err)
	}
	priv := config.EncodeKey(kp.Private)
	pub := config.EncodeKey(kp.Public)

	switch *role {
	case "":
		fmt.Printf("private_key = %q\npublic_key = %q\n", priv, pub)
		return nil
	case "client":
		mgr := config.NewClientManager()
		cfg, err := mgr.Load()
		if err != nil {
			cfg = &config.ClientConfig{}
		}
		cfg.PrivateKey, cfg.PublicKey = priv, pub
		if err := mgr.Save(cfg); err != nil {
			return fmt.Errorf("keygen: save client config: %w", err)
		}
	case "server":
		mgr := config.NewServerManager()
		cfg, err := mgr.Load()
		if err != nil {
			cfg = &config.ServerConfig{}
		}
		cfg.PrivateKey, cfg.PublicKey = priv, pub
		if err := mgr.Save(cfg); err != nil {
			return fmt.Errorf("keygen: save server config: %w", err)
		}
	default:
		return fmt.Errorf("keygen: --role must be \"client\" or \"server\", got %q", *role)
	}

	fmt.Fprintf(os.Stderr, "keygen: wrote new identity, public key %s\n", pub)
	return nil
}
