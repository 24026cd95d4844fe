package main

import (
	"context"
	"flag"
	"fmt"

	"oxy/internal/config"
	"oxy/internal/ui"
)

// runGuide implements `guide`: print orientation text, then (when a
// client.conf is available) let the user interactively pick one of its
// configured servers and see the client command that connects to it.
// Grounded on original_source/arg.rs's "guide" subcommand ("Print
// information to help a new user get the most out of Oxy") and internal/ui's
// Select picker, adapted from the teacher's bubble_tea.Selector.
func runGuide(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("guide", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Print(guideText)

	cfg, err := config.NewClientManager().Load()
	if err != nil || len(cfg.Servers) == 0 {
		fmt.Println("No configured servers found in client.conf yet - run `oxy keygen --role client` to get started.")
		return nil
	}

	names := make([]string, len(cfg.Servers))
	for i, s := range cfg.Servers {
		names[i] = s.Name
	}
	choice, err := ui.Select("Pick a server to see how to connect to it:", names)
	if err != nil {
		if err == ui.ErrCanceled {
			return nil
		}
		return fmt.Errorf("guide: %w", err)
	}

	modes, err := ui.Select("What do you want to do?", []string{
		"Open a shell",
		"Forward a local port (-L)",
		"Run a SOCKS5 proxy (-D)",
	})
	if err != nil {
		if err == ui.ErrCanceled {
			return nil
		}
		return fmt.Errorf("guide: %w", err)
	}

	switch modes {
	case "Open a shell":
		fmt.Printf("\n  oxy client %s\n\n", choice)
	case "Forward a local port (-L)":
		fmt.Printf("\n  oxy client -L 127.0.0.1:8080:127.0.0.1:80 %s\n\n", choice)
	case "Run a SOCKS5 proxy (-D)":
		fmt.Printf("\n  oxy client -D 127.0.0.1:1080 %s\n\n", choice)
	}
	return nil
}

const guideText = `Oxy is a secure remote-access tool: a single binary that knocks, dials,
and authenticates over a Noise handshake before doing anything else.

Typical flow:
  1. oxy keygen --role client   (once, to create your identity)
  2. Add the servers you use and their peers to ~/.config/oxy/client.conf
  3. oxy client <server-name>           open a shell
     oxy client -L 127.0.0.1:8080:127.0.0.1:80 <server-name>   forward a local port
     oxy client -D 127.0.0.1:1080 <server-name>                run a local SOCKS5 proxy
     oxy copy local.txt <server-name>:remote.txt     copy a file up

`
