// Command oxy is the secure remote-access tool's CLI: a thin dispatcher
// over the protocol stack in internal/, patterned on the teacher's own
// hand-rolled os.Args dispatch in main.go rather than a CLI framework (none
// appears anywhere in the reference corpus).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	sub, rest := args[0], args[1:]
	var err error
	switch sub {
	case "client":
		err = runClient(ctx, rest)
	case "server":
		err = runServer(ctx, rest)
	case "reexec":
		err = runReexec(ctx, rest)
	case "serve-one":
		err = runServeOne(ctx, rest)
	case "reverse-server":
		err = runReverseServer(ctx, rest)
	case "reverse-client":
		err = runReverseClient(ctx, rest)
	case "copy":
		err = runCopy(ctx, rest)
	case "keygen":
		err = runKeygen(ctx, rest)
	case "guide":
		err = runGuide(ctx, rest)
	case "-h", "--help", "help":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "oxy: unknown subcommand %q\n", sub)
		printUsage()
		return 1
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "oxy: %v\n", err)
		return 1
	}
	return 0
}

func printUsage() {
	fmt.Fprint(os.Stderr, `usage: oxy <subcommand> [flags] [args]

subcommands:
  client          connect to an oxy server
  server          listen for port knocks, accept TCP connections, reexec per connection
  reexec          service a single connection on an inherited file descriptor
  serve-one       accept a single TCP connection, service it in this process
  reverse-server  connect out to a listening client, then act as server
  reverse-client  bind a port and wait for a server to connect, then act as client
  copy            copy files between a local path and a peer
  keygen          generate a new static keypair
  guide           print a short orientation guide
`)
}
