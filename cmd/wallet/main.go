// Package main is the wallet command-line client.
//
// Usage:
//
//	wallet <command> [flags] [args]
//
// Commands: create, import, address, balance, token-balance, send,
// send-token, watch, history. Run "wallet <command> -h" for flags.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"solana-wallet/internal/domain"
)

const usage = `usage: wallet <command> [flags] [args]

commands:
  create                          generate a key and store it
  import                          read a secret from stdin and store it
  address                         print the stored key's address
  balance [address]               native balance
  token-balance <token> [address] token balance (symbol or mint)
  send <to> <amount>              send native units
  send-token <token> <to> <amount> send a token
  watch                           refresh balances periodically
  history [-limit n]              journaled transfers
`

func main() {
	loadEnvFile(".env")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintln(os.Stderr, "error:", domain.UserMessage(err))
		os.Exit(1)
	}
}

// run dispatches one command. stdout receives user-facing output only;
// diagnostics go to the logger on stderr.
func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return errors.New("no command given")
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprint(stdout, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
	return cmd(ctx, args[1:], stdin, stdout)
}

// loadEnvFile loads environment variables from path if it exists.
// Variables already set in the environment win.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
