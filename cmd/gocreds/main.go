// gocreds is the operator tool for a goCreds deployment: it generates key
// material, migrates the SQL schema, purges expired records and inspects tokens.
//
//	gocreds keygen [--method ed25519|hs256] > gocreds.yaml
//	gocreds migrate -c gocreds.yaml
//	gocreds purge -c gocreds.yaml --interval 10m
//	gocreds inspect -c gocreds.yaml --class access <token>
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, env *cliEnv, args []string) error
}

// cliEnv carries the process streams so commands can be driven from tests.
type cliEnv struct {
	stdout  io.Writer
	stderr  io.Writer
	environ map[string]string
}

var commands = []command{
	{name: "keygen", summary: "print a config file with freshly generated keys", run: runKeygen},
	{name: "migrate", summary: "apply the embedded SQL migrations", run: runMigrate},
	{name: "purge", summary: "delete expired refresh tokens and verification records", run: runPurge},
	{name: "inspect", summary: "verify a token and print its claims", run: runInspect},
}

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := &cliEnv{stdout: os.Stdout, stderr: os.Stderr}
	if err := run(ctx, env, os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, env *cliEnv, args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(env.stderr)
		if len(args) == 0 {
			return errUsage
		}
		return nil
	}

	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd.run(ctx, env, args[1:])
		}
	}

	fmt.Fprintf(env.stderr, "unknown command %q\n\n", args[0])
	printUsage(env.stderr)
	return errUsage
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: gocreds <command> [flags]")
	fmt.Fprintln(w)
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", cmd.name, cmd.summary)
	}
}
