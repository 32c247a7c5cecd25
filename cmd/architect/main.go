// Command architect turns a design request into an architecture blueprint
// by driving a plan of reasoning steps to completion.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/architectagent/architect/internal/config"
)

const usageText = `Usage:
  architect <command> [flags] [args]

Commands:
  run [--watch] [--file <path>] [--plan <path>] [--workers <n>] [--step-budget <n>] <requirements>
  resume [--watch] <run-id>
  status [--json] <run-id>
  list [--json]
  export [-o <file>] <run-id>
  patterns [--json]
  serve [--listen <addr>]
  settings [--edit]

Configuration is read from ~/.architect/config.json and .architect/config.json,
then ANTHROPIC_API_KEY, OPENAI_API_KEY, ARCHITECT_PROVIDER, ARCHITECT_MODEL,
ARCHITECT_DB and ARCHITECT_LOG_LEVEL.
`

// errUsage marks command line mistakes.
var errUsage = errors.New("usage error")

// errRunIncomplete is returned when a run stops without resolving.
var errRunIncomplete = errors.New("run did not resolve")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
	case errors.Is(err, errUsage):
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	case errors.Is(err, errRunIncomplete):
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Execute runs one command.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		io.WriteString(stderr, usageText)
		return fmt.Errorf("%w: command is required", errUsage)
	}
	command, rest := args[0], args[1:]

	switch command {
	case "help", "-h", "--help":
		io.WriteString(stdout, usageText)
		return nil
	case "settings":
		return runSettings(rest, stdout, stderr)
	}

	cfg, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	switch command {
	case "run":
		return runRun(ctx, cfg, rest, stdout, stderr)
	case "resume":
		return runResume(ctx, cfg, rest, stdout, stderr)
	case "status":
		return runStatus(ctx, cfg, rest, stdout, stderr)
	case "list":
		return runList(ctx, cfg, rest, stdout, stderr)
	case "export":
		return runExport(ctx, cfg, rest, stdout, stderr)
	case "patterns":
		return runPatterns(rest, stdout, stderr)
	case "serve":
		return runServe(ctx, cfg, rest, stdout, stderr)
	default:
		io.WriteString(stderr, usageText)
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("architect "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// parseFlags parses args and wraps parse failures as usage errors.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

func oneArg(fs *flag.FlagSet, what string) (string, error) {
	if fs.NArg() != 1 {
		return "", fmt.Errorf("%w: %s expects exactly one %s", errUsage, fs.Name(), what)
	}
	return fs.Arg(0), nil
}
