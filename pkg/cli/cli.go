// Package cli wires the kmerkit cobra command tree: init, count, filter,
// extract, and info subcommands over the project manifest.
package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
)

// Run executes the CLI with signal-aware cancellation and maps errors to
// process exit codes: 0 success, 130 interrupted, 1 anything else.
func Run(ctx context.Context, args []string) (int, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCmd()
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded) {
			return 130, err
		}
		return 1, err
	}
	return 0, nil
}
