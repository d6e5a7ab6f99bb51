// Package main is the entry point for perftune.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/javanstorm/perftune/internal/cli"
)

func main() {
	// Cancel a running apply or wait on Ctrl-C; the recorded changes stay
	// on the target for revert.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
