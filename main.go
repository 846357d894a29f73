// ./main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/labai-app/tracking-agent/cmd"
	"github.com/labai-app/tracking-agent/internal/observability"
)

// main is the entry point for the LabAI tracking agent.
func main() {
	// Graceful shutdown on SIGINT/SIGTERM; the run loop drains on cancel.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()
	if err != nil && !errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
}
