package app

import (
	"context"
	"os/signal"
	"syscall"

	"bridgeagent/pkg/logging"
)

// runAgent runs the services until SIGINT or SIGTERM, then waits for every
// component to stop.
func runAgent(ctx context.Context, services *Services) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logging.Info("Agent", "Shutting down")
	}()

	return services.Run(ctx)
}
