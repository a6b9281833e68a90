// Command requeue re-enqueues reconciliation for an intake through JetStream.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/doc-intake-relay/internal/config"
	"gitlab.com/timkado/api/doc-intake-relay/internal/queue"
	"gitlab.com/timkado/api/doc-intake-relay/internal/storage"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(defaultBackends).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// defaultBackends connects to the configured database and JetStream.
func defaultBackends(ctx context.Context, cfg *config.Config, verify bool) (*backends, error) {
	if cfg.Queue.NatsURL == "" {
		return nil, fmt.Errorf("queue.natsURL is not configured")
	}

	b := &backends{}
	if verify {
		repo, err := storage.Open(cfg.Database.DSN, false)
		if err != nil {
			return nil, err
		}
		b.finder = repo
		b.closers = append(b.closers, func() { _ = repo.Close(ctx) })
	}

	client, err := queue.NewClient(cfg.Queue.NatsURL)
	if err != nil {
		b.close()
		return nil, err
	}
	b.dispatcher = queue.NewPublisher(client, cfg.Queue.Subject)
	b.closers = append(b.closers, client.Close)
	return b, nil
}

func init() {
	// Quiet by default; LOG_LEVEL=debug shows publisher details.
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	if err := logger.Initialize(level); err != nil {
		logger.Log = zap.NewNop()
	}
}
