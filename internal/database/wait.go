package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// WaitReady pings the database with exponential backoff until it answers or
// maxElapsed passes.
func WaitReady(ctx context.Context, log *slog.Logger, d Dialer, maxElapsed time.Duration) error {
	attempt := 1
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if attempt > 1 {
			log.Warn("database: not ready, retrying", "attempt", attempt)
		}
		attempt++
		return struct{}{}, Ping(ctx, d)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxElapsed),
	)
	if err != nil {
		return fmt.Errorf("database not ready after %s: %w", maxElapsed, err)
	}
	log.Info("database: ready", "attempts", attempt-1)
	return nil
}
