package timer

import (
	"context"
	"log/slog"
	"time"
)

// StartSweepWorker runs a background goroutine that periodically re-runs
// the expiry guard across all devices with persisted timer state. A mobile
// app that was killed mid-session never sends a foreground event, so the
// sweep is what eventually stops its blocking.
func StartSweepWorker(ctx context.Context, g *Guard, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Expiry sweep worker started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				g.Sweep(ctx)
			case <-ctx.Done():
				slog.Info("Expiry sweep worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
