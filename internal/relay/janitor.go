package relay

import (
	"context"
	"log/slog"
	"time"
)

// StartJanitor runs the purge pass on a ticker until ctx is cancelled, so
// inactive sessions close even when no request arrives. A non-positive
// interval disables it.
func StartJanitor(ctx context.Context, svc *Service, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Relay janitor started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				svc.Purge()
			case <-ctx.Done():
				slog.Info("Relay janitor shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
