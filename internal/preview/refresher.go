package preview

import (
	"context"
	"log/slog"
	"time"
)

// Refresher reloads the service's resolution context on a fixed interval so
// the preview API follows changes made by other writers.
type Refresher struct {
	interval time.Duration
	svc      *Service
}

// NewRefresher creates a refresher. A non-positive interval disables it.
func NewRefresher(interval time.Duration, svc *Service) *Refresher {
	return &Refresher{interval: interval, svc: svc}
}

// Start reloads on every tick until ctx is cancelled. A failed reload keeps
// the previous context and is retried on the next tick.
func (r *Refresher) Start(ctx context.Context) error {
	if r.interval <= 0 {
		slog.Info("[Scheduler] Context refresh disabled")
		return nil
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("[Scheduler] Starting context refresh", "interval", r.interval)

	for {
		select {
		case <-ticker.C:
			if err := r.svc.Reload(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				slog.Error("[Scheduler] Context refresh failed, keeping previous context", "error", err)
			}
		case <-ctx.Done():
			slog.Info("[Scheduler] Stopping (context cancelled)")
			return nil
		}
	}
}
