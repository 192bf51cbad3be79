package token

import (
	"context"
	"time"
)

// RunSweeper calls SweepExpired every interval until ctx is done.
// Sweeps are fire-and-forget: nothing is reported back to callers.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := r.SweepExpired(); removed > 0 {
				r.logger.Info().Int("removed", removed).Msg("expired tokens swept")
			}
		}
	}
}
