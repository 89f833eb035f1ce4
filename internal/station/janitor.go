package station

import (
	"context"
	"log/slog"
	"time"

	"github.com/airwave/stationd/internal/metrics"
)

// RunJanitor implements spec.md §4.5's janitor: every interval, evict stale
// listeners, then credit whole listened seconds for everyone still active,
// carrying any sub-second remainder forward on each listener's
// last_credited_at. Credits are applied to the catalog store only after the
// station lock has been released.
func RunJanitor(ctx context.Context, state *State, cat Catalog, interval, staleTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := time.Now()

		_, burstUS := state.BurstSnapshot()
		metrics.BurstBufferDepthSeconds.Set(float64(burstUS) / 1e6)
		metrics.ActiveListeners.Set(float64(len(state.Listeners())))

		evicted := state.evictStale(staleTimeout, now)
		for _, l := range evicted {
			slog.Info("janitor: evicted stale listener", "user_id", l.UserID, "username", l.Username)
		}

		credits := state.creditActiveListeners(now)
		for userID, seconds := range credits {
			if err := cat.CreditListenSeconds(ctx, userID, seconds); err != nil {
				slog.Error("janitor: failed to credit listen seconds", "user_id", userID, "seconds", seconds, "error", err)
			}
		}
	}
}
