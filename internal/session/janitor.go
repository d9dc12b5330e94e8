package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// StartJanitor purges sessions idle for longer than ttl every interval until
// ctx is cancelled. A zero ttl disables purging.
func StartJanitor(ctx context.Context, store Store, ttl, interval time.Duration) {
	if ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := store.Purge(ctx, time.Now().Add(-ttl))
				if err != nil {
					log.Warn().Err(err).Msg("session purge failed")
					continue
				}
				if n > 0 {
					log.Info().Int("count", n).Msg("purged idle sessions")
				}
			}
		}
	}()
}
