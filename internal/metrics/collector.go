package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// StatsSource provides functions to retrieve current counts for gauge metrics.
type StatsSource struct {
	ActiveSanctionCount func(ctx context.Context) (int, error)
}

// RunCollector periodically updates gauge metrics until ctx is cancelled.
// It collects once immediately and always returns nil.
func RunCollector(ctx context.Context, src StatsSource, interval time.Duration) error {
	collect(ctx, src)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("Metrics collector started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			collect(ctx, src)
		}
	}
}

func collect(ctx context.Context, src StatsSource) {
	if src.ActiveSanctionCount == nil {
		return
	}

	n, err := src.ActiveSanctionCount(ctx)
	if err != nil {
		StoreUp.Set(0)
		log.Warn().Err(err).Msg("Metrics collector: failed to count active sanctions")
		return
	}
	StoreUp.Set(1)
	ActiveSanctionsTotal.Set(float64(n))
}
