package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
)

// Saver is the write side of Store.
type Saver interface {
	SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error
}

// StatsSource yields the aggregate to snapshot, normally *analytics.Aggregator.
type StatsSource interface {
	Stats() analytics.AggregatedStats
}

// RunPeriodic snapshots src every interval until ctx is cancelled, then
// writes one final snapshot with a short deadline of its own.
func RunPeriodic(ctx context.Context, saver Saver, src StatsSource, interval time.Duration) {
	logger := slog.Default().With("component", "analytics-snapshots")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("periodic snapshot started", "interval", interval)

	for {
		select {
		case <-ticker.C:
			if err := saver.SaveSnapshot(ctx, src.Stats()); err != nil {
				logger.Error("periodic snapshot failed", "error", err)
			}
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := saver.SaveSnapshot(shutdownCtx, src.Stats()); err != nil {
				logger.Error("final snapshot failed", "error", err)
			}
			cancel()
			return
		}
	}
}
