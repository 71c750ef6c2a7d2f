package routes

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bibekaryal86/gateway-service/internal/logging"
	"github.com/bibekaryal86/gateway-service/internal/metrics"
)

// Refresher periodically re-fetches the route snapshot. A failed
// refresh keeps the previous snapshot in place; the gateway keeps
// serving on stale data rather than going dark.
type Refresher struct {
	fetcher  *Fetcher
	store    *Store
	interval time.Duration
}

// NewRefresher wires a fetcher to a store.
func NewRefresher(fetcher *Fetcher, store *Store, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = 7 * time.Minute
	}
	return &Refresher{fetcher: fetcher, store: store, interval: interval}
}

// RefreshNow fetches immediately and swaps the store on success.
func (r *Refresher) RefreshNow(ctx context.Context) error {
	snap, err := r.fetcher.Fetch(ctx)
	if err != nil {
		logging.Error("route snapshot refresh failed, keeping previous",
			zap.Error(err),
			zap.Int64("currentVersion", r.store.Load().Version))
		return err
	}
	r.store.Swap(snap)
	metrics.SetSnapshotVersion(snap.Version)
	logging.Info("route snapshot refreshed",
		zap.Int64("version", snap.Version),
		zap.Int("routes", snap.RouteCount()))
	return nil
}

// Run refreshes on the configured interval until ctx is cancelled.
// The initial fetch is the caller's job; Run only keeps it fresh.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info("route refresher stopped")
			return
		case <-ticker.C:
			_ = r.RefreshNow(ctx)
		}
	}
}
