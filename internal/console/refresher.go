package console

import (
	"context"
	"log/slog"
	"time"
)

// Refresher periodically re-fetches batch job status and the billing
// core pair so derived state keeps up with the backend without user
// interaction.
type Refresher struct {
	store    *Store
	interval time.Duration
	done     chan struct{}
}

// NewRefresher creates a refresher ticking at the given interval.
func NewRefresher(store *Store, interval time.Duration) *Refresher {
	return &Refresher{
		store:    store,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start runs the refresh loop. It blocks until Stop is called or the
// context is cancelled.
func (r *Refresher) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.refresh(ctx)
		case <-ctx.Done():
			return
		case <-r.done:
			return
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	if res := r.store.FetchBatchStatus(ctx); !res.Success {
		slog.Warn("background batch status refresh failed", "error", res.Error)
	}
	if res := r.store.BillingRefreshCore(ctx); !res.Success {
		slog.Debug("background billing refresh incomplete")
	}
}

// Stop signals the refresh loop to exit.
func (r *Refresher) Stop() {
	close(r.done)
}
