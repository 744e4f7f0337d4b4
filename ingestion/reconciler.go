package ingestion

import (
	"context"
	"time"

	"github.com/feedmaster/feedmaster/model"
	"github.com/feedmaster/feedmaster/utils/log"
)

// FeedLister supplies the current feed registry on every poll.
type FeedLister func(ctx context.Context) ([]model.Feed, error)

type ReconcilerConfig struct {
	Name string
	// How often the pool is diffed against the feed registry.
	PollInterval time.Duration
}

// Reconciler is the worker module driving a listener Pool: on every poll it
// reloads the feed registry and reconciles the pool against it, so feed
// additions, removals, deactivations and endpoint changes take effect
// without a process restart.
type Reconciler struct {
	config ReconcilerConfig
	pool   *Pool
	feeds  FeedLister
}

func NewReconciler(config ReconcilerConfig, pool *Pool, feeds FeedLister) *Reconciler {
	return &Reconciler{
		config: config,
		pool:   pool,
		feeds:  feeds,
	}
}

func (r *Reconciler) RunModule(ctx context.Context) error {
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	r.reconcileOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.reconcileOnce(ctx)
		}
	}
}

func (r *Reconciler) reconcileOnce(ctx context.Context) {
	feeds, err := r.feeds(ctx)
	if err != nil {
		// Keep the current pool running on registry errors.
		log.Log.Error("fail to load feed registry: ", err)
		return
	}
	r.pool.Reconcile(ctx, feeds)

	for _, health := range r.pool.HealthReport() {
		if health.Status == StatusDegraded {
			log.Log.WithField("feed", health.FeedId).
				Warnf("listener degraded, %d reconnects, %d dropped events",
					health.ReconnectCount, health.DroppedEvents)
		}
	}
}

func (r *Reconciler) Name() string {
	return r.config.Name
}

func (r *Reconciler) Shutdown() {
	r.pool.StopAll()
}
