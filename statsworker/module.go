// Package statsworker hosts the periodic stats and achievements cycle: a
// full recompute of per-user counters off the post store, an achievement
// award pass over the refreshed stats, and a rarity refresh on a longer
// cadence.
package statsworker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/feedmaster/feedmaster/aggregator"
	"github.com/feedmaster/feedmaster/model"
	"github.com/feedmaster/feedmaster/utils/log"
)

// PostReader supplies a feed's full post history for the recompute.
type PostReader interface {
	QueryFeedWindow(ctx context.Context, feedId string, window model.Window, now time.Time) ([]model.Post, error)
}

// StatWriter persists one feed's recomputed stats, overwriting the
// incrementally bumped values.
type StatWriter interface {
	ReplaceAllForFeed(ctx context.Context, feedId string, stats []model.UserStat) error
}

// Awarder is the achievement engine surface the cycle drives.
type Awarder interface {
	Seed(ctx context.Context) error
	Award(ctx context.Context, userDids []string, now time.Time) error
	RefreshRarity(ctx context.Context, now time.Time) error
}

// FeedLister supplies the active feed set at the start of every cycle.
type FeedLister func(ctx context.Context) ([]model.Feed, error)

type Config struct {
	Name string
	// Cadence of the recompute plus award pass.
	RecomputeInterval time.Duration
	// Cadence of the rarity refresh. Skipped while the previous refresh is
	// younger than this.
	RarityInterval time.Duration
}

// Module is the stats worker. It implements worker.Module and runs
// independently of ingestion and aggregation.
type Module struct {
	config  Config
	posts   PostReader
	stats   StatWriter
	awarder Awarder
	feeds   FeedLister
	weights aggregator.Weights
	cron    *cron.Cron

	lastRarityRefresh time.Time
}

func NewModule(config Config, posts PostReader, stats StatWriter, awarder Awarder, feeds FeedLister, weights aggregator.Weights) *Module {
	return &Module{
		config:  config,
		posts:   posts,
		stats:   stats,
		awarder: awarder,
		feeds:   feeds,
		weights: weights,
	}
}

func (m *Module) RunModule(ctx context.Context) error {
	if err := m.awarder.Seed(ctx); err != nil {
		return err
	}

	// First cycle runs immediately, later ones on the cron cadence.
	m.runCycle(ctx)

	m.cron = cron.New()
	_, err := m.cron.AddFunc(fmt.Sprintf("@every %s", m.config.RecomputeInterval), func() { m.runCycle(ctx) })
	if err != nil {
		return err
	}
	m.cron.Start()

	<-ctx.Done()
	<-m.cron.Stop().Done()
	return nil
}

func (m *Module) runCycle(ctx context.Context) {
	start := time.Now()

	feeds, err := m.feeds(ctx)
	if err != nil {
		log.Log.Error("fail to list active feeds: ", err)
		return
	}

	updated := map[string]bool{}
	for _, feed := range feeds {
		if !feed.Active {
			continue
		}
		if err := m.recomputeFeed(ctx, feed.Id, start, updated); err != nil {
			// One broken feed must not starve the others.
			log.Log.WithField("feed", feed.Id).Error("stats recompute failed: ", err)
		}
	}

	dids := make([]string, 0, len(updated))
	for did := range updated {
		dids = append(dids, did)
	}
	if err := m.awarder.Award(ctx, dids, start); err != nil {
		log.Log.Error("achievement award pass failed: ", err)
	}

	if start.Sub(m.lastRarityRefresh) >= m.config.RarityInterval {
		if err := m.awarder.RefreshRarity(ctx, start); err != nil {
			log.Log.Error("rarity refresh failed: ", err)
		} else {
			m.lastRarityRefresh = start
		}
	}

	log.Log.Infof("stats cycle done for %d users in %s", len(dids), time.Since(start))
}

func (m *Module) recomputeFeed(ctx context.Context, feedId string, now time.Time, updated map[string]bool) error {
	posts, err := m.posts.QueryFeedWindow(ctx, feedId, model.WindowAllTime, now)
	if err != nil {
		return err
	}

	stats := aggregator.RecomputeUserStats(posts, m.weights, now)
	for i := range stats {
		stats[i].FeedId = feedId
		updated[stats[i].UserDid] = true
	}
	return m.stats.ReplaceAllForFeed(ctx, feedId, stats)
}

func (m *Module) Name() string {
	return m.config.Name
}

func (m *Module) Shutdown() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
}
