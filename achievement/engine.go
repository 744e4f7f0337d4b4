package achievement

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/feedmaster/feedmaster/model"
	"github.com/feedmaster/feedmaster/store"
	"github.com/feedmaster/feedmaster/utils/log"
)

// Registry is the slice of the achievement store the engine needs.
type Registry interface {
	SyncDefinitions(ctx context.Context, defs []model.Achievement) error
	ActiveDefinitions(ctx context.Context) ([]model.Achievement, error)
	MarkEarned(ctx context.Context, userDid string, achievementId string, feedId string, earnedAt time.Time) error
	EarnedSet(ctx context.Context) (map[store.EarnKey]time.Time, error)
	EarnCounts(ctx context.Context, feedId string) (map[string]int64, error)
	UpdateGlobalRarity(ctx context.Context, achievementId string, percentage float64, tier string, label string) error
	UpsertFeedRarity(ctx context.Context, rarity model.AchievementFeedRarity) error
	FeedRarities(ctx context.Context, feedId string) (map[string]model.AchievementFeedRarity, error)
}

// StatReader supplies the recomputed user stats the criteria run against.
type StatReader interface {
	AllStats(ctx context.Context) ([]model.UserStat, error)
	StatsForUser(ctx context.Context, userDid string) ([]model.UserStat, error)
}

// Engine runs the award pass and the rarity cycle.
type Engine struct {
	registry Registry
	stats    StatReader
}

func NewEngine(registry Registry, stats StatReader) *Engine {
	return &Engine{registry: registry, stats: stats}
}

// Seed syncs the built-in registry into the database.
func (e *Engine) Seed(ctx context.Context) error {
	return e.registry.SyncDefinitions(ctx, DefaultDefinitions())
}

// Award checks every active achievement against the given users' stats and
// records new earns. Earned rows are insert-only: a user whose stats later
// drop below the threshold keeps the achievement.
func (e *Engine) Award(ctx context.Context, userDids []string, now time.Time) error {
	if len(userDids) == 0 {
		return nil
	}

	defs, err := e.registry.ActiveDefinitions(ctx)
	if err != nil {
		return err
	}
	earned, err := e.registry.EarnedSet(ctx)
	if err != nil {
		return err
	}

	var perFeed, global []model.Achievement
	for _, def := range defs {
		if def.Scope == model.ScopeGlobal {
			global = append(global, def)
		} else {
			perFeed = append(perFeed, def)
		}
	}

	for _, did := range userDids {
		userStats, err := e.stats.StatsForUser(ctx, did)
		if err != nil {
			return errors.Wrapf(err, "load stats for user %s", did)
		}
		if len(userStats) == 0 {
			continue
		}

		for i := range userStats {
			stat := &userStats[i]
			for _, def := range perFeed {
				key := store.EarnKey{UserDid: did, AchievementId: def.Id, FeedId: stat.FeedId}
				if _, has := earned[key]; has {
					continue
				}
				if !meets(&def, []model.UserStat{*stat}) {
					continue
				}
				if err := e.registry.MarkEarned(ctx, did, def.Id, stat.FeedId, now); err != nil {
					return err
				}
				earned[key] = now
				log.Log.WithField("user", did).WithField("feed", stat.FeedId).
					Infof("awarded achievement %s", def.Key)
			}
		}

		for _, def := range global {
			key := store.EarnKey{UserDid: did, AchievementId: def.Id, FeedId: ""}
			if _, has := earned[key]; has {
				continue
			}
			if !meets(&def, userStats) {
				continue
			}
			if err := e.registry.MarkEarned(ctx, did, def.Id, "", now); err != nil {
				return err
			}
			earned[key] = now
			log.Log.WithField("user", did).Infof("awarded achievement %s", def.Key)
		}
	}
	return nil
}

// RefreshRarity recomputes rarity for every achievement. The population
// denominator is snapshotted once per cycle from the stats table, so every
// achievement of one cycle is graded against the same population.
func (e *Engine) RefreshRarity(ctx context.Context, now time.Time) error {
	defs, err := e.registry.ActiveDefinitions(ctx)
	if err != nil {
		return err
	}
	allStats, err := e.stats.AllStats(ctx)
	if err != nil {
		return err
	}

	globalPopulation, feedPopulation := populations(allStats)

	globalCounts, err := e.registry.EarnCounts(ctx, "")
	if err != nil {
		return err
	}
	for _, def := range defs {
		if def.Scope != model.ScopeGlobal {
			continue
		}
		if globalPopulation == 0 {
			continue
		}
		pct := float64(globalCounts[def.Id]) / float64(globalPopulation) * 100
		tier := TierFor(pct)
		if err := e.registry.UpdateGlobalRarity(ctx, def.Id, pct, tier.Name, tier.Name+" (Global)"); err != nil {
			return err
		}
	}

	for feedId, population := range feedPopulation {
		counts, err := e.registry.EarnCounts(ctx, feedId)
		if err != nil {
			return err
		}
		for _, def := range defs {
			if def.Scope == model.ScopeGlobal {
				continue
			}
			earners := counts[def.Id]
			if earners == 0 {
				continue
			}
			pct := float64(earners) / float64(population) * 100
			tier := TierFor(pct)
			err := e.registry.UpsertFeedRarity(ctx, model.AchievementFeedRarity{
				AchievementId:    def.Id,
				FeedId:           feedId,
				RarityPercentage: pct,
				RarityTier:       tier.Name,
				RarityLabel:      tier.Name + " (in this feed)",
				LastUpdated:      now,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Progress reports how far a user is from each not-yet-earned achievement.
func (e *Engine) Progress(ctx context.Context, userDid string) ([]model.AchievementProgress, error) {
	defs, err := e.registry.ActiveDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	earned, err := e.registry.EarnedSet(ctx)
	if err != nil {
		return nil, err
	}
	userStats, err := e.stats.StatsForUser(ctx, userDid)
	if err != nil {
		return nil, err
	}

	// Per-feed rarity lives on the feed rarity rows, not the definition.
	feedRarities := map[string]map[string]model.AchievementFeedRarity{}
	rarityFor := func(feedId string, achievementId string) (float64, error) {
		rarities, ok := feedRarities[feedId]
		if !ok {
			var err error
			rarities, err = e.registry.FeedRarities(ctx, feedId)
			if err != nil {
				return 0, err
			}
			feedRarities[feedId] = rarities
		}
		return rarities[achievementId].RarityPercentage, nil
	}

	var out []model.AchievementProgress
	for _, def := range defs {
		criteria, err := def.DecodeCriteria()
		if err != nil {
			continue
		}
		if def.Scope == model.ScopeGlobal {
			if _, has := earned[store.EarnKey{UserDid: userDid, AchievementId: def.Id}]; has {
				continue
			}
			current, ok := currentValue(&def, userStats)
			if !ok {
				continue
			}
			out = append(out, model.AchievementProgress{
				UserDid:       userDid,
				AchievementId: def.Id,
				Current:       current,
				Required:      criteria.Value,
				Rarity:        def.RarityPercentage,
			})
			continue
		}
		for i := range userStats {
			stat := &userStats[i]
			if _, has := earned[store.EarnKey{UserDid: userDid, AchievementId: def.Id, FeedId: stat.FeedId}]; has {
				continue
			}
			current, ok := currentValue(&def, []model.UserStat{*stat})
			if !ok {
				continue
			}
			rarity, err := rarityFor(stat.FeedId, def.Id)
			if err != nil {
				return nil, err
			}
			out = append(out, model.AchievementProgress{
				UserDid:       userDid,
				AchievementId: def.Id,
				FeedId:        stat.FeedId,
				Current:       current,
				Required:      criteria.Value,
				Rarity:        rarity,
			})
		}
	}
	return out, nil
}

// meets checks one achievement's criteria. Per-feed achievements receive a
// single stat row, global ones the user's rows across every feed.
func meets(def *model.Achievement, stats []model.UserStat) bool {
	current, ok := currentValue(def, stats)
	if !ok {
		return false
	}
	criteria, err := def.DecodeCriteria()
	if err != nil {
		return false
	}
	return compare(criteria.Operator, current, criteria.Value)
}

func currentValue(def *model.Achievement, stats []model.UserStat) (int64, bool) {
	criteria, err := def.DecodeCriteria()
	if err != nil || criteria.Stat == "" {
		return 0, false
	}

	if def.Scope == model.ScopeGlobal {
		switch criteria.AggMethod {
		case "count":
			return int64(len(stats)), true
		case "sum":
			var sum int64
			for i := range stats {
				v, ok := statValue(&stats[i], criteria.Stat)
				if !ok {
					return 0, false
				}
				sum += v
			}
			return sum, true
		case "max":
			var max int64
			for i := range stats {
				v, ok := statValue(&stats[i], criteria.Stat)
				if !ok {
					return 0, false
				}
				if v > max {
					max = v
				}
			}
			return max, true
		default:
			log.Log.Warnf("achievement %s has unsupported agg method %q", def.Key, criteria.AggMethod)
			return 0, false
		}
	}

	if len(stats) != 1 {
		return 0, false
	}
	return statValue(&stats[0], criteria.Stat)
}

func statValue(s *model.UserStat, name string) (int64, bool) {
	switch name {
	case "post_count":
		return s.PostCount, true
	case "total_likes_received":
		return s.TotalLikesReceived, true
	case "total_reposts_received":
		return s.TotalRepostsReceived, true
	case "total_replies_received":
		return s.TotalRepliesReceived, true
	case "total_quotes_received":
		return s.TotalQuotesReceived, true
	case "image_post_count":
		return s.ImagePostCount, true
	case "video_post_count":
		return s.VideoPostCount, true
	case "max_post_engagement":
		return s.MaxPostEngagement, true
	case "current_streak":
		return int64(s.CurrentStreak), true
	case "longest_streak":
		return int64(s.LongestStreak), true
	default:
		return 0, false
	}
}

func compare(operator string, actual, required int64) bool {
	switch operator {
	case ">":
		return actual > required
	case "<":
		return actual < required
	case ">=":
		return actual >= required
	case "<=":
		return actual <= required
	case "==":
		return actual == required
	case "!=":
		return actual != required
	default:
		return false
	}
}

// populations counts distinct users overall and per feed from one stats
// snapshot.
func populations(stats []model.UserStat) (int64, map[string]int64) {
	globalSeen := map[string]bool{}
	perFeed := map[string]map[string]bool{}
	for i := range stats {
		s := &stats[i]
		globalSeen[s.UserDid] = true
		if perFeed[s.FeedId] == nil {
			perFeed[s.FeedId] = map[string]bool{}
		}
		perFeed[s.FeedId][s.UserDid] = true
	}
	out := make(map[string]int64, len(perFeed))
	for feedId, seen := range perFeed {
		out[feedId] = int64(len(seen))
	}
	return int64(len(globalSeen)), out
}
