package achievement

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedmaster/feedmaster/model"
	"github.com/feedmaster/feedmaster/store"
)

type fakeRegistry struct {
	defs         []model.Achievement
	earned       map[store.EarnKey]time.Time
	globalRarity map[string]float64
	feedRarity   map[string]model.AchievementFeedRarity
	markCalls    int
}

func newFakeRegistry(defs []model.Achievement) *fakeRegistry {
	for i := range defs {
		if defs[i].Id == "" {
			defs[i].Id = "id-" + defs[i].Key
		}
	}
	return &fakeRegistry{
		defs:         defs,
		earned:       map[store.EarnKey]time.Time{},
		globalRarity: map[string]float64{},
		feedRarity:   map[string]model.AchievementFeedRarity{},
	}
}

func (f *fakeRegistry) SyncDefinitions(ctx context.Context, defs []model.Achievement) error {
	f.defs = defs
	return nil
}

func (f *fakeRegistry) ActiveDefinitions(ctx context.Context) ([]model.Achievement, error) {
	var active []model.Achievement
	for _, d := range f.defs {
		if d.Active {
			active = append(active, d)
		}
	}
	return active, nil
}

func (f *fakeRegistry) MarkEarned(ctx context.Context, userDid string, achievementId string, feedId string, earnedAt time.Time) error {
	f.markCalls++
	key := store.EarnKey{UserDid: userDid, AchievementId: achievementId, FeedId: feedId}
	// Insert-only, first earn wins.
	if _, has := f.earned[key]; !has {
		f.earned[key] = earnedAt
	}
	return nil
}

func (f *fakeRegistry) EarnedSet(ctx context.Context) (map[store.EarnKey]time.Time, error) {
	out := make(map[store.EarnKey]time.Time, len(f.earned))
	for k, v := range f.earned {
		out[k] = v
	}
	return out, nil
}

func (f *fakeRegistry) EarnCounts(ctx context.Context, feedId string) (map[string]int64, error) {
	out := map[string]int64{}
	for key := range f.earned {
		if key.FeedId == feedId {
			out[key.AchievementId]++
		}
	}
	return out, nil
}

func (f *fakeRegistry) UpdateGlobalRarity(ctx context.Context, achievementId string, percentage float64, tier string, label string) error {
	f.globalRarity[achievementId] = percentage
	return nil
}

func (f *fakeRegistry) UpsertFeedRarity(ctx context.Context, rarity model.AchievementFeedRarity) error {
	f.feedRarity[rarity.AchievementId+"/"+rarity.FeedId] = rarity
	return nil
}

func (f *fakeRegistry) FeedRarities(ctx context.Context, feedId string) (map[string]model.AchievementFeedRarity, error) {
	out := map[string]model.AchievementFeedRarity{}
	for _, r := range f.feedRarity {
		if r.FeedId == feedId {
			out[r.AchievementId] = r
		}
	}
	return out, nil
}

type fakeStatReader struct {
	stats []model.UserStat
}

func (f *fakeStatReader) AllStats(ctx context.Context) ([]model.UserStat, error) {
	return f.stats, nil
}

func (f *fakeStatReader) StatsForUser(ctx context.Context, userDid string) ([]model.UserStat, error) {
	var out []model.UserStat
	for _, s := range f.stats {
		if s.UserDid == userDid {
			out = append(out, s)
		}
	}
	return out, nil
}

func def(t *testing.T, key string, scope model.AchievementScope, criteria model.AchievementCriteria) model.Achievement {
	t.Helper()
	raw, err := json.Marshal(criteria)
	require.NoError(t, err)
	return model.Achievement{Key: key, Scope: scope, Criteria: raw, Active: true}
}

func TestDefaultDefinitionsAreConsistent(t *testing.T) {
	defs := DefaultDefinitions()
	require.NotEmpty(t, defs)

	keys := map[string]bool{}
	for _, d := range defs {
		assert.False(t, keys[d.Key], "duplicate key %s", d.Key)
		keys[d.Key] = true
		assert.NotEmpty(t, d.Name)
		assert.NotEmpty(t, d.SeriesKey)
		assert.True(t, d.Active)

		criteria, err := d.DecodeCriteria()
		require.NoError(t, err, d.Key)
		assert.NotEmpty(t, criteria.Stat, d.Key)
		if d.Scope == model.ScopeGlobal {
			assert.NotEmpty(t, criteria.AggMethod, d.Key)
		} else {
			assert.Empty(t, criteria.AggMethod, d.Key)
		}
	}

	// Spot checks against the registry's intended shape.
	assert.True(t, keys["icebreaker_i"])
	assert.True(t, keys["power_poster_iii"])
	assert.True(t, keys["global_likes_vii"])
	assert.True(t, keys["global_viral_sensation_iv"])
}

func TestTierForThresholds(t *testing.T) {
	assert.Equal(t, "Mythic", TierFor(0.05).Name)
	assert.Equal(t, "Mythic", TierFor(0.1).Name)
	assert.Equal(t, "Legendary", TierFor(0.5).Name)
	assert.Equal(t, "Diamond", TierFor(1.5).Name)
	assert.Equal(t, "Platinum", TierFor(4).Name)
	assert.Equal(t, "Gold", TierFor(10).Name)
	assert.Equal(t, "Silver", TierFor(20).Name)
	// Thresholds are inclusive: exactly 25% is still Silver.
	assert.Equal(t, "Silver", TierFor(25).Name)
	assert.Equal(t, "Bronze", TierFor(25.01).Name)
	assert.Equal(t, "Bronze", TierFor(60).Name)
	assert.Equal(t, "Bronze", TierFor(150).Name)
}

func TestTierNeverGetsRarerAsPercentageGrows(t *testing.T) {
	tierRank := func(name string) int {
		for i, tier := range RarityTiers {
			if tier.Name == name {
				return i
			}
		}
		return -1
	}
	prev := TierFor(0.01)
	for pct := 0.02; pct <= 100; pct += 0.37 {
		cur := TierFor(pct)
		assert.GreaterOrEqual(t, tierRank(cur.Name), tierRank(prev.Name), "pct %f", pct)
		prev = cur
	}
}

func TestAwardPerFeedAndGlobal(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	registry := newFakeRegistry([]model.Achievement{
		def(t, "power_poster_i", model.ScopePerFeed,
			model.AchievementCriteria{Stat: "post_count", Operator: ">=", Value: 10}),
		def(t, "feed_explorer_i", model.ScopeGlobal,
			model.AchievementCriteria{Stat: "feed_count", Operator: ">=", Value: 2, AggMethod: "count"}),
		def(t, "global_likes_i", model.ScopeGlobal,
			model.AchievementCriteria{Stat: "total_likes_received", Operator: ">=", Value: 100, AggMethod: "sum"}),
	})
	stats := &fakeStatReader{stats: []model.UserStat{
		{UserDid: "a", FeedId: "feed-1", PostCount: 12, TotalLikesReceived: 60},
		{UserDid: "a", FeedId: "feed-2", PostCount: 3, TotalLikesReceived: 50},
		{UserDid: "b", FeedId: "feed-1", PostCount: 2, TotalLikesReceived: 1},
	}}
	engine := NewEngine(registry, stats)

	require.NoError(t, engine.Award(context.Background(), []string{"a", "b"}, now))

	// a: power poster in feed-1 only, plus both global achievements
	// (2 feeds, 110 likes summed).
	assert.Contains(t, registry.earned, store.EarnKey{UserDid: "a", AchievementId: "id-power_poster_i", FeedId: "feed-1"})
	assert.NotContains(t, registry.earned, store.EarnKey{UserDid: "a", AchievementId: "id-power_poster_i", FeedId: "feed-2"})
	assert.Contains(t, registry.earned, store.EarnKey{UserDid: "a", AchievementId: "id-feed_explorer_i", FeedId: ""})
	assert.Contains(t, registry.earned, store.EarnKey{UserDid: "a", AchievementId: "id-global_likes_i", FeedId: ""})

	// b earns nothing.
	for key := range registry.earned {
		assert.NotEqual(t, "b", key.UserDid)
	}
}

func TestAwardAlreadyEarnedIsNotReinserted(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	registry := newFakeRegistry([]model.Achievement{
		def(t, "power_poster_i", model.ScopePerFeed,
			model.AchievementCriteria{Stat: "post_count", Operator: ">=", Value: 10}),
	})
	stats := &fakeStatReader{stats: []model.UserStat{
		{UserDid: "a", FeedId: "feed-1", PostCount: 12},
	}}
	engine := NewEngine(registry, stats)

	require.NoError(t, engine.Award(context.Background(), []string{"a"}, now))
	require.Equal(t, 1, registry.markCalls)

	require.NoError(t, engine.Award(context.Background(), []string{"a"}, now.Add(time.Hour)))
	assert.Equal(t, 1, registry.markCalls)
	assert.Equal(t, now, registry.earned[store.EarnKey{UserDid: "a", AchievementId: "id-power_poster_i", FeedId: "feed-1"}])
}

func TestAwardKeptAfterStatsDrop(t *testing.T) {
	// Icebreaker requires post_count == 1: once the user posts again the
	// criteria no longer holds, but the earn stays.
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	registry := newFakeRegistry([]model.Achievement{
		def(t, "icebreaker_i", model.ScopePerFeed,
			model.AchievementCriteria{Stat: "post_count", Operator: "==", Value: 1}),
	})
	stats := &fakeStatReader{stats: []model.UserStat{
		{UserDid: "a", FeedId: "feed-1", PostCount: 1},
	}}
	engine := NewEngine(registry, stats)

	require.NoError(t, engine.Award(context.Background(), []string{"a"}, now))
	key := store.EarnKey{UserDid: "a", AchievementId: "id-icebreaker_i", FeedId: "feed-1"}
	require.Contains(t, registry.earned, key)

	stats.stats[0].PostCount = 5
	require.NoError(t, engine.Award(context.Background(), []string{"a"}, now.Add(time.Hour)))
	assert.Contains(t, registry.earned, key)
	assert.Equal(t, 1, registry.markCalls)
}

func TestGlobalMaxAggMethod(t *testing.T) {
	d := def(t, "global_viral_sensation_i", model.ScopeGlobal,
		model.AchievementCriteria{Stat: "max_post_engagement", Operator: ">=", Value: 25, AggMethod: "max"})
	d.Id = "id"

	stats := []model.UserStat{
		{UserDid: "a", FeedId: "feed-1", MaxPostEngagement: 10},
		{UserDid: "a", FeedId: "feed-2", MaxPostEngagement: 30},
	}
	assert.True(t, meets(&d, stats))

	stats[1].MaxPostEngagement = 20
	assert.False(t, meets(&d, stats))
}

func TestRefreshRarityGradesAgainstPopulationSnapshot(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	registry := newFakeRegistry([]model.Achievement{
		def(t, "power_poster_i", model.ScopePerFeed,
			model.AchievementCriteria{Stat: "post_count", Operator: ">=", Value: 10}),
		def(t, "global_likes_i", model.ScopeGlobal,
			model.AchievementCriteria{Stat: "total_likes_received", Operator: ">=", Value: 100, AggMethod: "sum"}),
	})

	// Population: 4 distinct users overall, 4 in feed-1.
	var allStats []model.UserStat
	for _, did := range []string{"a", "b", "c", "d"} {
		allStats = append(allStats, model.UserStat{UserDid: did, FeedId: "feed-1", PostCount: 1})
	}
	stats := &fakeStatReader{stats: allStats}
	engine := NewEngine(registry, stats)

	registry.earned[store.EarnKey{UserDid: "a", AchievementId: "id-power_poster_i", FeedId: "feed-1"}] = now
	registry.earned[store.EarnKey{UserDid: "a", AchievementId: "id-global_likes_i"}] = now
	registry.earned[store.EarnKey{UserDid: "b", AchievementId: "id-global_likes_i"}] = now

	require.NoError(t, engine.RefreshRarity(context.Background(), now))

	assert.InDelta(t, 50.0, registry.globalRarity["id-global_likes_i"], 1e-9)

	// 1 earner out of 4 sits exactly on the inclusive Silver boundary.
	feedRow := registry.feedRarity["id-power_poster_i/feed-1"]
	assert.InDelta(t, 25.0, feedRow.RarityPercentage, 1e-9)
	assert.Equal(t, "Silver", feedRow.RarityTier)

	// More earners can only make the achievement less rare.
	registry.earned[store.EarnKey{UserDid: "b", AchievementId: "id-power_poster_i", FeedId: "feed-1"}] = now
	require.NoError(t, engine.RefreshRarity(context.Background(), now.Add(time.Hour)))
	assert.GreaterOrEqual(t,
		registry.feedRarity["id-power_poster_i/feed-1"].RarityPercentage,
		feedRow.RarityPercentage)
}

func TestProgressReportsUnearnedOnly(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	registry := newFakeRegistry([]model.Achievement{
		def(t, "power_poster_i", model.ScopePerFeed,
			model.AchievementCriteria{Stat: "post_count", Operator: ">=", Value: 10}),
		def(t, "power_poster_ii", model.ScopePerFeed,
			model.AchievementCriteria{Stat: "post_count", Operator: ">=", Value: 50}),
	})
	stats := &fakeStatReader{stats: []model.UserStat{
		{UserDid: "a", FeedId: "feed-1", PostCount: 12},
	}}
	engine := NewEngine(registry, stats)
	registry.earned[store.EarnKey{UserDid: "a", AchievementId: "id-power_poster_i", FeedId: "feed-1"}] = now

	progress, err := engine.Progress(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, progress, 1)
	assert.Equal(t, "id-power_poster_ii", progress[0].AchievementId)
	assert.Equal(t, int64(12), progress[0].Current)
	assert.Equal(t, int64(50), progress[0].Required)
}

func TestProgressReportsFeedScopedRarity(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	defs := []model.Achievement{
		def(t, "power_poster_i", model.ScopePerFeed,
			model.AchievementCriteria{Stat: "post_count", Operator: ">=", Value: 10}),
	}
	// The definition-level rarity is the global one and must not leak into
	// per-feed progress rows.
	defs[0].RarityPercentage = 90
	registry := newFakeRegistry(defs)
	registry.feedRarity["id-power_poster_i/feed-1"] = model.AchievementFeedRarity{
		AchievementId:    "id-power_poster_i",
		FeedId:           "feed-1",
		RarityPercentage: 12.5,
		RarityTier:       "Gold",
		LastUpdated:      now,
	}
	stats := &fakeStatReader{stats: []model.UserStat{
		{UserDid: "a", FeedId: "feed-1", PostCount: 3},
		{UserDid: "a", FeedId: "feed-2", PostCount: 1},
	}}
	engine := NewEngine(registry, stats)

	progress, err := engine.Progress(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, progress, 2)
	byFeed := map[string]model.AchievementProgress{}
	for _, p := range progress {
		byFeed[p.FeedId] = p
	}
	assert.InDelta(t, 12.5, byFeed["feed-1"].Rarity, 1e-9)
	// No rarity row yet for feed-2.
	assert.Zero(t, byFeed["feed-2"].Rarity)
}

func TestFormatThousands(t *testing.T) {
	assert.Equal(t, "100", formatThousands(100))
	assert.Equal(t, "1,000", formatThousands(1000))
	assert.Equal(t, "5,000,000", formatThousands(5000000))
}
