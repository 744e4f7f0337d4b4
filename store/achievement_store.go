package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/feedmaster/feedmaster/model"
)

// AchievementStore owns the achievement registry and earned state.
type AchievementStore struct {
	db *gorm.DB
}

func NewAchievementStore(db *gorm.DB) *AchievementStore {
	return &AchievementStore{db: db}
}

// SyncDefinitions upserts the registry by key, so redeploys with edited
// definitions update names and criteria without disturbing earned rows.
func (s *AchievementStore) SyncDefinitions(ctx context.Context, defs []model.Achievement) error {
	for i := range defs {
		if defs[i].Id == "" {
			defs[i].Id = uuid.New().String()
		}
	}
	return errors.Wrap(
		s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "description", "icon", "series_key", "scope",
				"criteria", "repeatable", "active",
			}),
		}).Create(&defs).Error,
		"sync achievement definitions")
}

// ActiveDefinitions returns every active achievement.
func (s *AchievementStore) ActiveDefinitions(ctx context.Context) ([]model.Achievement, error) {
	var defs []model.Achievement
	err := s.db.WithContext(ctx).Where("active = ?", true).Find(&defs).Error
	return defs, errors.Wrap(err, "active achievement definitions")
}

// MarkEarned records an earn. Insert-only with conflict ignored, so an earn
// can never be overwritten or its timestamp moved.
func (s *AchievementStore) MarkEarned(ctx context.Context, userDid string, achievementId string, feedId string, earnedAt time.Time) error {
	row := model.UserAchievement{
		Id:            uuid.New().String(),
		UserDid:       userDid,
		AchievementId: achievementId,
		FeedId:        feedId,
		EarnedAt:      earnedAt,
	}
	return errors.Wrap(
		s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error,
		"mark achievement earned")
}

// EarnedSet returns every earned row, keyed for O(1) lookup during an
// evaluation cycle.
func (s *AchievementStore) EarnedSet(ctx context.Context) (map[EarnKey]time.Time, error) {
	var rows []model.UserAchievement
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load earned achievements")
	}
	out := make(map[EarnKey]time.Time, len(rows))
	for _, r := range rows {
		out[EarnKey{UserDid: r.UserDid, AchievementId: r.AchievementId, FeedId: r.FeedId}] = r.EarnedAt
	}
	return out, nil
}

// EarnKey identifies one earned-achievement row.
type EarnKey struct {
	UserDid       string
	AchievementId string
	FeedId        string
}

// EarnCounts returns, per achievement id, how many distinct users have earned
// it within the given feed scope (feedId empty for global).
func (s *AchievementStore) EarnCounts(ctx context.Context, feedId string) (map[string]int64, error) {
	type row struct {
		AchievementId string
		Earners       int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&model.UserAchievement{}).
		Where("feed_id = ?", feedId).
		Select("achievement_id, COUNT(DISTINCT user_did) AS earners").
		Group("achievement_id").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "earn counts")
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.AchievementId] = r.Earners
	}
	return out, nil
}

// UpdateGlobalRarity writes the recomputed global rarity onto the definition
// row.
func (s *AchievementStore) UpdateGlobalRarity(ctx context.Context, achievementId string, percentage float64, tier string, label string) error {
	return errors.Wrap(
		s.db.WithContext(ctx).Model(&model.Achievement{}).
			Where("id = ?", achievementId).
			Updates(map[string]interface{}{
				"rarity_percentage": percentage,
				"rarity_tier":       tier,
				"rarity_label":      label,
			}).Error,
		"update global rarity")
}

// UpsertFeedRarity writes per-feed rarity for a per-feed achievement.
func (s *AchievementStore) UpsertFeedRarity(ctx context.Context, rarity model.AchievementFeedRarity) error {
	if rarity.Id == "" {
		rarity.Id = uuid.New().String()
	}
	return errors.Wrap(
		s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "achievement_id"}, {Name: "feed_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"rarity_percentage", "rarity_tier", "rarity_label", "last_updated",
			}),
		}).Create(&rarity).Error,
		"upsert feed rarity")
}

// FeedRarities returns one feed's rarity rows keyed by achievement id.
func (s *AchievementStore) FeedRarities(ctx context.Context, feedId string) (map[string]model.AchievementFeedRarity, error) {
	var rows []model.AchievementFeedRarity
	if err := s.db.WithContext(ctx).Where("feed_id = ?", feedId).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "feed rarities")
	}
	out := make(map[string]model.AchievementFeedRarity, len(rows))
	for _, r := range rows {
		out[r.AchievementId] = r
	}
	return out, nil
}

// ActiveFeeds returns every feed flagged active, read-only for the listener
// pool and scheduler.
func ActiveFeeds(ctx context.Context, db *gorm.DB) ([]model.Feed, error) {
	var feeds []model.Feed
	err := db.WithContext(ctx).Where("active = ?", true).Find(&feeds).Error
	return feeds, errors.Wrap(err, "load active feeds")
}
