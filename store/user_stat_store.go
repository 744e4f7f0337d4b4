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

// UserStatStore owns the user_stats table. The periodic recompute path calls
// ReplaceAllForFeed and is authoritative, the ingestion path calls
// BumpForPost as a best-effort cache that the next recompute overwrites.
type UserStatStore struct {
	db *gorm.DB
}

func NewUserStatStore(db *gorm.DB) *UserStatStore {
	return &UserStatStore{db: db}
}

// statColumns is every recomputed column. The full list is overwritten on
// conflict so an authoritative recompute never merges with stale incremental
// values.
var statColumns = []string{
	"post_count",
	"total_likes_received",
	"total_reposts_received",
	"total_replies_received",
	"total_quotes_received",
	"image_post_count",
	"video_post_count",
	"max_post_engagement",
	"current_streak",
	"longest_streak",
	"last_post_date",
	"first_post_at",
	"latest_post_at",
	"last_updated",
}

// ReplaceAllForFeed overwrites the stats of every listed user in one feed and
// deletes rows for users no longer present, all in one transaction.
func (s *UserStatStore) ReplaceAllForFeed(ctx context.Context, feedId string, stats []model.UserStat) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dids := make([]string, 0, len(stats))
		for i := range stats {
			stats[i].Id = uuid.New().String()
			stats[i].FeedId = feedId
			dids = append(dids, stats[i].UserDid)
		}

		stale := tx.Where("feed_id = ?", feedId)
		if len(dids) > 0 {
			stale = stale.Where("user_did NOT IN ?", dids)
		}
		if err := stale.Delete(&model.UserStat{}).Error; err != nil {
			return errors.Wrap(err, "delete stale user stats")
		}
		if len(stats) == 0 {
			return nil
		}
		return errors.Wrap(
			tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_did"}, {Name: "feed_id"}},
				DoUpdates: clause.AssignmentColumns(statColumns),
			}).CreateInBatches(stats, 200).Error,
			"replace user stats")
	})
}

// BumpForPost applies one observed post to the author's running counters.
// Best effort only, every column it touches is overwritten by the next
// recompute cycle.
func (s *UserStatStore) BumpForPost(ctx context.Context, post *model.Post, feedId string, engagement int64) error {
	day := post.CreatedAt.UTC().Truncate(24 * time.Hour)
	fresh := model.UserStat{
		Id:                   uuid.New().String(),
		UserDid:              post.AuthorDid,
		FeedId:               feedId,
		PostCount:            1,
		TotalLikesReceived:   post.LikeCount,
		TotalRepostsReceived: post.RepostCount,
		TotalRepliesReceived: post.ReplyCount,
		TotalQuotesReceived:  post.QuoteCount,
		MaxPostEngagement:    engagement,
		CurrentStreak:        1,
		LongestStreak:        1,
		LastPostDate:         day,
		FirstPostAt:          post.CreatedAt,
		LatestPostAt:         post.CreatedAt,
		LastUpdated:          time.Now(),
	}
	if post.HasImage {
		fresh.ImagePostCount = 1
	}
	if post.HasVideo {
		fresh.VideoPostCount = 1
	}

	return errors.Wrap(
		s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_did"}, {Name: "feed_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"post_count":             gorm.Expr("user_stats.post_count + 1"),
				"total_likes_received":   gorm.Expr("user_stats.total_likes_received + ?", post.LikeCount),
				"total_reposts_received": gorm.Expr("user_stats.total_reposts_received + ?", post.RepostCount),
				"total_replies_received": gorm.Expr("user_stats.total_replies_received + ?", post.ReplyCount),
				"total_quotes_received":  gorm.Expr("user_stats.total_quotes_received + ?", post.QuoteCount),
				"image_post_count":       gorm.Expr("user_stats.image_post_count + ?", boolToInt(post.HasImage)),
				"video_post_count":       gorm.Expr("user_stats.video_post_count + ?", boolToInt(post.HasVideo)),
				"max_post_engagement":    gorm.Expr("GREATEST(user_stats.max_post_engagement, ?)", engagement),
				"latest_post_at":         gorm.Expr("GREATEST(user_stats.latest_post_at, ?)", post.CreatedAt),
				"last_updated":           time.Now(),
			}),
		}).Create(&fresh).Error,
		"bump user stat")
}

// StatsForFeed returns every stat row of one feed.
func (s *UserStatStore) StatsForFeed(ctx context.Context, feedId string) ([]model.UserStat, error) {
	var stats []model.UserStat
	err := s.db.WithContext(ctx).Where("feed_id = ?", feedId).Find(&stats).Error
	return stats, errors.Wrap(err, "stats for feed")
}

// StatsForUser returns a user's per-feed rows, used by global achievement
// evaluation to collapse them with the criteria's aggregation method.
func (s *UserStatStore) StatsForUser(ctx context.Context, userDid string) ([]model.UserStat, error) {
	var stats []model.UserStat
	err := s.db.WithContext(ctx).Where("user_did = ?", userDid).Find(&stats).Error
	return stats, errors.Wrap(err, "stats for user")
}

// AllStats streams every stat row grouped by nothing in particular, the
// achievement engine builds its own per-user view.
func (s *UserStatStore) AllStats(ctx context.Context) ([]model.UserStat, error) {
	var stats []model.UserStat
	err := s.db.WithContext(ctx).Find(&stats).Error
	return stats, errors.Wrap(err, "all user stats")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
