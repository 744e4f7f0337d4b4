// Package store is the persistence boundary. Listeners mutate only the post
// store, the aggregation workers mutate only the aggregate and user stat
// stores, and nothing here contains aggregation logic.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/feedmaster/feedmaster/model"
)

// firstPollDelay is how long after ingestion a post becomes due for its
// first engagement counter refresh.
const firstPollDelay = 5 * time.Minute

// PostStore owns all reads and writes on the posts table.
type PostStore struct {
	db        *gorm.DB
	batchSize int
}

func NewPostStore(db *gorm.DB, batchSize int) *PostStore {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &PostStore{db: db, batchSize: batchSize}
}

// UpsertPost writes one extracted post delta, keyed by URI. Ingesting the
// same event twice yields a single row. Interaction counters are
// last-write-wins, the feed association set is union-merged under a row lock
// so concurrent writers through different feeds never lose an entry.
func (s *PostStore) UpsertPost(ctx context.Context, delta *model.Post, feedId string) error {
	if delta.Uri == "" {
		return errors.New("post delta has no uri")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureAuthor(tx, delta.AuthorDid); err != nil {
			return err
		}

		fresh := *delta
		fresh.Id = uuid.New().String()
		fresh.Feeds = mustMarshalAssociations([]model.FeedAssociation{
			{FeedId: feedId, IngestedAt: delta.IngestedAt},
		})
		firstPoll := delta.IngestedAt.Add(firstPollDelay)
		fresh.ActiveForPolling = true
		fresh.NextPollAt = &firstPoll
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "uri"}},
			DoNothing: true,
		}).Create(&fresh)
		if res.Error != nil {
			return errors.Wrap(res.Error, "insert post")
		}
		if res.RowsAffected > 0 {
			return nil
		}

		// The post already exists, merge under a row lock.
		var existing model.Post
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("uri = ?", delta.Uri).First(&existing).Error; err != nil {
			return errors.Wrap(err, "lock existing post")
		}

		assocs := existing.FeedAssociations()
		if !existing.InFeed(feedId) {
			assocs = append(assocs, model.FeedAssociation{FeedId: feedId, IngestedAt: delta.IngestedAt})
		}

		updates := map[string]interface{}{
			"like_count":   delta.LikeCount,
			"repost_count": delta.RepostCount,
			"reply_count":  delta.ReplyCount,
			"quote_count":  delta.QuoteCount,
			"feeds":        mustMarshalAssociations(assocs),
		}
		return errors.Wrap(
			tx.Model(&model.Post{}).Where("id = ?", existing.Id).Updates(updates).Error,
			"merge existing post")
	})
}

// RefreshCounters updates only the interaction counters of a post, used by
// the engagement polling path. Missing posts are not an error.
func (s *PostStore) RefreshCounters(ctx context.Context, uri string, likes, reposts, replies, quotes int64) error {
	return s.db.WithContext(ctx).Model(&model.Post{}).Where("uri = ?", uri).
		Updates(map[string]interface{}{
			"like_count":   likes,
			"repost_count": reposts,
			"reply_count":  replies,
			"quote_count":  quotes,
		}).Error
}

// PostsDueForPoll returns up to limit posts whose next counter refresh is
// due, oldest due first.
func (s *PostStore) PostsDueForPoll(ctx context.Context, now time.Time, limit int) ([]model.Post, error) {
	var out []model.Post
	err := s.db.WithContext(ctx).
		Where("active_for_polling = ?", true).
		Where("next_poll_at IS NOT NULL AND next_poll_at <= ?", now).
		Where("deleted_at IS NULL").
		Order("next_poll_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, errors.Wrap(err, "posts due for poll")
}

// UpdatePollState writes the refreshed engagement score and the polling
// schedule decision for one post. A nil nextPollAt with active false retires
// the post from polling.
func (s *PostStore) UpdatePollState(ctx context.Context, uri string, engagementScore int64, nextPollAt *time.Time, active bool) error {
	return errors.Wrap(
		s.db.WithContext(ctx).Model(&model.Post{}).Where("uri = ?", uri).
			Updates(map[string]interface{}{
				"engagement_score":   engagementScore,
				"next_poll_at":       nextPollAt,
				"active_for_polling": active,
			}).Error,
		"update poll state")
}

// QueryFeedWindow returns every post associated with the feed whose creation
// time falls inside the window, ordered by creation time then id so pagination
// is stable. The feed membership check is a JSONB containment probe served by
// the GIN index on feeds.
func (s *PostStore) QueryFeedWindow(ctx context.Context, feedId string, window model.Window, now time.Time) ([]model.Post, error) {
	var out []model.Post
	start := window.Start(now)
	lastCreated := time.Time{}
	lastId := ""

	for {
		q := s.db.WithContext(ctx).
			Where("feeds @> ?", feedContainment(feedId)).
			Where("deleted_at IS NULL").
			Order("created_at ASC, id ASC").
			Limit(s.batchSize)
		if !start.IsZero() {
			q = q.Where("created_at >= ?", start)
		}
		q = q.Where("created_at <= ?", now)
		if lastId != "" {
			q = q.Where("(created_at, id) > (?, ?)", lastCreated, lastId)
		}

		var batch []model.Post
		if err := q.Find(&batch).Error; err != nil {
			return nil, errors.Wrap(err, "query feed window")
		}
		out = append(out, batch...)
		if len(batch) < s.batchSize {
			return out, nil
		}
		last := batch[len(batch)-1]
		lastCreated, lastId = last.CreatedAt, last.Id
	}
}

// FirstEverPost returns the creation time of the author's earliest post
// across all feeds, or the zero time when the author has no posts.
func (s *PostStore) FirstEverPost(ctx context.Context, authorDid string) (time.Time, error) {
	var first *time.Time
	err := s.db.WithContext(ctx).Model(&model.Post{}).
		Where("author_did = ?", authorDid).
		Where("deleted_at IS NULL").
		Select("MIN(created_at)").Scan(&first).Error
	if err != nil {
		return time.Time{}, errors.Wrap(err, "first ever post")
	}
	if first == nil {
		return time.Time{}, nil
	}
	return *first, nil
}

// FirstPostTimes is the batch form of FirstEverPost for aggregation runs,
// one GROUP BY instead of a query per author.
func (s *PostStore) FirstPostTimes(ctx context.Context, authorDids []string) (map[string]time.Time, error) {
	out := map[string]time.Time{}
	if len(authorDids) == 0 {
		return out, nil
	}

	type row struct {
		AuthorDid string
		First     time.Time
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&model.Post{}).
		Where("author_did IN ?", authorDids).
		Where("deleted_at IS NULL").
		Select("author_did, MIN(created_at) AS first").
		Group("author_did").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "first post times")
	}
	for _, r := range rows {
		out[r.AuthorDid] = r.First
	}
	return out, nil
}

// ActiveAuthors returns the distinct authors with at least one post in the
// feed, or system-wide when feedId is empty. This is the population basis for
// rarity.
func (s *PostStore) ActiveAuthors(ctx context.Context, feedId string) ([]string, error) {
	q := s.db.WithContext(ctx).Model(&model.Post{}).Distinct("author_did").
		Where("deleted_at IS NULL")
	if feedId != "" {
		q = q.Where("feeds @> ?", feedContainment(feedId))
	}
	var dids []string
	if err := q.Pluck("author_did", &dids).Error; err != nil {
		return nil, errors.Wrap(err, "active authors")
	}
	return dids, nil
}

// ensureAuthor inserts a placeholder user row so the post's author FK
// resolves. Profile resolution fills in the real handle later.
func ensureAuthor(tx *gorm.DB, did string) error {
	if did == "" {
		return errors.New("post delta has no author did")
	}
	placeholder := model.User{
		Did:         did,
		Handle:      placeholderHandle(did),
		LastUpdated: time.Time{},
	}
	return errors.Wrap(
		tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&placeholder).Error,
		"ensure author")
}

func placeholderHandle(did string) string {
	trimmed := strings.TrimPrefix(did, "did:plc:")
	if len(trimmed) > 16 {
		trimmed = trimmed[:16]
	}
	return fmt.Sprintf("unknown.%s", trimmed)
}

func feedContainment(feedId string) datatypes.JSON {
	probe, _ := json.Marshal([]map[string]string{{"feed_id": feedId}})
	return datatypes.JSON(probe)
}

func mustMarshalAssociations(assocs []model.FeedAssociation) datatypes.JSON {
	data, err := json.Marshal(assocs)
	if err != nil {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(data)
}
