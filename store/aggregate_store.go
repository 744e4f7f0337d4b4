package store

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/feedmaster/feedmaster/model"
	"github.com/feedmaster/feedmaster/utils"
	"github.com/feedmaster/feedmaster/utils/log"
)

// snapshotCache is the slice of the Redis client the store writes through.
type snapshotCache interface {
	SetAggregateSnapshot(feedId string, aggName string, window string, payload []byte, ttl time.Duration) error
	GetAggregateSnapshot(feedId string, aggName string, window string) ([]byte, error)
	DeleteAggregateSnapshots(feedId string, window string, aggNames []string) error
}

// AggregateStore owns the aggregates table plus a best-effort Redis cache in
// front of it. Postgres is always authoritative, a cache failure is logged
// and ignored.
type AggregateStore struct {
	db    *gorm.DB
	cache snapshotCache
	ttl   time.Duration
}

func NewAggregateStore(db *gorm.DB, redis *utils.RedisClient, ttl time.Duration) *AggregateStore {
	s := &AggregateStore{db: db, ttl: ttl}
	if redis != nil {
		s.cache = redis
	}
	return s
}

// Replace atomically swaps the snapshot for one (feed, aggregation, window)
// key. The whole payload lands in a single upserted row, readers observe
// either the previous snapshot or the new one.
func (s *AggregateStore) Replace(ctx context.Context, feedId string, aggName string, window model.Window, snapshot model.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}

	row := model.Aggregate{
		Id:         uuid.New().String(),
		FeedId:     feedId,
		AggName:    aggName,
		Window:     window,
		DataJson:   datatypes.JSON(payload),
		ComputedAt: snapshot.ComputedAt,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "feed_id"}, {Name: "agg_name"}, {Name: "window"}},
		DoUpdates: clause.AssignmentColumns([]string{"data_json", "computed_at"}),
	}).Create(&row).Error
	if err != nil {
		return errors.Wrap(err, "replace aggregate snapshot")
	}

	if s.cache != nil {
		if err := s.cache.SetAggregateSnapshot(feedId, aggName, string(window), payload, s.ttl); err != nil {
			log.Log.Warn("fail to cache aggregate snapshot: ", err)
		}
	}
	return nil
}

// ReplaceMany swaps every metric family of one (feed, window) in a single
// transaction, so a reader never sees some families from the old computation
// and others from the new one.
func (s *AggregateStore) ReplaceMany(ctx context.Context, feedId string, window model.Window, snapshots map[string]model.Snapshot) error {
	names := make([]string, 0, len(snapshots))
	for name := range snapshots {
		names = append(names, name)
	}
	sort.Strings(names)

	payloads := map[string][]byte{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, name := range names {
			payload, err := json.Marshal(snapshots[name])
			if err != nil {
				return errors.Wrapf(err, "marshal snapshot %s", name)
			}
			payloads[name] = payload

			row := model.Aggregate{
				Id:         uuid.New().String(),
				FeedId:     feedId,
				AggName:    name,
				Window:     window,
				DataJson:   datatypes.JSON(payload),
				ComputedAt: snapshots[name].ComputedAt,
			}
			err = tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "feed_id"}, {Name: "agg_name"}, {Name: "window"}},
				DoUpdates: clause.AssignmentColumns([]string{"data_json", "computed_at"}),
			}).Create(&row).Error
			if err != nil {
				return errors.Wrapf(err, "replace aggregate snapshot %s", name)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.cache != nil {
		s.cacheFamilies(feedId, window, names, payloads)
	}
	return nil
}

// cacheFamilies writes every family of one (feed, window) to the cache. On
// the first write failure the whole family set is evicted, a reader must
// never see a fresh family next to a stale one.
func (s *AggregateStore) cacheFamilies(feedId string, window model.Window, names []string, payloads map[string][]byte) {
	for _, name := range names {
		if err := s.cache.SetAggregateSnapshot(feedId, name, string(window), payloads[name], s.ttl); err != nil {
			log.Log.Warn("fail to cache aggregate snapshot: ", err)
			if err := s.cache.DeleteAggregateSnapshots(feedId, string(window), names); err != nil {
				log.Log.Warn("fail to evict aggregate snapshots: ", err)
			}
			return
		}
	}
}

// Current returns the latest snapshot for a key, or nil when none has been
// computed yet.
func (s *AggregateStore) Current(ctx context.Context, feedId string, aggName string, window model.Window) (*model.Snapshot, error) {
	if s.cache != nil {
		if payload, err := s.cache.GetAggregateSnapshot(feedId, aggName, string(window)); err == nil && payload != nil {
			var snapshot model.Snapshot
			if err := json.Unmarshal(payload, &snapshot); err == nil {
				return &snapshot, nil
			}
		}
	}

	var row model.Aggregate
	err := s.db.WithContext(ctx).
		Where("feed_id = ? AND agg_name = ? AND window = ?", feedId, aggName, window).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read aggregate snapshot")
	}

	var snapshot model.Snapshot
	if err := json.Unmarshal(row.DataJson, &snapshot); err != nil {
		return nil, errors.Wrap(err, "decode aggregate snapshot")
	}
	return &snapshot, nil
}
