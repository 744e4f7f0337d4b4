package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/feedmaster/feedmaster/model"
)

// UserStore owns the users table. Rows are seeded as placeholders by the
// post upsert path and filled in by the profile resolver.
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// StaleUsers returns up to limit dids whose profile was never resolved or is
// older than staleAfter, never-resolved first.
func (s *UserStore) StaleUsers(ctx context.Context, now time.Time, staleAfter time.Duration, limit int) ([]string, error) {
	var dids []string
	err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("last_updated < ?", now.Add(-staleAfter)).
		Order("last_updated ASC").
		Limit(limit).
		Pluck("did", &dids).Error
	return dids, errors.Wrap(err, "stale users")
}

// profileColumns is every column the resolver refreshes. Did and the
// placeholder creation state stay untouched.
var profileColumns = []string{
	"handle",
	"display_name",
	"avatar_url",
	"followers_count",
	"following_count",
	"posts_count",
	"last_updated",
}

// UpsertProfiles writes resolved profiles over their placeholder rows, keyed
// by did.
func (s *UserStore) UpsertProfiles(ctx context.Context, users []model.User) error {
	if len(users) == 0 {
		return nil
	}
	return errors.Wrap(
		s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "did"}},
			DoUpdates: clause.AssignmentColumns(profileColumns),
		}).CreateInBatches(users, 200).Error,
		"upsert profiles")
}
