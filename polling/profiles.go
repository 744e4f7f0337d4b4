package polling

import (
	"context"
	"time"

	"github.com/araddon/dateparse"

	"github.com/feedmaster/feedmaster/appview"
	"github.com/feedmaster/feedmaster/model"
	"github.com/feedmaster/feedmaster/utils/log"
)

// ProfileSource resolves a batch of dids into full profiles.
type ProfileSource interface {
	GetProfiles(ctx context.Context, dids []string) ([]appview.ProfileView, error)
}

// UserDirectory is the slice of the user store the resolver drives.
type UserDirectory interface {
	StaleUsers(ctx context.Context, now time.Time, staleAfter time.Duration, limit int) ([]string, error)
	UpsertProfiles(ctx context.Context, users []model.User) error
}

type ProfileConfig struct {
	Name string
	// Cadence of the stale-profile scan.
	PollInterval time.Duration
	// A profile older than this is resolved again. Placeholder rows have a
	// zero refresh time and are always picked up first.
	StaleAfter time.Duration
	// Most profiles resolved per cycle.
	BatchLimit int
}

// ProfileModule replaces placeholder author rows with resolved handles,
// display names and avatars, and re-resolves profiles past their staleness
// bound. It implements worker.Module.
type ProfileModule struct {
	config ProfileConfig
	users  UserDirectory
	source ProfileSource
}

func NewProfileModule(config ProfileConfig, users UserDirectory, source ProfileSource) *ProfileModule {
	return &ProfileModule{config: config, users: users, source: source}
}

func (m *ProfileModule) RunModule(ctx context.Context) error {
	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	m.resolveOnce(ctx, time.Now().UTC())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.resolveOnce(ctx, time.Now().UTC())
		}
	}
}

func (m *ProfileModule) resolveOnce(ctx context.Context, now time.Time) {
	dids, err := m.users.StaleUsers(ctx, now, m.config.StaleAfter, m.config.BatchLimit)
	if err != nil {
		log.Log.Error("fail to scan stale profiles: ", err)
		return
	}
	if len(dids) == 0 {
		return
	}

	var resolved []model.User
	for start := 0; start < len(dids); start += appview.MaxBatch {
		end := start + appview.MaxBatch
		if end > len(dids) {
			end = len(dids)
		}
		profiles, err := m.source.GetProfiles(ctx, dids[start:end])
		if err != nil {
			// Untouched rows stay stale and come back next cycle.
			log.Log.Warn("fail to resolve profile batch: ", err)
			continue
		}
		for _, profile := range profiles {
			resolved = append(resolved, profileToUser(profile, now))
		}
	}
	if len(resolved) == 0 {
		return
	}

	if err := m.users.UpsertProfiles(ctx, resolved); err != nil {
		log.Log.Error("fail to store resolved profiles: ", err)
		return
	}
	log.Log.Infof("resolved %d profiles out of %d stale", len(resolved), len(dids))
}

func profileToUser(profile appview.ProfileView, now time.Time) model.User {
	user := model.User{
		Did:            profile.Did,
		Handle:         profile.Handle,
		DisplayName:    profile.DisplayName,
		AvatarUrl:      profile.Avatar,
		FollowersCount: profile.FollowersCount,
		FollowingCount: profile.FollowsCount,
		PostsCount:     profile.PostsCount,
		LastUpdated:    now,
	}
	if profile.CreatedAt != "" {
		if created, err := dateparse.ParseAny(profile.CreatedAt); err == nil {
			user.CreatedAt = created.UTC()
		}
	}
	return user
}

func (m *ProfileModule) Name() string {
	return m.config.Name
}

func (m *ProfileModule) Shutdown() {}
