package polling

import (
	"context"
	"time"

	"github.com/feedmaster/feedmaster/aggregator"
	"github.com/feedmaster/feedmaster/appview"
	"github.com/feedmaster/feedmaster/model"
	"github.com/feedmaster/feedmaster/utils/log"
)

// EngagementSource fetches current counters for a batch of post uris.
type EngagementSource interface {
	GetPosts(ctx context.Context, uris []string) (map[string]appview.PostView, error)
}

// PollStore is the slice of the post store the engagement poller drives.
type PollStore interface {
	PostsDueForPoll(ctx context.Context, now time.Time, limit int) ([]model.Post, error)
	RefreshCounters(ctx context.Context, uri string, likes, reposts, replies, quotes int64) error
	UpdatePollState(ctx context.Context, uri string, engagementScore int64, nextPollAt *time.Time, active bool) error
}

type EngagementConfig struct {
	Name string
	// Cadence of the due-post scan.
	PollInterval time.Duration
	// Most posts refreshed per cycle.
	BatchLimit int
}

// EngagementModule periodically refreshes interaction counters for posts the
// schedule still considers worth watching. It implements worker.Module and
// runs inside the ingester process.
type EngagementModule struct {
	config   EngagementConfig
	posts    PollStore
	source   EngagementSource
	schedule Schedule
	weights  aggregator.Weights
}

func NewEngagementModule(config EngagementConfig, posts PollStore, source EngagementSource, schedule Schedule, weights aggregator.Weights) *EngagementModule {
	return &EngagementModule{
		config:   config,
		posts:    posts,
		source:   source,
		schedule: schedule,
		weights:  weights,
	}
}

func (m *EngagementModule) RunModule(ctx context.Context) error {
	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	m.pollOnce(ctx, time.Now().UTC())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.pollOnce(ctx, time.Now().UTC())
		}
	}
}

// pollOnce runs one cycle: scan due posts, fetch their counters in API-sized
// batches, write the refreshed counts and the next schedule decision.
func (m *EngagementModule) pollOnce(ctx context.Context, now time.Time) {
	due, err := m.posts.PostsDueForPoll(ctx, now, m.config.BatchLimit)
	if err != nil {
		log.Log.Error("fail to scan posts due for poll: ", err)
		return
	}
	if len(due) == 0 {
		return
	}

	var refreshed, retired int
	for start := 0; start < len(due); start += appview.MaxBatch {
		end := start + appview.MaxBatch
		if end > len(due) {
			end = len(due)
		}
		batch := due[start:end]

		uris := make([]string, 0, len(batch))
		for i := range batch {
			uris = append(uris, batch[i].Uri)
		}
		views, err := m.source.GetPosts(ctx, uris)
		if err != nil {
			// Leave the batch due, the next cycle retries it.
			log.Log.Warn("fail to fetch engagement batch: ", err)
			continue
		}

		for i := range batch {
			post := &batch[i]
			view, exists := views[post.Uri]
			if !exists {
				// Gone upstream, most likely deleted.
				if err := m.posts.UpdatePollState(ctx, post.Uri, post.EngagementScore, nil, false); err != nil {
					log.Log.Error("fail to retire post from polling: ", err)
				}
				retired++
				continue
			}

			if err := m.posts.RefreshCounters(ctx, post.Uri, view.LikeCount, view.RepostCount, view.ReplyCount, view.QuoteCount); err != nil {
				log.Log.Error("fail to refresh counters: ", err)
				continue
			}

			post.LikeCount = view.LikeCount
			post.RepostCount = view.RepostCount
			post.ReplyCount = view.ReplyCount
			post.QuoteCount = view.QuoteCount
			score := m.weights.Score(post)

			delay, keep := m.schedule.Next(now.Sub(post.CreatedAt), score)
			var nextPollAt *time.Time
			if keep {
				next := now.Add(delay)
				nextPollAt = &next
			} else {
				retired++
			}
			if err := m.posts.UpdatePollState(ctx, post.Uri, score, nextPollAt, keep); err != nil {
				log.Log.Error("fail to update poll state: ", err)
				continue
			}
			refreshed++
		}
	}
	log.Log.Infof("engagement poll cycle refreshed %d posts, retired %d", refreshed, retired)
}

func (m *EngagementModule) Name() string {
	return m.config.Name
}

func (m *EngagementModule) Shutdown() {}
