package aggregator

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/feedmaster/feedmaster/model"
)

// PostReader is the slice of the post store the engine needs. Listeners own
// the writes, the engine only reads.
type PostReader interface {
	QueryFeedWindow(ctx context.Context, feedId string, window model.Window, now time.Time) ([]model.Post, error)
	FirstPostTimes(ctx context.Context, authorDids []string) (map[string]time.Time, error)
}

// SnapshotWriter publishes a full set of metric families for one key.
type SnapshotWriter interface {
	ReplaceMany(ctx context.Context, feedId string, window model.Window, snapshots map[string]model.Snapshot) error
}

// Engine computes every metric family for one (feed, window) from a single
// post slice, then publishes them together.
type Engine struct {
	posts       PostReader
	snapshots   SnapshotWriter
	geo         GeoMap
	newsDomains map[string]bool
	weights     Weights
	topK        int
}

func NewEngine(posts PostReader, snapshots SnapshotWriter, geo GeoMap, newsDomains map[string]bool, weights Weights, topK int) *Engine {
	return &Engine{
		posts:       posts,
		snapshots:   snapshots,
		geo:         geo,
		newsDomains: newsDomains,
		weights:     weights,
		topK:        topK,
	}
}

// Evaluate runs one aggregation job. The query phase and the final write
// honor ctx, a deadline exceeded abandons the run with the previous
// snapshots left untouched.
func (e *Engine) Evaluate(ctx context.Context, feedId string, window model.Window, now time.Time) error {
	posts, err := e.posts.QueryFeedWindow(ctx, feedId, window, now)
	if err != nil {
		return errors.Wrapf(err, "query posts for feed %s window %s", feedId, window)
	}

	authors := distinctAuthors(posts)
	firstTimes, err := e.posts.FirstPostTimes(ctx, authors)
	if err != nil {
		return errors.Wrapf(err, "first post times for feed %s", feedId)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	snapshots := e.Compute(posts, firstTimes, window, now)
	return errors.Wrapf(
		e.snapshots.ReplaceMany(ctx, feedId, window, snapshots),
		"publish snapshots for feed %s window %s", feedId, window)
}

// Compute is the pure computation phase, separated out for tests.
func (e *Engine) Compute(posts []model.Post, firstTimes map[string]time.Time, window model.Window, now time.Time) map[string]model.Snapshot {
	wrap := func(entries []model.RankedEntry) model.Snapshot {
		return model.Snapshot{Entries: entries, ComputedAt: now}
	}

	snapshots := map[string]model.Snapshot{
		AggTopHashtags:       wrap(TopHashtags(posts, e.topK)),
		AggTopPostersByCount: wrap(TopPostersByCount(posts, e.topK)),
		AggTopUsers:          wrap(TopUsers(posts, e.weights, e.topK)),
		AggTopMentions:       wrap(TopMentions(posts, e.topK)),
		AggTopLinks:          wrap(TopLinks(posts, e.topK)),
		AggTopDomains:        wrap(TopDomains(posts, e.topK)),
		AggTopLinkCards:      wrap(TopLinkCards(posts, e.topK)),
		AggTopNewsLinkCards:  wrap(TopNewsLinkCards(posts, e.topK, e.newsDomains)),
		AggTopPosts:          wrap(TopPosts(posts, e.weights, e.topK)),
		AggTopImages:         wrap(TopImages(posts, e.weights, e.topK)),
		AggTopVideos:         wrap(TopVideos(posts, e.weights, e.topK)),
		AggFirstTimePosters:  wrap(FirstTimePosters(posts, firstTimes, window, now, e.topK)),
		AggActiveStreaks:     wrap(ActiveStreaks(posts, now, e.topK)),
		AggLongestStreaks:    wrap(LongestStreaks(posts, e.topK)),
		AggEngagementSpread:  EngagementSpread(posts, e.weights, now),
	}
	if e.geo != nil {
		snapshots[AggTopCities] = wrap(TopCities(posts, e.geo, e.topK))
		snapshots[AggTopRegions] = wrap(TopRegions(posts, e.geo, e.topK))
		snapshots[AggTopCountries] = wrap(TopCountries(posts, e.geo, e.topK))
	}
	return snapshots
}

func distinctAuthors(posts []model.Post) []string {
	seen := map[string]bool{}
	var out []string
	for i := range posts {
		if did := posts[i].AuthorDid; !seen[did] {
			seen[did] = true
			out = append(out, did)
		}
	}
	return out
}
