package aggregator

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/feedmaster/feedmaster/model"
)

// EngagementSpread summarizes the distribution of weighted engagement across
// the window's posts: selected quantiles plus mean and standard deviation.
// It gives the dashboard a feel for whether a feed is carried by a few viral
// posts or by broad engagement.
func EngagementSpread(posts []model.Post, weights Weights, computedAt time.Time) model.Snapshot {
	snapshot := model.Snapshot{Entries: []model.RankedEntry{}, ComputedAt: computedAt}
	if len(posts) == 0 {
		return snapshot
	}

	scores := make([]float64, 0, len(posts))
	for i := range posts {
		scores = append(scores, float64(weights.Score(&posts[i])))
	}
	sort.Float64s(scores)

	quantiles := []struct {
		key string
		p   float64
	}{
		{"p50", 0.5},
		{"p90", 0.9},
		{"p99", 0.99},
	}
	for _, q := range quantiles {
		snapshot.Entries = append(snapshot.Entries, model.RankedEntry{
			Type:  "quantile",
			Key:   q.key,
			Score: stat.Quantile(q.p, stat.Empirical, scores, nil),
		})
	}

	mean, std := stat.MeanStdDev(scores, nil)
	snapshot.Entries = append(snapshot.Entries,
		model.RankedEntry{Type: "moment", Key: "mean", Score: mean},
		model.RankedEntry{Type: "moment", Key: "stddev", Score: zeroIfNaN(std)},
		model.RankedEntry{Type: "moment", Key: "posts", Score: float64(len(posts))},
	)
	return snapshot
}

func zeroIfNaN(v float64) float64 {
	if v != v {
		return 0
	}
	return v
}
