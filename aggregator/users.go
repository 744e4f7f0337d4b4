package aggregator

import (
	"math"
	"sort"
	"time"

	"github.com/feedmaster/feedmaster/model"
)

// TopPostersByCount ranks authors by number of posts in the window.
func TopPostersByCount(posts []model.Post, k int) []model.RankedEntry {
	c := newCounter("user")
	for i := range posts {
		c.add(posts[i].AuthorDid, 1, posts[i].CreatedAt)
	}
	return c.topK(k)
}

// TopMentions ranks mentioned accounts by the number of distinct posts
// mentioning them.
func TopMentions(posts []model.Post, k int) []model.RankedEntry {
	c := newCounter("user")
	for i := range posts {
		post := &posts[i]
		seen := map[string]bool{}
		for _, did := range post.MentionList() {
			if seen[did] {
				continue
			}
			seen[did] = true
			c.add(did, 1, post.CreatedAt)
		}
	}
	return c.topK(k)
}

// TopUsers ranks authors by weighted engagement quality. Each author's score
// is the average post engagement times ln(post count + 1), taken with or
// without the author's weakest post, whichever is higher, so one bad post
// does not sink an otherwise strong author and a single viral post can
// outrank many low-engagement ones.
func TopUsers(posts []model.Post, weights Weights, k int) []model.RankedEntry {
	perAuthor := map[string][]float64{}
	firstSeen := map[string]time.Time{}
	for i := range posts {
		post := &posts[i]
		perAuthor[post.AuthorDid] = append(perAuthor[post.AuthorDid], float64(weights.Score(post)))
		if seen, ok := firstSeen[post.AuthorDid]; !ok || post.CreatedAt.Before(seen) {
			firstSeen[post.AuthorDid] = post.CreatedAt
		}
	}

	c := newCounter("user")
	for did, scores := range perAuthor {
		c.set(did, qualityScore(scores), firstSeen[did])
	}
	return c.topK(k)
}

func qualityScore(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	bonus := math.Log(float64(len(scores)) + 1)
	full := mean(scores) * bonus
	if len(scores) == 1 {
		return full
	}

	trimmed := append([]float64(nil), scores...)
	sort.Float64s(trimmed)
	dropped := mean(trimmed[1:]) * bonus
	return math.Max(full, dropped)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
