package aggregator

import (
	"sort"
	"time"

	"github.com/feedmaster/feedmaster/model"
)

// streak is one run of consecutive calendar days with at least one post.
type streak struct {
	length  int
	lastDay time.Time
}

// authorStreaks computes every posting streak per author from the post
// slice. Days are UTC calendar days of the post creation time.
func authorStreaks(posts []model.Post) map[string][]streak {
	days := map[string]map[time.Time]bool{}
	for i := range posts {
		post := &posts[i]
		day := post.CreatedAt.UTC().Truncate(24 * time.Hour)
		if days[post.AuthorDid] == nil {
			days[post.AuthorDid] = map[time.Time]bool{}
		}
		days[post.AuthorDid][day] = true
	}

	out := map[string][]streak{}
	for did, daySet := range days {
		ordered := make([]time.Time, 0, len(daySet))
		for day := range daySet {
			ordered = append(ordered, day)
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

		var streaks []streak
		current := streak{length: 1, lastDay: ordered[0]}
		for _, day := range ordered[1:] {
			if day.Sub(current.lastDay) == 24*time.Hour {
				current.length++
				current.lastDay = day
				continue
			}
			streaks = append(streaks, current)
			current = streak{length: 1, lastDay: day}
		}
		out[did] = append(streaks, current)
	}
	return out
}

// LongestStreaks ranks authors by their best-ever streak inside the slice.
// Single-day runs are noise and are omitted.
func LongestStreaks(posts []model.Post, k int) []model.RankedEntry {
	c := newCounter("user")
	for did, streaks := range authorStreaks(posts) {
		best := streak{}
		for _, s := range streaks {
			if s.length > best.length {
				best = s
			}
		}
		if best.length > 1 {
			c.set(did, float64(best.length), best.lastDay)
		}
	}
	return c.topK(k)
}

// ActiveStreaks ranks authors by their ongoing streak. A streak is active
// when its last posting day is today or yesterday relative to now.
func ActiveStreaks(posts []model.Post, now time.Time, k int) []model.RankedEntry {
	today := now.UTC().Truncate(24 * time.Hour)
	c := newCounter("user")
	for did, streaks := range authorStreaks(posts) {
		last := streaks[len(streaks)-1]
		if last.length > 1 && !last.lastDay.Before(today.Add(-24*time.Hour)) {
			c.set(did, float64(last.length), last.lastDay)
		}
	}
	return c.topK(k)
}
