package aggregator

import (
	"time"

	"github.com/feedmaster/feedmaster/model"
)

// FirstTimePosters finds the authors whose earliest-ever post across the
// whole system falls inside this window. firstTimes carries each author's
// global first post time, looked up across all feeds, so an author who is
// new to this feed but posted elsewhere before does not count.
func FirstTimePosters(posts []model.Post, firstTimes map[string]time.Time, window model.Window, now time.Time, k int) []model.RankedEntry {
	start := window.Start(now)
	c := newCounter("user")
	for i := range posts {
		did := posts[i].AuthorDid
		first, known := firstTimes[did]
		if !known || first.After(now) {
			continue
		}
		if !start.IsZero() && first.Before(start) {
			continue
		}
		c.set(did, 1, first)
		c.annotate(did, map[string]interface{}{"first_post_at": first})
	}
	return c.topK(k)
}
