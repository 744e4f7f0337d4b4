package aggregator

import "github.com/feedmaster/feedmaster/model"

// TopHashtags counts how many distinct posts carry each hashtag. A hashtag
// repeated inside one post contributes once.
func TopHashtags(posts []model.Post, k int) []model.RankedEntry {
	c := newCounter("hashtag")
	for i := range posts {
		post := &posts[i]
		seen := map[string]bool{}
		for _, tag := range post.HashtagList() {
			if seen[tag] {
				continue
			}
			seen[tag] = true
			c.add(tag, 1, post.CreatedAt)
		}
	}
	return c.topK(k)
}
