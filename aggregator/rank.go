// Package aggregator computes windowed aggregate snapshots over a feed's
// posts. All metric computations are pure functions over a post slice so
// they test without a database.
package aggregator

import (
	"sort"
	"time"

	"github.com/feedmaster/feedmaster/model"
)

// counter accumulates a score per key together with the key's earliest
// occurrence inside the window, which is the deterministic tie-breaker.
type counter struct {
	entryType string
	scores    map[string]float64
	firstSeen map[string]time.Time
	extras    map[string]map[string]interface{}
}

func newCounter(entryType string) *counter {
	return &counter{
		entryType: entryType,
		scores:    map[string]float64{},
		firstSeen: map[string]time.Time{},
		extras:    map[string]map[string]interface{}{},
	}
}

// add accumulates score for key, remembering the earliest occurrence time.
func (c *counter) add(key string, score float64, at time.Time) {
	c.scores[key] += score
	if seen, ok := c.firstSeen[key]; !ok || at.Before(seen) {
		c.firstSeen[key] = at
	}
}

// set overrides the score instead of accumulating, for metrics whose score is
// computed per key rather than per observation.
func (c *counter) set(key string, score float64, at time.Time) {
	c.scores[key] = score
	if seen, ok := c.firstSeen[key]; !ok || at.Before(seen) {
		c.firstSeen[key] = at
	}
}

// annotate attaches a display payload carried into the ranked entry.
func (c *counter) annotate(key string, extra map[string]interface{}) {
	c.extras[key] = extra
}

// topK ranks the accumulated keys: score descending, ties broken by earliest
// first occurrence then key for full determinism. The cutoff keeps every
// entry tied with the K-th score, so a tie at the boundary is never silently
// truncated.
func (c *counter) topK(k int) []model.RankedEntry {
	keys := make([]string, 0, len(c.scores))
	for key := range c.scores {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if c.scores[a] != c.scores[b] {
			return c.scores[a] > c.scores[b]
		}
		if !c.firstSeen[a].Equal(c.firstSeen[b]) {
			return c.firstSeen[a].Before(c.firstSeen[b])
		}
		return a < b
	})

	if k > 0 && len(keys) > k {
		cutoff := c.scores[keys[k-1]]
		end := k
		for end < len(keys) && c.scores[keys[end]] == cutoff {
			end++
		}
		keys = keys[:end]
	}

	entries := make([]model.RankedEntry, 0, len(keys))
	for _, key := range keys {
		entries = append(entries, model.RankedEntry{
			Type:  c.entryType,
			Key:   key,
			Score: c.scores[key],
			Extra: c.extras[key],
		})
	}
	return entries
}
