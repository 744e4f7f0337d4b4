package polling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedmaster/feedmaster/aggregator"
	"github.com/feedmaster/feedmaster/appview"
	"github.com/feedmaster/feedmaster/model"
)

type pollStateChange struct {
	uri        string
	score      int64
	nextPollAt *time.Time
	active     bool
}

type fakePollStore struct {
	due       []model.Post
	refreshed map[string]appview.PostView
	states    []pollStateChange
}

func newFakePollStore(due []model.Post) *fakePollStore {
	return &fakePollStore{due: due, refreshed: map[string]appview.PostView{}}
}

func (f *fakePollStore) PostsDueForPoll(ctx context.Context, now time.Time, limit int) ([]model.Post, error) {
	if len(f.due) > limit {
		return f.due[:limit], nil
	}
	return f.due, nil
}

func (f *fakePollStore) RefreshCounters(ctx context.Context, uri string, likes, reposts, replies, quotes int64) error {
	f.refreshed[uri] = appview.PostView{Uri: uri, LikeCount: likes, RepostCount: reposts, ReplyCount: replies, QuoteCount: quotes}
	return nil
}

func (f *fakePollStore) UpdatePollState(ctx context.Context, uri string, score int64, nextPollAt *time.Time, active bool) error {
	f.states = append(f.states, pollStateChange{uri: uri, score: score, nextPollAt: nextPollAt, active: active})
	return nil
}

type fakeEngagementSource struct {
	views map[string]appview.PostView
	err   error
	calls int
}

func (f *fakeEngagementSource) GetPosts(ctx context.Context, uris []string) (map[string]appview.PostView, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]appview.PostView{}
	for _, uri := range uris {
		if view, ok := f.views[uri]; ok {
			out[uri] = view
		}
	}
	return out, nil
}

var testWeights = aggregator.Weights{Like: 1, Repost: 2, Reply: 3, Quote: 2}

func duePost(uri string, age time.Duration, now time.Time) model.Post {
	return model.Post{Uri: uri, CreatedAt: now.Add(-age)}
}

func TestPollOnceRefreshesCountersAndReschedules(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	alive := duePost("at://a/1", 2*time.Minute, now)
	store := newFakePollStore([]model.Post{alive})
	source := &fakeEngagementSource{views: map[string]appview.PostView{
		"at://a/1": {Uri: "at://a/1", LikeCount: 5, RepostCount: 2, ReplyCount: 1},
	}}

	m := NewEngagementModule(
		EngagementConfig{Name: "poller", PollInterval: time.Minute, BatchLimit: 100},
		store, source, DefaultSchedule(), testWeights)
	m.pollOnce(context.Background(), now)

	// Counters land in the store and the score reflects the weights:
	// 5*1 + 2*2 + 1*3 = 12.
	require.Contains(t, store.refreshed, "at://a/1")
	assert.Equal(t, int64(5), store.refreshed["at://a/1"].LikeCount)

	require.Len(t, store.states, 1)
	state := store.states[0]
	assert.Equal(t, int64(12), state.score)
	assert.True(t, state.active)
	require.NotNil(t, state.nextPollAt)
	assert.Equal(t, now.Add(8*time.Minute), *state.nextPollAt)
}

func TestPollOnceRetiresDeletedPosts(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newFakePollStore([]model.Post{duePost("at://a/gone", 10*time.Minute, now)})
	source := &fakeEngagementSource{views: map[string]appview.PostView{}}

	m := NewEngagementModule(
		EngagementConfig{Name: "poller", PollInterval: time.Minute, BatchLimit: 100},
		store, source, DefaultSchedule(), testWeights)
	m.pollOnce(context.Background(), now)

	assert.Empty(t, store.refreshed)
	require.Len(t, store.states, 1)
	assert.False(t, store.states[0].active)
	assert.Nil(t, store.states[0].nextPollAt)
}

func TestPollOnceLeavesBatchDueOnFetchFailure(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newFakePollStore([]model.Post{duePost("at://a/1", 2*time.Minute, now)})
	source := &fakeEngagementSource{err: assert.AnError}

	m := NewEngagementModule(
		EngagementConfig{Name: "poller", PollInterval: time.Minute, BatchLimit: 100},
		store, source, DefaultSchedule(), testWeights)
	m.pollOnce(context.Background(), now)

	// Nothing written: the posts stay due and the next cycle retries.
	assert.Empty(t, store.refreshed)
	assert.Empty(t, store.states)
}

func TestPollOnceSplitsApiSizedBatches(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	var due []model.Post
	views := map[string]appview.PostView{}
	for i := 0; i < appview.MaxBatch+5; i++ {
		uri := "at://a/" + string(rune('a'+i%26)) + string(rune('0'+i/26))
		due = append(due, duePost(uri, 2*time.Minute, now))
		views[uri] = appview.PostView{Uri: uri, LikeCount: 1}
	}
	store := newFakePollStore(due)
	source := &fakeEngagementSource{views: views}

	m := NewEngagementModule(
		EngagementConfig{Name: "poller", PollInterval: time.Minute, BatchLimit: 100},
		store, source, DefaultSchedule(), testWeights)
	m.pollOnce(context.Background(), now)

	assert.Equal(t, 2, source.calls)
	assert.Len(t, store.states, appview.MaxBatch+5)
}
