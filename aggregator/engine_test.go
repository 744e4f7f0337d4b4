package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedmaster/feedmaster/model"
)

type fakePostReader struct {
	posts      []model.Post
	firstTimes map[string]time.Time
	queryErr   error
}

func (f *fakePostReader) QueryFeedWindow(ctx context.Context, feedId string, window model.Window, now time.Time) ([]model.Post, error) {
	return f.posts, f.queryErr
}

func (f *fakePostReader) FirstPostTimes(ctx context.Context, authorDids []string) (map[string]time.Time, error) {
	out := map[string]time.Time{}
	for _, did := range authorDids {
		if first, ok := f.firstTimes[did]; ok {
			out[did] = first
		}
	}
	return out, nil
}

type fakeSnapshotWriter struct {
	feedId    string
	window    model.Window
	snapshots map[string]model.Snapshot
	calls     int
}

func (f *fakeSnapshotWriter) ReplaceMany(ctx context.Context, feedId string, window model.Window, snapshots map[string]model.Snapshot) error {
	f.feedId = feedId
	f.window = window
	f.snapshots = snapshots
	f.calls++
	return nil
}

func TestEngineEvaluatePublishesAllFamiliesTogether(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	reader := &fakePostReader{
		posts: []model.Post{
			buildPost(t, postSpec{author: "did:plc:anna", createdAt: now.Add(-40 * time.Minute), hashtags: []string{"alpha"}, likes: 4}),
			buildPost(t, postSpec{author: "did:plc:anna", createdAt: now.Add(-30 * time.Minute), hashtags: []string{"alpha", "beta"}}),
			buildPost(t, postSpec{author: "did:plc:bob", createdAt: now.Add(-20 * time.Minute), hashtags: []string{"alpha"}}),
		},
		firstTimes: map[string]time.Time{
			"did:plc:anna": now.Add(-40 * time.Minute),
			"did:plc:bob":  now.Add(-90 * 24 * time.Hour),
		},
	}
	writer := &fakeSnapshotWriter{}
	engine := NewEngine(reader, writer, nil, nil, testWeights, 50)

	require.NoError(t, engine.Evaluate(context.Background(), "feed-1", model.WindowHour, now))
	require.Equal(t, 1, writer.calls)
	assert.Equal(t, "feed-1", writer.feedId)
	assert.Equal(t, model.WindowHour, writer.window)

	// Every non-geo family is present in the single publish, even empty ones.
	for _, name := range []string{
		AggTopHashtags, AggTopPostersByCount, AggTopUsers, AggTopMentions,
		AggTopLinks, AggTopDomains, AggTopLinkCards, AggTopNewsLinkCards,
		AggTopPosts, AggTopImages, AggTopVideos, AggFirstTimePosters,
		AggActiveStreaks, AggLongestStreaks, AggEngagementSpread,
	} {
		_, ok := writer.snapshots[name]
		assert.True(t, ok, name)
	}
	_, hasGeo := writer.snapshots[AggTopCities]
	assert.False(t, hasGeo)

	hashtags := writer.snapshots[AggTopHashtags].Entries
	require.NotEmpty(t, hashtags)
	assert.Equal(t, "alpha", hashtags[0].Key)
	assert.Equal(t, float64(3), hashtags[0].Score)

	posters := writer.snapshots[AggTopPostersByCount].Entries
	require.Len(t, posters, 2)
	assert.Equal(t, "did:plc:anna", posters[0].Key)
	assert.Equal(t, "did:plc:bob", posters[1].Key)

	// Anna's first-ever post falls inside the window; Bob posted months ago.
	firstTimers := writer.snapshots[AggFirstTimePosters].Entries
	require.Len(t, firstTimers, 1)
	assert.Equal(t, "did:plc:anna", firstTimers[0].Key)
}

func TestEngineIncludesGeoFamiliesWhenMapped(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	reader := &fakePostReader{
		posts: []model.Post{
			buildPost(t, postSpec{author: "a", createdAt: now.Add(-time.Minute), hashtags: []string{"portland"}}),
		},
		firstTimes: map[string]time.Time{},
	}
	writer := &fakeSnapshotWriter{}
	geo := GeoMap{"portland": {City: "Portland", Region: "Oregon", Country: "USA"}}
	engine := NewEngine(reader, writer, geo, nil, testWeights, 50)

	require.NoError(t, engine.Evaluate(context.Background(), "feed-1", model.WindowHour, now))

	cities := writer.snapshots[AggTopCities].Entries
	require.Len(t, cities, 1)
	assert.Equal(t, "Portland", cities[0].Key)
	assert.Len(t, writer.snapshots[AggTopRegions].Entries, 1)
	assert.Len(t, writer.snapshots[AggTopCountries].Entries, 1)
}

func TestEngineAbandonsOnCanceledContext(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	reader := &fakePostReader{firstTimes: map[string]time.Time{}}
	writer := &fakeSnapshotWriter{}
	engine := NewEngine(reader, writer, nil, nil, testWeights, 50)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := engine.Evaluate(ctx, "feed-1", model.WindowHour, now)
	require.Error(t, err)
	// No partial publish on abandonment.
	assert.Equal(t, 0, writer.calls)
}

func TestEngineEmptyWindowPublishesEmptySnapshots(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	reader := &fakePostReader{firstTimes: map[string]time.Time{}}
	writer := &fakeSnapshotWriter{}
	engine := NewEngine(reader, writer, nil, nil, testWeights, 50)

	require.NoError(t, engine.Evaluate(context.Background(), "feed-1", model.WindowHour, now))
	require.Equal(t, 1, writer.calls)
	assert.Empty(t, writer.snapshots[AggTopHashtags].Entries)
	assert.Empty(t, writer.snapshots[AggEngagementSpread].Entries)
}
