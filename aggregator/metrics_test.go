package aggregator

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/feedmaster/feedmaster/model"
)

var (
	metricsNow     = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	testWeights    = Weights{Like: 1, Repost: 2, Reply: 3, Quote: 2}
	postCounterSeq int
)

func jsonColumn(t *testing.T, v interface{}) datatypes.JSON {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return datatypes.JSON(data)
}

type postSpec struct {
	author    string
	createdAt time.Time
	hashtags  []string
	mentions  []string
	links     []model.LinkDetail
	likes     int64
	reposts   int64
	replies   int64
	hasImage  bool
	hasVideo  bool
	linkUrl   string
	linkTitle string
}

func buildPost(t *testing.T, spec postSpec) model.Post {
	t.Helper()
	postCounterSeq++
	p := model.Post{
		Id:          string(rune('a' + postCounterSeq%26)),
		Uri:         "at://" + spec.author + "/app.bsky.feed.post/" + time.Now().Format("150405.000") + string(rune('a'+postCounterSeq%26)),
		AuthorDid:   spec.author,
		CreatedAt:   spec.createdAt,
		IngestedAt:  spec.createdAt,
		LikeCount:   spec.likes,
		RepostCount: spec.reposts,
		ReplyCount:  spec.replies,
		HasImage:    spec.hasImage,
		HasVideo:    spec.hasVideo,
		LinkUrl:     spec.linkUrl,
		LinkTitle:   spec.linkTitle,
	}
	if len(spec.hashtags) > 0 {
		p.Hashtags = jsonColumn(t, spec.hashtags)
	}
	if len(spec.mentions) > 0 {
		p.Mentions = jsonColumn(t, spec.mentions)
	}
	if len(spec.links) > 0 {
		p.Links = jsonColumn(t, spec.links)
		p.HasLink = true
	}
	if spec.linkUrl != "" {
		p.HasLink = true
	}
	return p
}

func TestTopHashtagsCountsDistinctPosts(t *testing.T) {
	posts := []model.Post{
		buildPost(t, postSpec{author: "a", createdAt: metricsNow.Add(-time.Minute), hashtags: []string{"alpha", "alpha", "beta"}}),
		buildPost(t, postSpec{author: "b", createdAt: metricsNow.Add(-2 * time.Minute), hashtags: []string{"alpha"}}),
	}

	entries := TopHashtags(posts, 10)
	require.Len(t, entries, 2)
	assert.Equal(t, "alpha", entries[0].Key)
	// The repeated tag inside one post counts once.
	assert.Equal(t, float64(2), entries[0].Score)
	assert.Equal(t, "beta", entries[1].Key)
}

func TestTopPostersAndMentions(t *testing.T) {
	posts := []model.Post{
		buildPost(t, postSpec{author: "a", createdAt: metricsNow.Add(-3 * time.Minute), mentions: []string{"m1", "m2"}}),
		buildPost(t, postSpec{author: "a", createdAt: metricsNow.Add(-2 * time.Minute), mentions: []string{"m1"}}),
		buildPost(t, postSpec{author: "b", createdAt: metricsNow.Add(-time.Minute)}),
	}

	posters := TopPostersByCount(posts, 10)
	require.Len(t, posters, 2)
	assert.Equal(t, "a", posters[0].Key)
	assert.Equal(t, float64(2), posters[0].Score)

	mentions := TopMentions(posts, 10)
	require.Len(t, mentions, 2)
	assert.Equal(t, "m1", mentions[0].Key)
	assert.Equal(t, float64(2), mentions[0].Score)
}

func TestTopUsersViralPostOutranksManyQuietOnes(t *testing.T) {
	posts := []model.Post{
		// One viral post.
		buildPost(t, postSpec{author: "viral", createdAt: metricsNow.Add(-time.Hour), likes: 500}),
		// Many posts with no engagement.
		buildPost(t, postSpec{author: "busy", createdAt: metricsNow.Add(-50 * time.Minute)}),
		buildPost(t, postSpec{author: "busy", createdAt: metricsNow.Add(-40 * time.Minute)}),
		buildPost(t, postSpec{author: "busy", createdAt: metricsNow.Add(-30 * time.Minute)}),
		buildPost(t, postSpec{author: "busy", createdAt: metricsNow.Add(-20 * time.Minute)}),
	}

	entries := TopUsers(posts, testWeights, 10)
	require.Len(t, entries, 2)
	assert.Equal(t, "viral", entries[0].Key)
}

func TestQualityScoreDropsWeakestPost(t *testing.T) {
	// One zero-engagement post should not sink a strong author.
	withDud := qualityScore([]float64{100, 100, 0})
	allStrong := mean([]float64{100, 100}) * math.Log(4)
	assert.InDelta(t, allStrong, withDud, 1e-9)

	// A single post keeps its plain score.
	assert.InDelta(t, 10*math.Log(2), qualityScore([]float64{10}), 1e-9)
}

func TestTopLinksAndDomains(t *testing.T) {
	posts := []model.Post{
		buildPost(t, postSpec{author: "a", createdAt: metricsNow.Add(-time.Minute), links: []model.LinkDetail{
			{Uri: "https://example.com/one"},
			{Uri: "https://news.site.com/two"},
		}}),
		buildPost(t, postSpec{author: "b", createdAt: metricsNow.Add(-2 * time.Minute), links: []model.LinkDetail{
			{Uri: "https://example.com/one"},
		}}),
	}

	links := TopLinks(posts, 10)
	require.Len(t, links, 2)
	assert.Equal(t, "https://example.com/one", links[0].Key)
	assert.Equal(t, float64(2), links[0].Score)

	domains := TopDomains(posts, 10)
	require.Len(t, domains, 2)
	assert.Equal(t, "example.com", domains[0].Key)
}

func TestTopLinkCardsAndNewsFilter(t *testing.T) {
	posts := []model.Post{
		buildPost(t, postSpec{author: "a", createdAt: metricsNow.Add(-time.Minute),
			linkUrl: "https://news.example.com/story", linkTitle: "Story"}),
		buildPost(t, postSpec{author: "b", createdAt: metricsNow.Add(-2 * time.Minute),
			linkUrl: "https://blog.example.com/post", linkTitle: "Post"}),
		// A link without card metadata is not a card.
		buildPost(t, postSpec{author: "c", createdAt: metricsNow.Add(-3 * time.Minute), links: []model.LinkDetail{
			{Uri: "https://bare.example.com/x"},
		}}),
	}

	cards := TopLinkCards(posts, 10)
	require.Len(t, cards, 2)
	for _, card := range cards {
		assert.NotEmpty(t, card.Extra["title"])
	}

	news := TopNewsLinkCards(posts, 10, map[string]bool{"news.example.com": true})
	require.Len(t, news, 1)
	assert.Equal(t, "https://news.example.com/story", news[0].Key)

	assert.Empty(t, TopNewsLinkCards(posts, 10, nil))
}

func TestTopImagesAndVideos(t *testing.T) {
	posts := []model.Post{
		buildPost(t, postSpec{author: "a", createdAt: metricsNow.Add(-time.Minute), hasImage: true, likes: 10}),
		buildPost(t, postSpec{author: "b", createdAt: metricsNow.Add(-2 * time.Minute), hasImage: true, likes: 3}),
		buildPost(t, postSpec{author: "c", createdAt: metricsNow.Add(-3 * time.Minute), hasVideo: true, likes: 5}),
	}

	images := TopImages(posts, testWeights, 10)
	require.Len(t, images, 2)
	assert.Equal(t, float64(10), images[0].Score)
	assert.Equal(t, "a", images[0].Extra["author_did"])

	videos := TopVideos(posts, testWeights, 10)
	require.Len(t, videos, 1)
	assert.Equal(t, "c", videos[0].Extra["author_did"])

	all := TopPosts(posts, testWeights, 10)
	assert.Len(t, all, 3)
}

func TestGeoInference(t *testing.T) {
	geo := GeoMap{
		"portland":   {City: "Portland", Region: "Oregon", Country: "USA"},
		"seattle":    {City: "Seattle", Region: "Washington", Country: "USA"},
		"oregon":     {Region: "Oregon", Country: "USA"},
		"japan":      {Country: "Japan"},
	}

	// Most specific wins.
	loc := geo.Infer([]string{"oregon", "portland"})
	require.NotNil(t, loc)
	assert.Equal(t, "Portland", loc.City)

	// Conflicting cities suppress the inference entirely.
	assert.Nil(t, geo.Infer([]string{"portland", "seattle"}))

	// Region-only and country-only tags still resolve.
	loc = geo.Infer([]string{"oregon"})
	require.NotNil(t, loc)
	assert.Equal(t, "Oregon", loc.Region)
	assert.Empty(t, loc.City)

	loc = geo.Infer([]string{"JAPAN"})
	require.NotNil(t, loc)
	assert.Equal(t, "Japan", loc.Country)

	assert.Nil(t, geo.Infer([]string{"nowhere"}))
}

func TestTopCitiesRegionsCountries(t *testing.T) {
	geo := GeoMap{
		"portland": {City: "Portland", Region: "Oregon", Country: "USA"},
		"seattle":  {City: "Seattle", Region: "Washington", Country: "USA"},
	}
	posts := []model.Post{
		buildPost(t, postSpec{author: "a", createdAt: metricsNow.Add(-time.Minute), hashtags: []string{"portland"}}),
		buildPost(t, postSpec{author: "b", createdAt: metricsNow.Add(-2 * time.Minute), hashtags: []string{"Portland!"}}),
		buildPost(t, postSpec{author: "c", createdAt: metricsNow.Add(-3 * time.Minute), hashtags: []string{"seattle"}}),
		// Conflicting post contributes nowhere.
		buildPost(t, postSpec{author: "d", createdAt: metricsNow.Add(-4 * time.Minute), hashtags: []string{"portland", "seattle"}}),
	}

	cities := TopCities(posts, geo, 10)
	require.Len(t, cities, 2)
	assert.Equal(t, "Portland", cities[0].Key)
	assert.Equal(t, float64(2), cities[0].Score)

	countries := TopCountries(posts, geo, 10)
	require.Len(t, countries, 1)
	assert.Equal(t, "USA", countries[0].Key)
	assert.Equal(t, float64(3), countries[0].Score)
}

func TestFirstTimePosters(t *testing.T) {
	posts := []model.Post{
		buildPost(t, postSpec{author: "newbie", createdAt: metricsNow.Add(-30 * time.Minute)}),
		buildPost(t, postSpec{author: "veteran", createdAt: metricsNow.Add(-20 * time.Minute)}),
	}
	firstTimes := map[string]time.Time{
		// The newbie's earliest-ever post is inside the 1h window.
		"newbie": metricsNow.Add(-30 * time.Minute),
		// The veteran posted long before this window, elsewhere.
		"veteran": metricsNow.Add(-72 * time.Hour),
	}

	entries := FirstTimePosters(posts, firstTimes, model.WindowHour, metricsNow, 10)
	require.Len(t, entries, 1)
	assert.Equal(t, "newbie", entries[0].Key)
}

func TestEngagementSpread(t *testing.T) {
	posts := []model.Post{
		buildPost(t, postSpec{author: "a", createdAt: metricsNow, likes: 1}),
		buildPost(t, postSpec{author: "b", createdAt: metricsNow, likes: 2}),
		buildPost(t, postSpec{author: "c", createdAt: metricsNow, likes: 3}),
		buildPost(t, postSpec{author: "d", createdAt: metricsNow, likes: 100}),
	}

	snapshot := EngagementSpread(posts, testWeights, metricsNow)
	byKey := map[string]float64{}
	for _, e := range snapshot.Entries {
		byKey[e.Key] = e.Score
	}
	assert.Equal(t, float64(4), byKey["posts"])
	assert.InDelta(t, 26.5, byKey["mean"], 1e-9)
	assert.LessOrEqual(t, byKey["p50"], byKey["p90"])
	assert.LessOrEqual(t, byKey["p90"], byKey["p99"])

	empty := EngagementSpread(nil, testWeights, metricsNow)
	assert.Empty(t, empty.Entries)
}
