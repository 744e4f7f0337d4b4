package aggregator

import (
	"github.com/feedmaster/feedmaster/app_config"
	"github.com/feedmaster/feedmaster/model"
)

// Metric family names, stable keys of the aggregate store.
const (
	AggTopHashtags       = "top_hashtags"
	AggTopPostersByCount = "top_posters_by_count"
	AggTopUsers          = "top_users"
	AggTopMentions       = "top_mentions"
	AggTopLinks          = "top_links"
	AggTopDomains        = "top_domains"
	AggTopLinkCards      = "top_link_cards"
	AggTopNewsLinkCards  = "top_news_link_cards"
	AggTopPosts          = "top_posts"
	AggTopImages         = "top_images"
	AggTopVideos         = "top_videos"
	AggTopCities         = "top_cities"
	AggTopRegions        = "top_regions"
	AggTopCountries      = "top_countries"
	AggFirstTimePosters  = "first_time_posters"
	AggActiveStreaks     = "active_poster_streaks"
	AggLongestStreaks    = "longest_poster_streaks"
	AggEngagementSpread  = "engagement_spread"
)

// Weights is the tunable engagement scoring rule. Injected everywhere a
// score is computed, never hardcoded.
type Weights struct {
	Like   int64
	Repost int64
	Reply  int64
	Quote  int64
}

func WeightsFromConfig(c app_config.WorkerAppConfig) Weights {
	return Weights{
		Like:   c.LIKE_WEIGHT,
		Repost: c.REPOST_WEIGHT,
		Reply:  c.REPLY_WEIGHT,
		Quote:  c.QUOTE_WEIGHT,
	}
}

// Score is the weighted engagement of one post.
func (w Weights) Score(p *model.Post) int64 {
	return w.Like*p.LikeCount + w.Repost*p.RepostCount + w.Reply*p.ReplyCount + w.Quote*p.QuoteCount
}
