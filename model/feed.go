package model

import "time"

// FeedTier classifies a feed's priority. Higher tiers get a shorter
// aggregation cadence.
type FeedTier string

const (
	TierBronze   FeedTier = "bronze"
	TierSilver   FeedTier = "silver"
	TierGold     FeedTier = "gold"
	TierPlatinum FeedTier = "platinum"
)

/*

Feed is one configured real-time source of posts.

Id: primary key, a stable slug used as the feed association key on posts
Name/Description: display metadata
StreamUrl: websocket endpoint of the upstream stream for this feed
AtUri: AT URI of the feed generator, appended to the stream URL as a query
parameter when non-empty
Tier: priority classification, scales aggregation cadence
Active: only active feeds get a listener and scheduled aggregations

Feeds are owned and mutated by the admin subsystem. The listener pool and
the aggregation scheduler consume them read-only.

*/

type Feed struct {
	Id          string `gorm:"primaryKey;size:255"`
	Name        string
	Description string
	StreamUrl   string
	AtUri       string
	Tier        FeedTier `gorm:"size:32;default:bronze"`
	Active      bool     `gorm:"default:true"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CadenceScale returns the divisor applied to the base aggregation interval
// for this feed's tier.
func (f *Feed) CadenceScale() int {
	switch f.Tier {
	case TierGold:
		return 2
	case TierPlatinum:
		return 5
	default:
		return 1
	}
}
