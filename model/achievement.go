package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// AchievementScope declares which population an achievement is evaluated
// against.
type AchievementScope string

const (
	ScopeGlobal  AchievementScope = "global"
	ScopePerFeed AchievementScope = "per_feed"
)

// AchievementCriteria is the threshold rule stored on an achievement.
//
// Stat names a UserStat column ("post_count", "total_likes_received",
// "image_post_count", "video_post_count", "max_post_engagement",
// "feed_count"). Operator is a comparison (">=", "==", ...). For global
// achievements AggMethod says how per-feed stats collapse into one value:
// "sum", "max" or "count" (number of feeds with activity).
type AchievementCriteria struct {
	Stat      string `json:"stat"`
	Operator  string `json:"operator"`
	Value     int64  `json:"value"`
	AggMethod string `json:"agg_method,omitempty"`
}

/*

Achievement is one entry of the achievement registry.

Key: stable machine key, e.g. "power_poster_ii"
SeriesKey: groups the tiers of one series ("power_poster")
Scope: global or per-feed
Criteria: JSONB-serialized AchievementCriteria
Active: inactive achievements are skipped by the award pass but keep their
earned rows

RarityPercentage/RarityTier/RarityLabel: global-scope rarity, refreshed each
rarity cycle. Per-feed rarity lives in AchievementFeedRarity.

*/

type Achievement struct {
	Id          string `gorm:"primaryKey"`
	Key         string `gorm:"uniqueIndex;size:255;not null"`
	Name        string
	Description string
	Icon        string
	SeriesKey   string           `gorm:"index;size:255"`
	Scope       AchievementScope `gorm:"size:32;not null"`
	Criteria    datatypes.JSON   `gorm:"type:jsonb"`
	Repeatable  bool
	Active      bool `gorm:"default:true"`

	RarityPercentage float64
	RarityTier       string
	RarityLabel      string

	CreatedAt time.Time
}

// DecodeCriteria unpacks the JSONB criteria column.
func (a *Achievement) DecodeCriteria() (AchievementCriteria, error) {
	var c AchievementCriteria
	err := json.Unmarshal(a.Criteria, &c)
	return c, err
}

/*

UserAchievement is one earned achievement. Insert-only: once earned a row is
never deleted or un-earned, which is what makes earn permanence hold.

FeedId is empty for global-scope achievements.

*/

type UserAchievement struct {
	Id            string `gorm:"primaryKey"`
	UserDid       string `gorm:"size:255;not null;uniqueIndex:idx_user_achievements_key,priority:1"`
	AchievementId string `gorm:"not null;uniqueIndex:idx_user_achievements_key,priority:2"`
	FeedId        string `gorm:"size:255;uniqueIndex:idx_user_achievements_key,priority:3"`
	EarnedAt      time.Time
}

// AchievementFeedRarity stores per-feed rarity for per-feed achievements,
// upserted each rarity cycle on (achievement, feed).
type AchievementFeedRarity struct {
	Id               string `gorm:"primaryKey"`
	AchievementId    string `gorm:"not null;uniqueIndex:idx_achievement_feed_rarity_key,priority:1"`
	FeedId           string `gorm:"size:255;not null;uniqueIndex:idx_achievement_feed_rarity_key,priority:2"`
	RarityPercentage float64
	RarityTier       string
	RarityLabel      string
	LastUpdated      time.Time
}

// AchievementProgress is the in-memory in-progress state for one user and
// one not-yet-earned achievement, reported alongside earned state.
type AchievementProgress struct {
	UserDid       string  `json:"user_did"`
	AchievementId string  `json:"achievement_id"`
	FeedId        string  `json:"feed_id,omitempty"`
	Current       int64   `json:"current"`
	Required      int64   `json:"required"`
	Rarity        float64 `json:"rarity"`
}
