package model

import "time"

/*

UserStat holds the running per-user counters used by streak and achievement
evaluation. One row per (user, feed).

Counters are bumped incrementally as posts are observed, but the periodic
full recompute by the stats worker is authoritative and fully overwrites
every column. The incremental path is a best-effort cache only.

CurrentStreak/LongestStreak: consecutive-calendar-day posting streaks in
this feed. CurrentStreak is the streak ending at LastPostDate; it reads as
active only while LastPostDate is today or yesterday.

*/

type UserStat struct {
	Id      string `gorm:"primaryKey"`
	UserDid string `gorm:"size:255;not null;uniqueIndex:idx_user_stats_key,priority:1"`
	FeedId  string `gorm:"size:255;not null;uniqueIndex:idx_user_stats_key,priority:2"`

	PostCount             int64
	TotalLikesReceived    int64
	TotalRepostsReceived  int64
	TotalRepliesReceived  int64
	TotalQuotesReceived   int64
	ImagePostCount        int64
	VideoPostCount        int64
	MaxPostEngagement     int64
	CurrentStreak         int
	LongestStreak         int
	LastPostDate          time.Time
	FirstPostAt           time.Time
	LatestPostAt          time.Time
	LastUpdated           time.Time
}
