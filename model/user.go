package model

import "time"

/*

User is a post author or mentioned account, keyed by its DID.

Did: primary key, the decentralized identifier of the account
Handle: current handle, a placeholder ("unknown.<did prefix>") until the
profile has been resolved against the upstream directory
DisplayName/AvatarUrl: display metadata from the last profile resolution
FollowersCount/FollowingCount/PostsCount: profile counters as of last refresh
LastUpdated: last successful profile refresh, drives the staleness check

*/

type User struct {
	Did         string `gorm:"primaryKey;size:255"`
	Handle      string `gorm:"uniqueIndex;size:255;not null"`
	DisplayName string
	AvatarUrl   string

	FollowersCount int64
	FollowingCount int64
	PostsCount     int64

	CreatedAt   time.Time
	LastUpdated time.Time
}
