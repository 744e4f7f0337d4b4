package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

/*

Post is a single post observed on one or more feed streams.

Id: primary key
Uri: globally unique AT URI of the post, the idempotency key for upsert
Cid: content id of the post record
AuthorDid: author identity, "belongs-to" relation with User

CreatedAt: time the post was created on the network
IngestedAt: time the post was first seen by any listener

Hashtags: ordered JSONB array of lowercase hashtag tokens
Mentions: JSONB array of mentioned DIDs, deduplicated
Links: JSONB array of LinkDetail, deduplicated by URI
Langs: JSONB array of declared languages, ["unknown"] when absent

LinkUrl/LinkTitle/LinkDescription/ThumbnailUrl: the link "card" fields when
the post carries an external embed. The card's canonical URL wins over a
facet link with the same URI, the two are never double counted.

Images: JSONB array of ImageDetail from image embeds
Quoted*: flattened reference to a quoted post, when present

LikeCount/RepostCount/ReplyCount/QuoteCount: interaction counters as of the
last observation, refreshed on every re-observation (last write wins)

EngagementScore: weighted engagement as of the last counter refresh

ActiveForPolling/NextPollAt: engagement polling schedule state. Create events
carry no counters, so every new post starts active and the polling worker
refreshes the counts until the schedule deactivates it.

Feeds: JSONB array of FeedAssociation entries recording every feed this post
was observed through and when. Append-only set keyed by feed_id, indexed
with GIN for containment queries.

*/

type Post struct {
	Id        string `gorm:"primaryKey"`
	Uri       string `gorm:"uniqueIndex;size:512;not null"`
	Cid       string `gorm:"size:255"`
	AuthorDid string `gorm:"index;size:255;not null"`
	Author    *User  `gorm:"foreignKey:AuthorDid;references:Did;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`

	Text      string `gorm:"type:text"`
	CreatedAt time.Time
	DeletedAt *time.Time `gorm:"index"`

	IngestedAt time.Time `gorm:"index"`

	Langs    datatypes.JSON
	Hashtags datatypes.JSON
	Mentions datatypes.JSON
	Links    datatypes.JSON

	HasImage   bool
	HasVideo   bool
	HasLink    bool
	HasQuote   bool
	HasMention bool

	Images            datatypes.JSON
	ThumbnailUrl      string
	AspectRatioWidth  int
	AspectRatioHeight int

	LinkUrl         string
	LinkTitle       string
	LinkDescription string `gorm:"type:text"`

	QuotedPostUri          string
	QuotedPostCid          string
	QuotedPostAuthorDid    string
	QuotedPostAuthorHandle string
	QuotedPostText         string `gorm:"type:text"`

	LikeCount   int64
	RepostCount int64
	ReplyCount  int64
	QuoteCount  int64

	EngagementScore  int64
	ActiveForPolling bool       `gorm:"index"`
	NextPollAt       *time.Time `gorm:"index"`

	Feeds datatypes.JSON `gorm:"type:jsonb;index:idx_posts_feeds,type:gin;default:'[]'"`
}

// LinkDetail is one outbound link extracted from a post.
type LinkDetail struct {
	Uri         string `json:"uri"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Thumb       string `json:"thumb,omitempty"`
}

// ImageDetail is one embedded image with its alt text.
type ImageDetail struct {
	Url string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// FeedAssociation records one (feed, first-ingested-at) pair on a post. The
// collection is owned by the Post, grows append-only, and is never mutated
// from outside the post store.
type FeedAssociation struct {
	FeedId     string    `json:"feed_id"`
	IngestedAt time.Time `json:"ingested_at"`
}

// FeedAssociations decodes the Feeds JSONB column. A malformed column decodes
// to an empty set rather than failing the caller.
func (p *Post) FeedAssociations() []FeedAssociation {
	var assocs []FeedAssociation
	if len(p.Feeds) == 0 {
		return assocs
	}
	_ = json.Unmarshal(p.Feeds, &assocs)
	return assocs
}

// InFeed reports whether this post has been observed through the given feed.
func (p *Post) InFeed(feedId string) bool {
	for _, a := range p.FeedAssociations() {
		if a.FeedId == feedId {
			return true
		}
	}
	return false
}

// IngestedAtFor returns the first-ingested timestamp for a feed, or zero time
// when the post was never observed through it.
func (p *Post) IngestedAtFor(feedId string) time.Time {
	for _, a := range p.FeedAssociations() {
		if a.FeedId == feedId {
			return a.IngestedAt
		}
	}
	return time.Time{}
}

// HashtagList decodes the Hashtags JSONB column, preserving order.
func (p *Post) HashtagList() []string {
	var tags []string
	if len(p.Hashtags) == 0 {
		return tags
	}
	_ = json.Unmarshal(p.Hashtags, &tags)
	return tags
}

// MentionList decodes the Mentions JSONB column.
func (p *Post) MentionList() []string {
	var dids []string
	if len(p.Mentions) == 0 {
		return dids
	}
	_ = json.Unmarshal(p.Mentions, &dids)
	return dids
}

// ImageList decodes the Images JSONB column.
func (p *Post) ImageList() []ImageDetail {
	var images []ImageDetail
	if len(p.Images) == 0 {
		return images
	}
	_ = json.Unmarshal(p.Images, &images)
	return images
}

// LinkList decodes the Links JSONB column.
func (p *Post) LinkList() []LinkDetail {
	var links []LinkDetail
	if len(p.Links) == 0 {
		return links
	}
	_ = json.Unmarshal(p.Links, &links)
	return links
}
