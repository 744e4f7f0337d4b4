package model

import (
	"time"

	"gorm.io/datatypes"
)

/*

Aggregate is the durable snapshot of one computed metric family.

Identity is (FeedId, AggName, Window), enforced by a composite unique index.
Each recomputation upserts the single row for that key in one statement, so
readers observe either the previous snapshot or the new one, never a mix.

AggName: metric family name, e.g. "topHashtags", "activeStreaks"
DataJson: the ranked entries payload
ComputedAt: when the snapshot was produced

*/

type Aggregate struct {
	Id         string         `gorm:"primaryKey"`
	FeedId     string         `gorm:"size:255;not null;uniqueIndex:idx_aggregates_key,priority:1"`
	AggName    string         `gorm:"size:255;not null;uniqueIndex:idx_aggregates_key,priority:2"`
	Window     Window         `gorm:"size:50;not null;uniqueIndex:idx_aggregates_key,priority:3"`
	DataJson   datatypes.JSON `gorm:"type:jsonb;not null"`
	ComputedAt time.Time
}

// RankedEntry is one (entity, score) pair inside a snapshot payload. Entity
// fields beyond the ranked key are carried in Extra so that each metric
// family can attach its own display payload.
type RankedEntry struct {
	Type  string                 `json:"type"`
	Key   string                 `json:"key"`
	Score float64                `json:"score"`
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// Snapshot is the in-memory form of an Aggregate payload.
type Snapshot struct {
	Entries    []RankedEntry `json:"entries"`
	ComputedAt time.Time     `json:"computed_at"`
}
