package ingestion

import "time"

// Status is the coarse connection state of one feed listener.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusDegraded     Status = "degraded"
)

// Health is the per-feed listener signal surfaced to observability. A
// degraded listener keeps retrying, the status only tells operators that the
// attempt budget was exhausted at least once since the last good connection.
type Health struct {
	FeedId         string    `json:"feed_id"`
	Status         Status    `json:"status"`
	LastEventAt    time.Time `json:"last_event_at"`
	ReconnectCount int64     `json:"reconnect_count"`
	DroppedEvents  int64     `json:"dropped_events"`
}
