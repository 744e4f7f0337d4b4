package ingestion

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/feedmaster/feedmaster/app_config"
	"github.com/feedmaster/feedmaster/extractor"
	"github.com/feedmaster/feedmaster/model"
	"github.com/feedmaster/feedmaster/store"
	"github.com/feedmaster/feedmaster/utils"
	"github.com/feedmaster/feedmaster/utils/log"
)

const (
	cursorSaveInterval = 5 * time.Second
	// A connection older than this with events flowing counts as sustained
	// success and resets the reconnect backoff.
	backoffResetAfter = 30 * time.Second
)

// Listener maintains one supervised stream connection for one feed. It reads
// raw events in arrival order, extracts them, and upserts into the post
// store. It owns no state shared with other listeners.
type Listener struct {
	feed   model.Feed
	posts  *store.PostStore
	stats  *store.UserStatStore
	redis  *utils.RedisClient
	config app_config.WorkerAppConfig

	mu     sync.Mutex
	health Health

	// failedAttempts counts consecutive connection failures since the last
	// sustained success, driving the degraded flag.
	failedAttempts int
}

func NewListener(feed model.Feed, posts *store.PostStore, stats *store.UserStatStore, redis *utils.RedisClient, config app_config.WorkerAppConfig) *Listener {
	return &Listener{
		feed:   feed,
		posts:  posts,
		stats:  stats,
		redis:  redis,
		config: config,
		health: Health{FeedId: feed.Id, Status: StatusReconnecting},
	}
}

// Health returns a copy of the listener's current health signal.
func (l *Listener) Health() Health {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.health
}

// Run connects and consumes the stream until the context is cancelled,
// reconnecting forever with capped jittered backoff. A listener never
// returns an error to its pool, failure is expressed through Health.
func (l *Listener) Run(ctx context.Context) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = time.Duration(l.config.MAX_RECONNECT_BACKOFF_SECOND) * time.Second
	// The listener retries for as long as the feed is active.
	policy.MaxElapsedTime = 0

	for {
		connectedAt := time.Now()
		err := l.consume(ctx)
		if ctx.Err() != nil {
			return
		}

		if time.Since(connectedAt) >= backoffResetAfter {
			policy.Reset()
			l.failedAttempts = 0
		}
		l.failedAttempts++

		status := StatusReconnecting
		if l.config.DEGRADED_ATTEMPT_BUDGET > 0 && l.failedAttempts > l.config.DEGRADED_ATTEMPT_BUDGET {
			status = StatusDegraded
		}
		l.setStatus(status, func(h *Health) { h.ReconnectCount++ })
		log.Log.WithField("feed", l.feed.Id).Warn("stream connection lost, reconnecting: ", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(policy.NextBackOff()):
		}
	}
}

// consume runs one connection lifetime: dial, then read until error or
// cancellation.
func (l *Listener) consume(ctx context.Context) error {
	wsUrl, err := l.buildStreamUrl()
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsUrl, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", l.feed.Id, err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the pool cancels this listener.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	l.setStatus(StatusConnected, nil)
	log.Log.WithField("feed", l.feed.Id).Info("stream connected")

	var latestCursor int64
	lastCursorSave := time.Now()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read %s: %w", l.feed.Id, err)
		}

		event, err := extractor.ParseEvent(message)
		if err != nil {
			log.Log.WithField("feed", l.feed.Id).Warn("unparseable stream event: ", err)
			continue
		}
		if event.TimeUS > latestCursor {
			latestCursor = event.TimeUS
		}

		l.handleEvent(ctx, event)

		if time.Since(lastCursorSave) >= cursorSaveInterval && latestCursor > 0 {
			l.saveCursor(latestCursor)
			lastCursorSave = time.Now()
		}
	}
}

// handleEvent extracts and stores one event. Storage failures retry a
// bounded number of times, then the event is dropped and counted so one bad
// record or a storage hiccup never wedges the stream.
func (l *Listener) handleEvent(ctx context.Context, event *extractor.JetstreamEvent) {
	now := time.Now().UTC()
	post, err := extractor.ExtractPost(event, now)
	if err != nil {
		if err != extractor.ErrNotAPost {
			log.Log.WithField("feed", l.feed.Id).Debug("skipping event: ", err)
		}
		return
	}

	var storeErr error
	for attempt := 0; attempt <= l.config.MAX_STORAGE_RETRY; attempt++ {
		if storeErr = l.posts.UpsertPost(ctx, post, l.feed.Id); storeErr == nil {
			break
		}
		if ctx.Err() != nil {
			return
		}
	}
	if storeErr != nil {
		l.setStatus("", func(h *Health) { h.DroppedEvents++ })
		log.Log.WithField("feed", l.feed.Id).Error("dropping event after retries: ", storeErr)
		return
	}

	l.setStatus("", func(h *Health) { h.LastEventAt = now })

	if l.stats != nil {
		engagement := l.config.LIKE_WEIGHT*post.LikeCount +
			l.config.REPOST_WEIGHT*post.RepostCount +
			l.config.REPLY_WEIGHT*post.ReplyCount +
			l.config.QUOTE_WEIGHT*post.QuoteCount
		if err := l.stats.BumpForPost(ctx, post, l.feed.Id, engagement); err != nil {
			// Best-effort cache only, the recompute cycle will correct it.
			log.Log.WithField("feed", l.feed.Id).Debug("stat bump failed: ", err)
		}
	}
}

// buildStreamUrl appends the feed's AT URI and the saved resume cursor to the
// configured endpoint. When the upstream has no saved cursor we resume from
// now, which is the fallback the protocol gives us.
func (l *Listener) buildStreamUrl() (string, error) {
	u, err := url.Parse(l.feed.StreamUrl)
	if err != nil {
		return "", fmt.Errorf("invalid stream url for feed %s: %w", l.feed.Id, err)
	}
	q := u.Query()
	q.Add("wantedCollections", extractor.PostCollection)
	if l.feed.AtUri != "" {
		q.Set("feed", l.feed.AtUri)
	}
	if l.redis != nil {
		if cursor, err := l.redis.GetCursor(l.feed.Id); err == nil && cursor > 0 {
			q.Set("cursor", fmt.Sprintf("%d", cursor))
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (l *Listener) saveCursor(cursor int64) {
	if l.redis == nil {
		return
	}
	if err := l.redis.SaveCursor(l.feed.Id, cursor); err != nil {
		log.Log.WithField("feed", l.feed.Id).Warn("fail to save cursor: ", err)
	}
}

// setStatus updates the health signal. An empty status keeps the current one.
func (l *Listener) setStatus(status Status, mutate func(*Health)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if status != "" {
		l.health.Status = status
	}
	if mutate != nil {
		mutate(&l.health)
	}
}
