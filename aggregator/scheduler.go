package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/robfig/cron/v3"

	"github.com/feedmaster/feedmaster/model"
	"github.com/feedmaster/feedmaster/utils/log"
	"github.com/feedmaster/feedmaster/worker"
)

// Job is one scheduled evaluation, serialized onto the event bus.
type Job struct {
	FeedId string       `json:"feed_id"`
	Window model.Window `json:"window"`
}

// FeedLister supplies the current active feed set on every tick, so feed
// additions and removals take effect without a restart.
type FeedLister func(ctx context.Context) ([]model.Feed, error)

type SchedulerConfig struct {
	Name string
	// Base cadence for bronze and silver feeds. Higher tiers divide it by
	// their cadence scale.
	BaseInterval time.Duration
}

// Scheduler publishes one evaluation job per due (active feed, window) pair
// on a fixed cron tick. Pairs already in flight are skipped, not queued, a
// missed pair simply runs on a later tick.
type Scheduler struct {
	config  SchedulerConfig
	bus     *gochannel.GoChannel
	feeds   FeedLister
	tracker *Tracker
	cron    *cron.Cron
}

func NewScheduler(config SchedulerConfig, bus *gochannel.GoChannel, feeds FeedLister, tracker *Tracker) *Scheduler {
	return &Scheduler{
		config:  config,
		bus:     bus,
		feeds:   feeds,
		tracker: tracker,
	}
}

func (s *Scheduler) RunModule(ctx context.Context) error {
	// Tick at the platinum cadence, the shortest one. Each pair's own
	// interval gates how often it actually runs.
	tick := s.config.BaseInterval / 5
	if tick < time.Second {
		tick = time.Second
	}

	s.cron = cron.New()
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", tick), func() { s.scheduleDue(ctx) })
	if err != nil {
		return err
	}
	s.cron.Start()

	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

func (s *Scheduler) scheduleDue(ctx context.Context) {
	feeds, err := s.feeds(ctx)
	if err != nil {
		log.Log.Error("fail to list active feeds: ", err)
		return
	}

	now := time.Now()
	for _, feed := range feeds {
		if !feed.Active {
			continue
		}
		interval := s.config.BaseInterval / time.Duration(feed.CadenceScale())
		for _, window := range model.AllWindows {
			key := JobKey{FeedId: feed.Id, Window: window}
			if !s.tracker.Due(key, now, interval) {
				continue
			}
			if !s.tracker.TryAcquire(key, now) {
				continue
			}
			if err := s.publish(key); err != nil {
				s.tracker.Release(key, now, false)
				log.Log.Error("fail to publish aggregation job: ", err)
			}
		}
	}
}

func (s *Scheduler) publish(key JobKey) error {
	payload, err := json.Marshal(Job{FeedId: key.FeedId, Window: key.Window})
	if err != nil {
		return err
	}
	return s.bus.Publish(worker.TopicAggregationJob, message.NewMessage(watermill.NewUUID(), payload))
}

func (s *Scheduler) Name() string {
	return s.config.Name
}

func (s *Scheduler) Shutdown() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}
