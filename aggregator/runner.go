package aggregator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/feedmaster/feedmaster/utils/log"
	"github.com/feedmaster/feedmaster/worker"
)

type RunnerConfig struct {
	Name string
	// Hard deadline for a single evaluation. A job past it is abandoned with
	// the previous snapshots retained, and simply runs again next cycle.
	JobTimeout time.Duration
}

// Runner consumes evaluation jobs off the event bus and executes them, one
// goroutine per job, so a slow window cannot stall the others.
type Runner struct {
	config  RunnerConfig
	bus     *gochannel.GoChannel
	engine  *Engine
	tracker *Tracker
}

func NewRunner(config RunnerConfig, bus *gochannel.GoChannel, engine *Engine, tracker *Tracker) *Runner {
	return &Runner{
		config:  config,
		bus:     bus,
		engine:  engine,
		tracker: tracker,
	}
}

func (r *Runner) RunModule(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	messages, err := r.bus.Subscribe(ctx, worker.TopicAggregationJob)
	if err != nil {
		return err
	}

	for msg := range messages {
		msg.Ack()

		var job Job
		if err := json.Unmarshal(msg.Payload, &job); err != nil {
			log.Log.Error("malformed aggregation job: ", err)
			continue
		}

		go r.execute(ctx, job)
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, job Job) {
	key := JobKey{FeedId: job.FeedId, Window: job.Window}
	jobCtx, cancel := context.WithTimeout(ctx, r.config.JobTimeout)
	defer cancel()

	start := time.Now()
	err := r.engine.Evaluate(jobCtx, job.FeedId, job.Window, start)
	r.tracker.Release(key, time.Now(), err == nil)

	if err != nil {
		// Previous snapshots stay authoritative, the pair reruns next cycle.
		log.Log.WithField("feed", job.FeedId).WithField("window", job.Window).
			Error("aggregation job abandoned: ", err)
		return
	}
	log.Log.WithField("feed", job.FeedId).WithField("window", job.Window).
		Infof("aggregation done in %s", time.Since(start))
}

func (r *Runner) Name() string {
	return r.config.Name
}

func (r *Runner) Shutdown() {}
