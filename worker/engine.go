package worker

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/feedmaster/feedmaster/utils/log"
)

// Event bus topics shared between modules of one process.
const (
	// Aggregation jobs flowing from the scheduler to the job runner.
	TopicAggregationJob = "topic.aggregation_job"
)

// Engine manages shared resources and execution lifecycle of each module. It
// maintains a shared in-process event bus connecting the scheduler to its
// job runners.
type Engine struct {
	// Modules run in this Engine, each in its own goroutine. A module's
	// lifetime is bound to the engine's lifetime.
	Modules []Module

	ctx    context.Context
	cancel context.CancelFunc

	// EventBus carries jobs between modules. A channel implementation is
	// enough for a single process, a broker-backed bus can substitute later.
	EventBus *gochannel.GoChannel
}

func NewEngine(modules []Module, ctx context.Context, cancel context.CancelFunc, bus *gochannel.GoChannel) *Engine {
	return &Engine{
		Modules:  modules,
		ctx:      ctx,
		cancel:   cancel,
		EventBus: bus,
	}
}

// Run executes all modules and blocks until every module finished.
func (e *Engine) Run() {
	var wg sync.WaitGroup
	for _, module := range e.Modules {
		wg.Add(1)
		go func(m Module) {
			defer wg.Done()
			log.Log.Infof("start module %s", m.Name())
			RunModuleWithGracefulRestart(e.ctx, m)
			log.Log.Infof("module %s finished execution", m.Name())
		}(module)
	}
	wg.Wait()
}

// Shutdown cancels the root context and waits for every module to clean up.
func (e *Engine) Shutdown() {
	log.Log.Infoln("starting graceful shutdown")
	e.cancel()

	var wg sync.WaitGroup
	for _, module := range e.Modules {
		wg.Add(1)
		go func(m Module) {
			defer wg.Done()
			m.Shutdown()
			log.Log.Infof("module %s shut down", m.Name())
		}(module)
	}
	wg.Wait()
}
