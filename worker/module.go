package worker

import (
	"context"
	"time"

	"github.com/feedmaster/feedmaster/utils/log"
)

const gracefulRetryDelay = 3 * time.Second

// Module is one long-running unit of a worker process: a listener pool
// reconciler, a scheduler, a job runner. Each module runs in its own
// goroutine for the lifetime of the engine.
type Module interface {
	// RunModule contains the module's logic. It takes in a context object by
	// which its lifecycle is managed, and returns an error only on failures
	// that need a restart.
	RunModule(ctx context.Context) error

	// Name uniquely identifies the module instance.
	Name() string

	// Shutdown releases the module's resources during graceful shutdown.
	Shutdown()
}

// RunModuleWithGracefulRestart restarts a module whenever it exits with an
// error, so a transient failure in one module never takes the process down.
func RunModuleWithGracefulRestart(ctx context.Context, module Module) {
	for {
		err := module.RunModule(ctx)
		if err == nil {
			return
		}
		log.Log.Errorf("module %s exited with error %v, restart in %s", module.Name(), err, gracefulRetryDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(gracefulRetryDelay):
		}
	}
}
