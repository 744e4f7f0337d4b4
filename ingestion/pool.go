// Package ingestion maintains one supervised stream listener per active
// feed. Listener lifecycle is keyed by feed id, reconciling the configured
// feed set starts or stops exactly the affected listeners.
package ingestion

import (
	"context"
	"sync"

	"github.com/feedmaster/feedmaster/model"
	"github.com/feedmaster/feedmaster/utils/log"
)

// Runner is one supervised stream consumer. Run blocks until its context is
// cancelled, it never returns an error, failures surface through Health.
type Runner interface {
	Run(ctx context.Context)
	Health() Health
}

// RunnerFactory builds the Runner for a feed. Injected so the pool's
// registry logic tests without network.
type RunnerFactory func(feed model.Feed) Runner

type poolEntry struct {
	feed   model.Feed
	runner Runner
	cancel context.CancelFunc
	done   chan struct{}
}

// Pool is the worker-per-key listener registry. All methods are safe for
// concurrent use.
type Pool struct {
	factory RunnerFactory

	mu      sync.Mutex
	entries map[string]*poolEntry
}

func NewPool(factory RunnerFactory) *Pool {
	return &Pool{
		factory: factory,
		entries: map[string]*poolEntry{},
	}
}

// Reconcile diffs the wanted feed set against the running registry: it starts
// a listener for every newly active feed, stops the listener of every feed
// that is gone or deactivated, and restarts a listener whose stream endpoint
// changed. Untouched feeds keep their listener undisturbed.
func (p *Pool) Reconcile(ctx context.Context, feeds []model.Feed) {
	p.mu.Lock()
	defer p.mu.Unlock()

	wanted := map[string]model.Feed{}
	for _, feed := range feeds {
		if feed.Active {
			wanted[feed.Id] = feed
		}
	}

	for id, entry := range p.entries {
		feed, stillWanted := wanted[id]
		if stillWanted && feed.StreamUrl == entry.feed.StreamUrl && feed.AtUri == entry.feed.AtUri {
			continue
		}
		p.stopLocked(id)
		if !stillWanted {
			log.Log.WithField("feed", id).Info("listener stopped")
		}
	}

	for id, feed := range wanted {
		if _, running := p.entries[id]; running {
			continue
		}
		p.startLocked(ctx, feed)
		log.Log.WithField("feed", id).Info("listener started")
	}
}

// StopAll cancels every listener and waits for them to exit.
func (p *Pool) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id := range p.entries {
		p.stopLocked(id)
	}
}

// Running returns the feed ids with a live listener.
func (p *Pool) Running() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.entries))
	for id := range p.entries {
		ids = append(ids, id)
	}
	return ids
}

// HealthReport returns the health signal of every running listener.
func (p *Pool) HealthReport() []Health {
	p.mu.Lock()
	defer p.mu.Unlock()
	report := make([]Health, 0, len(p.entries))
	for _, entry := range p.entries {
		report = append(report, entry.runner.Health())
	}
	return report
}

func (p *Pool) startLocked(ctx context.Context, feed model.Feed) {
	runCtx, cancel := context.WithCancel(ctx)
	entry := &poolEntry{
		feed:   feed,
		runner: p.factory(feed),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.entries[feed.Id] = entry
	go func() {
		defer close(entry.done)
		entry.runner.Run(runCtx)
	}()
}

func (p *Pool) stopLocked(id string) {
	entry, ok := p.entries[id]
	if !ok {
		return
	}
	entry.cancel()
	<-entry.done
	delete(p.entries, id)
}
