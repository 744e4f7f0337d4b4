package aggregator

import (
	"sync"
	"time"

	"github.com/feedmaster/feedmaster/model"
)

// JobKey identifies one schedulable evaluation.
type JobKey struct {
	FeedId string
	Window model.Window
}

// Tracker serializes evaluations per (feed, window) key while leaving
// different keys fully independent. The scheduler acquires a key before
// publishing a job, the runner releases it when the evaluation completes or
// is abandoned.
type Tracker struct {
	// An in-flight entry older than this is considered orphaned and may be
	// reacquired, covering a runner that died without releasing.
	staleAfter time.Duration

	mu       sync.Mutex
	inflight map[JobKey]time.Time
	lastRun  map[JobKey]time.Time
}

func NewTracker(staleAfter time.Duration) *Tracker {
	return &Tracker{
		staleAfter: staleAfter,
		inflight:   map[JobKey]time.Time{},
		lastRun:    map[JobKey]time.Time{},
	}
}

// Due reports whether the key's cadence interval has elapsed since its last
// successful run.
func (t *Tracker) Due(key JobKey, now time.Time, interval time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ran := t.lastRun[key]
	return !ran || now.Sub(last) >= interval
}

// TryAcquire claims the key. It fails while a prior evaluation of the same
// key is still running, unless that evaluation is stale past the takeover
// cutoff.
func (t *Tracker) TryAcquire(key JobKey, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if started, running := t.inflight[key]; running {
		if t.staleAfter <= 0 || now.Sub(started) < t.staleAfter {
			return false
		}
	}
	t.inflight[key] = now
	return true
}

// Release clears the in-flight claim. A successful run also advances the
// key's last-run time, a failed or abandoned run does not, so the key comes
// due again on the next tick.
func (t *Tracker) Release(key JobKey, now time.Time, succeeded bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, key)
	if succeeded {
		t.lastRun[key] = now
	}
}

// InFlight returns the number of currently claimed keys.
func (t *Tracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}
