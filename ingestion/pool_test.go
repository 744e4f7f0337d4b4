package ingestion

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedmaster/feedmaster/model"
)

// stubRunner records its lifecycle so we can assert exactly which listeners
// the pool touches.
type stubRunner struct {
	feed model.Feed

	mu      sync.Mutex
	started bool
	stopped bool
}

func (s *stubRunner) Run(ctx context.Context) {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	<-ctx.Done()
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *stubRunner) Health() Health {
	return Health{FeedId: s.feed.Id, Status: StatusConnected}
}

func (s *stubRunner) state() (started, stopped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started, s.stopped
}

type stubFactory struct {
	mu      sync.Mutex
	created map[string][]*stubRunner
}

func newStubFactory() *stubFactory {
	return &stubFactory{created: map[string][]*stubRunner{}}
}

func (f *stubFactory) new(feed model.Feed) Runner {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &stubRunner{feed: feed}
	f.created[feed.Id] = append(f.created[feed.Id], r)
	return r
}

func (f *stubFactory) latest(feedId string) *stubRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	runners := f.created[feedId]
	if len(runners) == 0 {
		return nil
	}
	return runners[len(runners)-1]
}

func (f *stubFactory) count(feedId string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created[feedId])
}

func activeFeed(id string) model.Feed {
	return model.Feed{Id: id, StreamUrl: "wss://stream.test/" + id, Active: true}
}

func waitForStart(t *testing.T, r *stubRunner) {
	t.Helper()
	require.Eventually(t, func() bool {
		started, _ := r.state()
		return started
	}, time.Second, 5*time.Millisecond)
}

func TestPoolReconcileStartsAndStops(t *testing.T) {
	factory := newStubFactory()
	pool := NewPool(factory.new)
	ctx := context.Background()

	pool.Reconcile(ctx, []model.Feed{activeFeed("a"), activeFeed("b")})
	assert.ElementsMatch(t, []string{"a", "b"}, pool.Running())
	waitForStart(t, factory.latest("a"))
	waitForStart(t, factory.latest("b"))

	// Dropping feed b must stop only feed b.
	pool.Reconcile(ctx, []model.Feed{activeFeed("a")})
	assert.ElementsMatch(t, []string{"a"}, pool.Running())
	_, stopped := factory.latest("b").state()
	assert.True(t, stopped)
	_, stopped = factory.latest("a").state()
	assert.False(t, stopped)
	// Feed a's listener was not recreated.
	assert.Equal(t, 1, factory.count("a"))

	pool.StopAll()
}

func TestPoolReconcileIgnoresInactiveFeeds(t *testing.T) {
	factory := newStubFactory()
	pool := NewPool(factory.new)

	inactive := activeFeed("a")
	inactive.Active = false
	pool.Reconcile(context.Background(), []model.Feed{inactive})
	assert.Empty(t, pool.Running())
	assert.Equal(t, 0, factory.count("a"))
}

func TestPoolReconcileDeactivation(t *testing.T) {
	factory := newStubFactory()
	pool := NewPool(factory.new)
	ctx := context.Background()

	pool.Reconcile(ctx, []model.Feed{activeFeed("a")})
	waitForStart(t, factory.latest("a"))

	deactivated := activeFeed("a")
	deactivated.Active = false
	pool.Reconcile(ctx, []model.Feed{deactivated})

	assert.Empty(t, pool.Running())
	_, stopped := factory.latest("a").state()
	assert.True(t, stopped)
}

func TestPoolReconcileRestartsOnEndpointChange(t *testing.T) {
	factory := newStubFactory()
	pool := NewPool(factory.new)
	ctx := context.Background()

	pool.Reconcile(ctx, []model.Feed{activeFeed("a")})
	waitForStart(t, factory.latest("a"))
	first := factory.latest("a")

	moved := activeFeed("a")
	moved.StreamUrl = "wss://stream.test/elsewhere"
	pool.Reconcile(ctx, []model.Feed{moved})

	_, stopped := first.state()
	assert.True(t, stopped)
	assert.Equal(t, 2, factory.count("a"))
	assert.ElementsMatch(t, []string{"a"}, pool.Running())

	pool.StopAll()
}

func TestPoolHealthReport(t *testing.T) {
	factory := newStubFactory()
	pool := NewPool(factory.new)

	pool.Reconcile(context.Background(), []model.Feed{activeFeed("a"), activeFeed("b")})
	report := pool.HealthReport()
	require.Len(t, report, 2)
	for _, h := range report {
		assert.Equal(t, StatusConnected, h.Status)
	}
	pool.StopAll()
	assert.Empty(t, pool.HealthReport())
}

func TestPoolStopAllWaitsForExit(t *testing.T) {
	factory := newStubFactory()
	pool := NewPool(factory.new)

	pool.Reconcile(context.Background(), []model.Feed{activeFeed("a")})
	waitForStart(t, factory.latest("a"))
	pool.StopAll()

	_, stopped := factory.latest("a").state()
	assert.True(t, stopped)
	assert.Empty(t, pool.Running())
}
