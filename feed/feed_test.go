package feed_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tavle/feed"
	"tavle/models"
)

// fakeSource serves canned posts and lets tests push change events. A
// non-zero delay slows Snapshot down to widen race windows.
type fakeSource struct {
	mu     sync.Mutex
	posts  []models.Post
	err    error
	delay  time.Duration
	events chan interface{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{events: make(chan interface{}, 10)}
}

func (f *fakeSource) Events() <-chan interface{} {
	return f.events
}

func (f *fakeSource) Snapshot(ctx context.Context) ([]models.Post, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	posts := make([]models.Post, len(f.posts))
	copy(posts, f.posts)
	return posts, nil
}

func (f *fakeSource) setPosts(posts []models.Post) {
	f.mu.Lock()
	f.posts = posts
	f.mu.Unlock()
}

// collector records delivered snapshots for assertions.
type collector struct {
	mu        sync.Mutex
	snapshots []models.FeedSnapshot
}

func (c *collector) onChange(snapshot models.FeedSnapshot) {
	c.mu.Lock()
	c.snapshots = append(c.snapshots, snapshot)
	c.mu.Unlock()
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.snapshots)
}

func (c *collector) last() models.FeedSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshots[len(c.snapshots)-1]
}

func (c *collector) lengths() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	lengths := make([]int, len(c.snapshots))
	for i, snapshot := range c.snapshots {
		lengths[i] = len(snapshot.Posts)
	}
	return lengths
}

func TestSubscribeDeliversInitialSnapshot(t *testing.T) {
	source := newFakeSource()
	source.setPosts([]models.Post{{ID: "p1", Title: "Hello"}})
	hub := feed.NewHub(source)

	var got models.FeedSnapshot
	unsubscribe := hub.Subscribe(context.Background(), func(snapshot models.FeedSnapshot) {
		got = snapshot
	})
	defer unsubscribe()

	// Initial delivery is synchronous
	require.Len(t, got.Posts, 1)
	assert.Equal(t, "p1", got.Posts[0].ID)
	assert.False(t, got.Unavailable)
}

func TestSubscribeInitialSnapshotUnavailable(t *testing.T) {
	source := newFakeSource()
	source.err = errors.New("database is locked")
	hub := feed.NewHub(source)

	var got models.FeedSnapshot
	unsubscribe := hub.Subscribe(context.Background(), func(snapshot models.FeedSnapshot) {
		got = snapshot
	})
	defer unsubscribe()

	assert.True(t, got.Unavailable)
	assert.Empty(t, got.Posts)
}

func TestEventsBroadcastFreshSnapshots(t *testing.T) {
	source := newFakeSource()
	source.setPosts([]models.Post{{ID: "p1"}})
	hub := feed.NewHub(source)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	c := &collector{}
	unsubscribe := hub.Subscribe(ctx, c.onChange)
	defer unsubscribe()
	require.Equal(t, 1, c.count())

	// A new post lands newest-first; the hub re-reads the source and
	// replaces the whole snapshot
	source.setPosts([]models.Post{{ID: "p2"}, {ID: "p1"}})
	source.events <- models.PostCreatedEvent{Post: models.Post{ID: "p2"}}

	require.Eventually(t, func() bool { return c.count() >= 2 }, time.Second, 10*time.Millisecond)
	last := c.last()
	require.Len(t, last.Posts, 2)
	assert.Equal(t, "p2", last.Posts[0].ID)

	source.setPosts([]models.Post{{ID: "p1"}})
	source.events <- models.PostDeletedEvent{ID: "p2"}

	require.Eventually(t, func() bool { return c.count() >= 3 }, time.Second, 10*time.Millisecond)
	last = c.last()
	require.Len(t, last.Posts, 1)
	assert.Equal(t, "p1", last.Posts[0].ID)
}

// A broadcast racing a slow subscribe must not be followed by the older
// initial snapshot, which would park the subscriber on a stale view.
func TestSubscribeDuringBroadcastKeepsOrder(t *testing.T) {
	source := newFakeSource()
	source.delay = 50 * time.Millisecond
	hub := feed.NewHub(source)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	c := &collector{}
	subscribed := make(chan feed.Unsubscribe, 1)
	go func() {
		subscribed <- hub.Subscribe(ctx, c.onChange)
	}()

	// Land an event while the subscriber's initial snapshot load is still
	// in flight
	time.Sleep(10 * time.Millisecond)
	source.setPosts([]models.Post{{ID: "p1"}})
	source.events <- models.PostCreatedEvent{Post: models.Post{ID: "p1"}}

	unsubscribe := <-subscribed
	defer unsubscribe()

	// One more event so the subscriber is guaranteed a post-registration
	// delivery to compare against
	source.setPosts([]models.Post{{ID: "p2"}, {ID: "p1"}})
	source.events <- models.PostCreatedEvent{Post: models.Post{ID: "p2"}}

	require.Eventually(t, func() bool {
		lengths := c.lengths()
		return len(lengths) > 0 && lengths[len(lengths)-1] == 2
	}, 2*time.Second, 10*time.Millisecond)

	lengths := c.lengths()
	for i := 1; i < len(lengths); i++ {
		assert.GreaterOrEqual(t, lengths[i], lengths[i-1],
			"delivery %d went backwards: %v", i, lengths)
	}
}

func TestUnsubscribeStopsDeliveries(t *testing.T) {
	source := newFakeSource()
	hub := feed.NewHub(source)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	c := &collector{}
	unsubscribe := hub.Subscribe(ctx, c.onChange)
	require.Equal(t, 1, c.count())

	unsubscribe()
	// Idempotent
	unsubscribe()

	source.events <- models.PostCreatedEvent{Post: models.Post{ID: "p1"}}

	// No delivery may arrive after Unsubscribe returns
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, c.count())
}

func TestBroadcastSkipsDetachedSubscribers(t *testing.T) {
	source := newFakeSource()
	hub := feed.NewHub(source)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	detached := &collector{}
	kept := &collector{}
	unsubscribeDetached := hub.Subscribe(ctx, detached.onChange)
	unsubscribeKept := hub.Subscribe(ctx, kept.onChange)
	defer unsubscribeKept()

	unsubscribeDetached()

	source.events <- models.PostCreatedEvent{Post: models.Post{ID: "p1"}}

	require.Eventually(t, func() bool { return kept.count() >= 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, detached.count())
}

func TestShutdownDetachesAll(t *testing.T) {
	source := newFakeSource()
	hub := feed.NewHub(source)

	c := &collector{}
	hub.Subscribe(context.Background(), c.onChange)
	require.Equal(t, 1, c.count())

	hub.Shutdown()
	hub.Shutdown() // safe to repeat

	hub.Run(contextWithImmediateCancel()) // returns once ctx is done
}

func TestCurrent(t *testing.T) {
	source := newFakeSource()
	source.setPosts([]models.Post{{ID: "p1"}})
	hub := feed.NewHub(source)

	snapshot := hub.Current(context.Background())
	require.Len(t, snapshot.Posts, 1)
	assert.False(t, snapshot.Unavailable)
}

func contextWithImmediateCancel() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}
