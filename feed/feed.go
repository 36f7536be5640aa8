package feed

import (
	"context"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"tavle/models"
)

// Source is the durable collection the hub mirrors: a change event channel
// plus a full-snapshot read.
type Source interface {
	Events() <-chan interface{}
	Snapshot(ctx context.Context) ([]models.Post, error)
}

// Unsubscribe terminates a feed subscription. It is idempotent, and once it
// returns the subscriber's callback will not be invoked again.
type Unsubscribe func()

// subscriber guards its callback with a mutex so Unsubscribe can guarantee
// no invocation happens after it returns, even with a delivery in flight.
type subscriber struct {
	mu       sync.Mutex
	closed   bool
	onChange func(models.FeedSnapshot)
	ch       chan models.FeedSnapshot
}

func (s *subscriber) deliver(snapshot models.FeedSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.onChange(snapshot)
}

func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Hub maintains the live, ordered view of the board. It consumes the
// store's change events, recomputes a full snapshot on every event and
// fans it out to all subscribers. Full-snapshot replace is the simplest
// policy that stays correct under coalesced or out-of-order notifications.
type Hub struct {
	sync.RWMutex
	source      Source
	subscribers map[string]*subscriber
}

func NewHub(source Source) *Hub {
	return &Hub{
		source:      source,
		subscribers: make(map[string]*subscriber),
	}
}

// Run consumes change events until the context is cancelled. Start it once,
// in its own goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Info("Feed hub shutting down")
			h.Shutdown()
			return
		case event, ok := <-h.source.Events():
			if !ok {
				h.Shutdown()
				return
			}
			switch event.(type) {
			case models.PostCreatedEvent, models.PostDeletedEvent:
				h.broadcast(h.snapshot(ctx))
			default:
				log.Info("Unknown feed event type")
			}
		}
	}
}

// Subscribe registers a callback for feed snapshots. The current snapshot
// is delivered before Subscribe returns; if it cannot be loaded the
// callback receives one marked unavailable instead of hanging in a loading
// state. Callbacks for later changes run on a per-subscriber goroutine.
func (h *Hub) Subscribe(ctx context.Context, onChange func(models.FeedSnapshot)) Unsubscribe {
	key := uuid.NewString()
	sub := &subscriber{
		onChange: onChange,
		ch:       make(chan models.FeedSnapshot, 10),
	}

	// Deliver the current snapshot before the subscriber becomes visible
	// to broadcasts. A broadcast racing the registration would otherwise
	// be followed by the older initial snapshot, leaving the subscriber
	// on a stale view until the next event.
	sub.deliver(h.snapshot(ctx))

	go func() {
		for snapshot := range sub.ch {
			sub.deliver(snapshot)
		}
	}()

	h.Lock()
	h.subscribers[key] = sub
	h.Unlock()
	subscribersGauge.Inc()

	log.WithFields(log.Fields{"key": key}).Info("Feed subscriber added")

	var once sync.Once
	return func() {
		once.Do(func() {
			h.remove(key)
		})
	}
}

func (h *Hub) remove(key string) {
	h.Lock()
	sub, ok := h.subscribers[key]
	if ok {
		delete(h.subscribers, key)
	}
	h.Unlock()

	if !ok {
		return
	}

	// Mark closed before closing the channel so a snapshot already picked
	// up by the delivery goroutine is discarded rather than delivered.
	sub.close()
	close(sub.ch)
	subscribersGauge.Dec()

	log.WithFields(log.Fields{"key": key}).Info("Feed subscriber removed")
}

// Shutdown detaches all subscribers. Safe to call more than once.
func (h *Hub) Shutdown() {
	h.Lock()
	keys := make([]string, 0, len(h.subscribers))
	for key := range h.subscribers {
		keys = append(keys, key)
	}
	h.Unlock()

	for _, key := range keys {
		h.remove(key)
	}
}

func (h *Hub) snapshot(ctx context.Context) models.FeedSnapshot {
	posts, err := h.source.Snapshot(ctx)
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Error("Failed to load feed snapshot")
		snapshotErrors.Inc()
		return models.FeedSnapshot{Posts: []models.Post{}, Unavailable: true}
	}
	return models.FeedSnapshot{Posts: posts}
}

func (h *Hub) broadcast(snapshot models.FeedSnapshot) {
	h.RLock()
	defer h.RUnlock()

	broadcastsTotal.Inc()
	for key, sub := range h.subscribers {
		select {
		case sub.ch <- snapshot: // Non-blocking send
		default:
			droppedSnapshots.Inc()
			log.Warnf("Subscriber channel full, skipping snapshot for client: %v", key)
		}
	}
}

// Current returns the latest snapshot without subscribing, for one-shot
// reads.
func (h *Hub) Current(ctx context.Context) models.FeedSnapshot {
	return h.snapshot(ctx)
}
