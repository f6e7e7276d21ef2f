package notify

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	"github.com/roach88/bakery/internal/filter"
)

// ErrClosed is returned by Next once a subscription is closed and drained.
var ErrClosed = errors.New("subscription closed")

// Type distinguishes notifications.
type Type int

const (
	// Inserted carries a newly stored event.
	Inserted Type = iota + 1
	// Removed carries the id of a deleted or pruned event.
	Removed
	// ContentCached carries the id of an event whose plaintext was cached.
	ContentCached
)

func (t Type) String() string {
	switch t {
	case Inserted:
		return "inserted"
	case Removed:
		return "removed"
	case ContentCached:
		return "content_cached"
	default:
		return "unknown"
	}
}

// Notification is one committed change. Event is set for Inserted only.
type Notification struct {
	Type  Type
	ID    string
	Event *nostr.Event
}

// Subscription receives notifications in commit order.
type Subscription struct {
	ID      string
	Filters []filter.Filter

	queue *queue
	hub   *Hub
}

// Next blocks until the next notification, ctx is done, or the
// subscription is closed and drained (ErrClosed).
func (s *Subscription) Next(ctx context.Context) (Notification, error) {
	for {
		n, ok, closed := s.queue.TryDequeue()
		if ok {
			return n, nil
		}
		if closed {
			return Notification{}, ErrClosed
		}

		select {
		case <-ctx.Done():
			return Notification{}, ctx.Err()
		case <-s.queue.Wait():
		}
	}
}

// Pending returns the number of queued notifications.
func (s *Subscription) Pending() int {
	return s.queue.Len()
}

// Close unsubscribes. Queued notifications can still be drained.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s.ID)
}

// wants reports whether an inserted event should be delivered.
// A subscription without filters wants everything.
func (s *Subscription) wants(evt *nostr.Event) bool {
	return len(s.Filters) == 0 || filter.MatchesAny(s.Filters, evt)
}

// Hub is a store observer that fans notifications out to subscriptions.
type Hub struct {
	subs   *xsync.MapOf[string, *Subscription]
	closed atomic.Bool
	log    zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		subs: xsync.NewMapOf[string, *Subscription](),
		log:  log,
	}
}

// Subscribe registers a subscription for events matching any of filters.
// After Close the returned subscription is already closed.
func (h *Hub) Subscribe(filters ...filter.Filter) *Subscription {
	sub := &Subscription{
		ID:      uuid.Must(uuid.NewV7()).String(),
		Filters: filters,
		queue:   newQueue(),
		hub:     h,
	}
	if h.closed.Load() {
		sub.queue.Close()
		return sub
	}

	h.subs.Store(sub.ID, sub)
	h.log.Debug().Str("subscription", sub.ID).Int("filters", len(filters)).Msg("subscribed")
	return sub
}

// Unsubscribe closes and forgets a subscription. Returns false if the id
// is unknown.
func (h *Hub) Unsubscribe(id string) bool {
	sub, ok := h.subs.LoadAndDelete(id)
	if !ok {
		return false
	}
	sub.queue.Close()
	h.log.Debug().Str("subscription", id).Msg("unsubscribed")
	return true
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	return h.subs.Size()
}

// Close closes every subscription and refuses new ones.
func (h *Hub) Close() {
	if h.closed.Swap(true) {
		return
	}
	h.subs.Range(func(id string, _ *Subscription) bool {
		h.Unsubscribe(id)
		return true
	})
}

// EventInserted delivers evt to matching subscriptions.
func (h *Hub) EventInserted(evt *nostr.Event) {
	h.subs.Range(func(_ string, sub *Subscription) bool {
		if sub.wants(evt) {
			sub.queue.Enqueue(Notification{Type: Inserted, ID: evt.ID, Event: evt})
		}
		return true
	})
}

// EventRemoved delivers a removal to every subscription.
func (h *Hub) EventRemoved(id string) {
	h.broadcast(Notification{Type: Removed, ID: id})
}

// ContentCached delivers a decrypted-content notice to every subscription.
func (h *Hub) ContentCached(id string) {
	h.broadcast(Notification{Type: ContentCached, ID: id})
}

func (h *Hub) broadcast(n Notification) {
	h.subs.Range(func(_ string, sub *Subscription) bool {
		sub.queue.Enqueue(n)
		return true
	})
}
