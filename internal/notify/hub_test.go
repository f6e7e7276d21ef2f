package notify

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bakery/internal/filter"
	"github.com/roach88/bakery/internal/store"
	"github.com/roach88/bakery/internal/testutil"
)

var (
	_ store.Observer        = (*Hub)(nil)
	_ store.ContentObserver = (*Hub)(nil)
)

func next(t *testing.T, sub *Subscription) Notification {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := sub.Next(ctx)
	require.NoError(t, err)
	return n
}

func TestHub_SubscriptionIDs(t *testing.T) {
	h := NewHub(zerolog.Nop())

	a := h.Subscribe()
	b := h.Subscribe()
	assert.NotEqual(t, a.ID, b.ID)

	id, err := uuid.Parse(a.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.Equal(t, 2, h.Len())
}

func TestHub_InsertsRoutedByFilter(t *testing.T) {
	h := NewHub(zerolog.Nop())
	notes := h.Subscribe(filter.Filter{Kinds: []int{1}})
	all := h.Subscribe()

	note := testutil.NewEvent("alice", 1, 100, "note")
	profile := testutil.NewEvent("alice", 0, 100, `{}`)
	h.EventInserted(note)
	h.EventInserted(profile)

	assert.Equal(t, 1, notes.Pending())
	assert.Equal(t, 2, all.Pending())

	n := next(t, notes)
	assert.Equal(t, Inserted, n.Type)
	assert.Equal(t, note.ID, n.Event.ID)
}

func TestHub_RemovalsBroadcast(t *testing.T) {
	h := NewHub(zerolog.Nop())
	a := h.Subscribe(filter.Filter{Kinds: []int{7}})
	b := h.Subscribe(filter.Filter{Authors: []string{"nobody"}})

	h.EventRemoved("gone")
	h.ContentCached("cached")

	for _, sub := range []*Subscription{a, b} {
		assert.Equal(t, Notification{Type: Removed, ID: "gone"}, next(t, sub))
		assert.Equal(t, Notification{Type: ContentCached, ID: "cached"}, next(t, sub))
	}
}

func TestHub_NextRespectsContext(t *testing.T) {
	h := NewHub(zerolog.Nop())
	sub := h.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := sub.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHub_UnsubscribeDrainsThenCloses(t *testing.T) {
	h := NewHub(zerolog.Nop())
	sub := h.Subscribe()
	h.EventRemoved("x")

	sub.Close()
	assert.False(t, h.Unsubscribe(sub.ID))
	assert.Equal(t, 0, h.Len())

	h.EventRemoved("y")

	assert.Equal(t, "x", next(t, sub).ID)
	_, err := sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHub_Close(t *testing.T) {
	h := NewHub(zerolog.Nop())
	sub := h.Subscribe()

	h.Close()
	h.Close()

	_, err := sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	late := h.Subscribe()
	_, err = late.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 0, h.Len())
}

func TestHub_WithStore(t *testing.T) {
	h := NewHub(zerolog.Nop())
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.WithObserver(h))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	sub := h.Subscribe(filter.Filter{Kinds: []int{0}})

	old := testutil.NewEvent("alice", 0, 100, `{"name":"old"}`)
	cur := testutil.NewEvent("alice", 0, 200, `{"name":"new"}`)
	note := testutil.NewEvent("alice", 1, 300, "ignored by this subscription")

	for _, evt := range []*nostr.Event{old, cur, note} {
		_, err := s.AddEvent(ctx, evt)
		require.NoError(t, err)
	}

	got := []Notification{next(t, sub), next(t, sub), next(t, sub)}
	assert.Equal(t, Inserted, got[0].Type)
	assert.Equal(t, old.ID, got[0].ID)
	assert.Equal(t, Notification{Type: Removed, ID: old.ID}, got[1])
	assert.Equal(t, Inserted, got[2].Type)
	assert.Equal(t, cur.ID, got[2].ID)
	assert.Equal(t, 0, sub.Pending())
}

func TestType_String(t *testing.T) {
	assert.Equal(t, "inserted", Inserted.String())
	assert.Equal(t, "removed", Removed.String())
	assert.Equal(t, "content_cached", ContentCached.String())
	assert.Equal(t, "unknown", Type(0).String())
}
