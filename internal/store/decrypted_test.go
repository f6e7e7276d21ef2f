package store

import (
	"context"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bakery/internal/event"
	"github.com/roach88/bakery/internal/filter"
	"github.com/roach88/bakery/internal/testutil"
)

// dm builds an encrypted direct message from author to recipient.
func dm(author, recipient string, createdAt nostr.Timestamp) *nostr.Event {
	return testutil.NewEvent(author, event.KindEncryptedDirectMessage, createdAt, "ciphertext?iv=x",
		nostr.Tag{"p", testutil.PubKey(recipient)})
}

func TestAddEventContent(t *testing.T) {
	rec := &recorder{}
	s := createTestStore(t, WithObserver(rec))
	ctx := context.Background()

	msg := dm("alice", "bob", 100)
	mustAdd(t, s, msg)
	rec.log = nil

	ok, err := s.AddEventContent(ctx, msg.ID, "meet at the bakery")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AddEventContent(ctx, msg.ID, "different plaintext")
	require.NoError(t, err)
	assert.False(t, ok)

	content, err := s.GetEventContent(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "meet at the bakery", content)
	assert.Equal(t, []string{"c" + msg.ID}, rec.log)
}

func TestAddEventContent_KeepsPlaintextBytes(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	decomposed := dm("alice", "bob", 100)
	composed := dm("bob", "alice", 200)
	mustAdd(t, s, decomposed, composed)

	_, err := s.AddEventContent(ctx, decomposed.ID, "cafe\u0301 at noon")
	require.NoError(t, err)
	_, err = s.AddEventContent(ctx, composed.ID, "caf\u00e9 is closed")
	require.NoError(t, err)

	content, err := s.GetEventContent(ctx, decomposed.ID)
	require.NoError(t, err)
	assert.Equal(t, "cafe\u0301 at noon", content)

	all, err := s.GetEventsContent(ctx, []string{decomposed.ID, composed.ID})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		decomposed.ID: "cafe\u0301 at noon",
		composed.ID:   "caf\u00e9 is closed",
	}, all)

	for _, q := range []string{"caf\u00e9", "cafe\u0301"} {
		got, err := s.SearchDecrypted(ctx, q, DecryptedSearch{})
		require.NoError(t, err)
		assert.Equal(t, []string{composed.ID, decomposed.ID}, eventIDs(got), "query %q", q)
	}
}

func TestAddEventContent_UnknownEvent(t *testing.T) {
	s := createTestStore(t)

	_, err := s.AddEventContent(context.Background(), "nope", "text")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetEventContent_NotCached(t *testing.T) {
	s := createTestStore(t)
	msg := dm("alice", "bob", 100)
	mustAdd(t, s, msg)

	_, err := s.GetEventContent(context.Background(), msg.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetEventsContent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	m1 := dm("alice", "bob", 100)
	m2 := dm("bob", "alice", 200)
	m3 := dm("alice", "carol", 300)
	mustAdd(t, s, m1, m2, m3)

	_, err := s.AddEventContent(ctx, m1.ID, "one")
	require.NoError(t, err)
	_, err = s.AddEventContent(ctx, m2.ID, "two")
	require.NoError(t, err)

	got, err := s.GetEventsContent(ctx, []string{m1.ID, m2.ID, m3.ID, "unknown"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{m1.ID: "one", m2.ID: "two"}, got)
}

func TestSearchDecrypted(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ab := dm("alice", "bob", 100)
	ba := dm("bob", "alice", 200)
	ac := dm("alice", "carol", 300)
	mustAdd(t, s, ab, ba, ac)

	for id, text := range map[string]string{
		ab.ID: "croissant order for friday",
		ba.ID: "two croissants please",
		ac.ID: "croissant recipe",
	} {
		_, err := s.AddEventContent(ctx, id, text)
		require.NoError(t, err)
	}

	got, err := s.SearchDecrypted(ctx, "croissant", DecryptedSearch{})
	require.NoError(t, err)
	assert.Equal(t, []string{ac.ID, ba.ID, ab.ID}, eventIDs(got))

	conv := [2]string{testutil.PubKey("alice"), testutil.PubKey("bob")}
	got, err = s.SearchDecrypted(ctx, "croissant", DecryptedSearch{Conversation: &conv})
	require.NoError(t, err)
	assert.Equal(t, []string{ba.ID, ab.ID}, eventIDs(got))

	got, err = s.SearchDecrypted(ctx, "friday", DecryptedSearch{Order: filter.OrderRank})
	require.NoError(t, err)
	assert.Equal(t, []string{ab.ID}, eventIDs(got))

	got, err = s.SearchDecrypted(ctx, "croissant", DecryptedSearch{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{ac.ID}, eventIDs(got))

	_, err = s.SearchDecrypted(ctx, "croissant", DecryptedSearch{Order: "random"})
	assert.Error(t, err)
}

func TestDecryptedContentStaysOutOfPublicSearch(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	msg := dm("alice", "bob", 100)
	mustAdd(t, s, msg)
	_, err := s.AddEventContent(ctx, msg.ID, "hidden plaintext")
	require.NoError(t, err)

	got, err := s.GetEventsForFilters(ctx, mustParse(t, `{"search":"hidden"}`))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClearDecrypted(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	msg := dm("alice", "bob", 100)
	mustAdd(t, s, msg)
	_, err := s.AddEventContent(ctx, msg.ID, "forget me")
	require.NoError(t, err)

	n, err := s.ClearDecrypted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.SearchDecrypted(ctx, "forget", DecryptedSearch{})
	require.NoError(t, err)
	assert.Empty(t, got)

	has, err := s.HasEvent(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, has)

	// The cache can be refilled after clearing.
	ok, err := s.AddEventContent(ctx, msg.ID, "remember me")
	require.NoError(t, err)
	assert.True(t, ok)
}
