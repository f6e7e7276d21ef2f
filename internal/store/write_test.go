package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bakery/internal/testutil"
)

func TestAddEvent_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	evt := testutil.NewEvent("alice", 1, 100, "hello", nostr.Tag{"t", "intro"})

	ok, err := s.AddEvent(ctx, evt)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AddEvent(ctx, evt)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1, countRows(t, s, `SELECT COUNT(*) FROM events WHERE id = ?`, evt.ID))
	assert.Equal(t, 1, countRows(t, s, `SELECT COUNT(*) FROM tags WHERE event = ?`, evt.ID))
	assert.Equal(t, 1, countRows(t, s, `SELECT COUNT(*) FROM events_fts WHERE id = ?`, evt.ID))
}

func TestAddEvent_RejectsMalformed(t *testing.T) {
	s := createTestStore(t)

	_, err := s.AddEvent(context.Background(), &nostr.Event{ID: "short", PubKey: "x"})
	assert.Error(t, err)
}

func TestAddEvent_EphemeralNeverPersists(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rec := &recorder{}
	s.observers = append(s.observers, rec)

	evt := testutil.NewEvent("alice", 20001, 100, "typing", nostr.Tag{"p", "bob"})
	ok, err := s.AddEvent(ctx, evt)
	require.NoError(t, err)
	assert.False(t, ok)

	has, err := s.HasEvent(ctx, evt.ID)
	require.NoError(t, err)
	assert.False(t, has)
	assert.Equal(t, 0, countRows(t, s, `SELECT COUNT(*) FROM tags`))
	assert.Equal(t, 0, countRows(t, s, `SELECT COUNT(*) FROM events_fts`))
	assert.Empty(t, rec.log)
}

func TestAddEvent_PreserveEphemeral(t *testing.T) {
	s := createTestStore(t, WithPreserveEphemeral(true))
	ctx := context.Background()

	evt := testutil.NewEvent("alice", 20001, 100, "typing")
	ok, err := s.AddEvent(ctx, evt)
	require.NoError(t, err)
	assert.True(t, ok)

	has, err := s.HasEvent(ctx, evt.ID)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestAddEvent_TagProjection(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	evt := testutil.NewEvent("alice", 1, 100, "tagged",
		nostr.Tag{"p", "bob"},
		nostr.Tag{"p", ""},
		nostr.Tag{"title", "long names are not indexed"},
		nostr.Tag{"e"},
		nostr.Tag{"t", "go", "extra"},
	)
	_, err := s.AddEvent(ctx, evt)
	require.NoError(t, err)

	rows, err := s.DB().Query(`SELECT tag, value FROM tags WHERE event = ? ORDER BY id`, evt.ID)
	require.NoError(t, err)
	defer rows.Close()

	var got [][2]string
	for rows.Next() {
		var tag, value string
		require.NoError(t, rows.Scan(&tag, &value))
		got = append(got, [2]string{tag, value})
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, [][2]string{{"p", "bob"}, {"t", "go"}}, got)
}

func TestAddEvent_ReplaceableKeepsNewest(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	pub := testutil.PubKey("alice")

	for _, ts := range []nostr.Timestamp{100, 300, 200} {
		_, err := s.AddEvent(ctx, testutil.NewEvent("alice", 0, ts, fmt.Sprintf(`{"name":"v%d"}`, ts)))
		require.NoError(t, err)
	}

	got, err := s.GetReplaceable(ctx, 0, pub, "")
	require.NoError(t, err)
	assert.Equal(t, nostr.Timestamp(300), got.CreatedAt)
	assert.Equal(t, 1, countRows(t, s, `SELECT COUNT(*) FROM events WHERE kind = 0 AND pubkey = ?`, pub))
}

func TestAddEvent_ProfileScenario(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	pub := testutil.PubKey("alice")

	first := testutil.NewEvent("alice", 0, 100, `{"name":"first"}`)
	second := testutil.NewEvent("alice", 0, 200, `{"name":"second"}`)

	ok, err := s.AddEvent(ctx, first)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.AddEvent(ctx, second)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.GetReplaceable(ctx, 0, pub, "")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"second"}`, got.Content)
	assert.Equal(t, 1, countRows(t, s, `SELECT COUNT(*) FROM events WHERE kind = 0 AND pubkey = ?`, pub))

	has, err := s.HasEvent(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, has)
	assert.Equal(t, 0, countRows(t, s, `SELECT COUNT(*) FROM events_fts WHERE id = ?`, first.ID))
}

func TestAddEvent_StaleReplaceableRefused(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	newer := testutil.NewEvent("alice", 3, 200, "", nostr.Tag{"p", "bob"})
	older := testutil.NewEvent("alice", 3, 100, "", nostr.Tag{"p", "carol"})

	ok, err := s.AddEvent(ctx, newer)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.AddEvent(ctx, older)
	require.NoError(t, err)
	assert.False(t, ok)

	has, err := s.HasEvent(ctx, older.ID)
	require.NoError(t, err)
	assert.False(t, has)
	assert.Equal(t, 0, countRows(t, s, `SELECT COUNT(*) FROM tags WHERE event = ?`, older.ID))
}

func TestAddEvent_TieBrokenByGreaterID(t *testing.T) {
	a := testutil.NewEvent("alice", 10002, 500, "relays a")
	b := testutil.NewEvent("alice", 10002, 500, "relays b")
	want := a
	if b.ID > a.ID {
		want = b
	}

	for _, order := range [][]*nostr.Event{{a, b}, {b, a}} {
		s := createTestStore(t)
		ctx := context.Background()
		for _, evt := range order {
			_, err := s.AddEvent(ctx, evt)
			require.NoError(t, err)
		}

		got, err := s.GetReplaceable(ctx, 10002, testutil.PubKey("alice"), "")
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, 1, countRows(t, s, `SELECT COUNT(*) FROM events WHERE kind = 10002`))
	}
}

func TestAddEvent_AddressableKeyedByIdentifier(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	pub := testutil.PubKey("alice")

	postA1 := testutil.NewEvent("alice", 30023, 100, "a v1", nostr.Tag{"d", "a"})
	postA2 := testutil.NewEvent("alice", 30023, 200, "a v2", nostr.Tag{"d", "a"})
	postB := testutil.NewEvent("alice", 30023, 150, "b v1", nostr.Tag{"d", "b"})
	noD := testutil.NewEvent("alice", 30023, 120, "no d")

	for _, evt := range []*nostr.Event{postA1, postB, postA2, noD} {
		ok, err := s.AddEvent(ctx, evt)
		require.NoError(t, err)
		require.True(t, ok)
	}

	got, err := s.GetReplaceable(ctx, 30023, pub, "a")
	require.NoError(t, err)
	assert.Equal(t, "a v2", got.Content)

	got, err = s.GetReplaceable(ctx, 30023, pub, "b")
	require.NoError(t, err)
	assert.Equal(t, "b v1", got.Content)

	got, err = s.GetReplaceable(ctx, 30023, pub, "")
	require.NoError(t, err)
	assert.Equal(t, "no d", got.Content)

	assert.Equal(t, 3, countRows(t, s, `SELECT COUNT(*) FROM events WHERE kind = 30023`))
}

func TestAddEvent_ReplaceableAndAddressableSlotsAreDistinct(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// A replaceable kind with a "d" tag still stores a NULL identifier.
	withD := testutil.NewEvent("alice", 10000, 100, "mute list", nostr.Tag{"d", "x"})
	newer := testutil.NewEvent("alice", 10000, 200, "mute list 2")

	for _, evt := range []*nostr.Event{withD, newer} {
		_, err := s.AddEvent(ctx, evt)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, countRows(t, s, `SELECT COUNT(*) FROM events WHERE kind = 10000`))
	assert.Equal(t, 1, countRows(t, s, `SELECT COUNT(*) FROM events WHERE kind = 10000 AND identifier IS NULL`))
}

func TestAddEvent_KeepHistory(t *testing.T) {
	s := createTestStore(t, WithKeepHistory(true))
	ctx := context.Background()
	pub := testutil.PubKey("alice")

	v2 := testutil.NewEvent("alice", 0, 200, `{"name":"v2"}`)
	v1 := testutil.NewEvent("alice", 0, 100, `{"name":"v1"}`)
	v3 := testutil.NewEvent("alice", 0, 300, `{"name":"v3"}`)

	for _, evt := range []*nostr.Event{v2, v1, v3} {
		ok, err := s.AddEvent(ctx, evt)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	got, err := s.GetReplaceable(ctx, 0, pub, "")
	require.NoError(t, err)
	assert.Equal(t, v3.ID, got.ID)

	history, err := s.GetReplaceableHistory(ctx, 0, pub, "")
	require.NoError(t, err)
	assert.Equal(t, []string{v3.ID, v2.ID, v1.ID}, eventIDs(history))
}

func TestAddEvent_NotifiesAfterCommitInOrder(t *testing.T) {
	rec := &recorder{}
	s := createTestStore(t, WithObserver(rec))
	ctx := context.Background()

	note := testutil.NewEvent("alice", 1, 100, "note")
	old := testutil.NewEvent("alice", 0, 100, `{"name":"old"}`)
	cur := testutil.NewEvent("alice", 0, 200, `{"name":"new"}`)

	for _, evt := range []*nostr.Event{note, note, old, cur} {
		_, err := s.AddEvent(ctx, evt)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"+" + note.ID, "+" + old.ID, "-" + old.ID, "+" + cur.ID}, rec.log)
}

type readingObserver struct {
	s    *Store
	seen []bool
}

func (o *readingObserver) EventInserted(evt *nostr.Event) {
	has, err := o.s.HasEvent(context.Background(), evt.ID)
	o.seen = append(o.seen, err == nil && has)
}

func (o *readingObserver) EventRemoved(string) {}

func TestAddEvent_ObserverSeesCommittedRow(t *testing.T) {
	obs := &readingObserver{}
	s := createTestStore(t, WithObserver(obs))
	obs.s = s

	_, err := s.AddEvent(context.Background(), testutil.NewEvent("alice", 1, 100, "visible"))
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, obs.seen)
}
