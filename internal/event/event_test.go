package event

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifier(t *testing.T) {
	evt := &nostr.Event{Kind: 30023, Tags: nostr.Tags{{"t", "x"}, {"d", "post-1"}, {"d", "post-2"}}}
	assert.Equal(t, "post-1", Identifier(evt))

	missing := &nostr.Event{Kind: 30023, Tags: nostr.Tags{{"d"}}}
	assert.Equal(t, "", Identifier(missing))

	emptyFirst := &nostr.Event{Kind: 30023, Tags: nostr.Tags{{"d", ""}, {"d", "post-3"}}}
	assert.Equal(t, "post-3", Identifier(emptyFirst))

	onlyEmpty := &nostr.Event{Kind: 30023, Tags: nostr.Tags{{"d", ""}}}
	assert.Equal(t, "", Identifier(onlyEmpty))
}

func TestStoredIdentifier(t *testing.T) {
	addressable := &nostr.Event{Kind: 30000, Tags: nostr.Tags{{"d", "list"}}}
	got := StoredIdentifier(addressable)
	require.NotNil(t, got)
	assert.Equal(t, "list", *got)

	// replaceable kinds ignore d tags entirely
	replaceable := &nostr.Event{Kind: 10002, Tags: nostr.Tags{{"d", "list"}}}
	assert.Nil(t, StoredIdentifier(replaceable))
}

func TestKeyOf(t *testing.T) {
	_, ok := KeyOf(&nostr.Event{Kind: 1})
	assert.False(t, ok)

	key, ok := KeyOf(&nostr.Event{Kind: 0, PubKey: "pk"})
	require.True(t, ok)
	assert.Equal(t, 0, key.Kind)
	assert.Equal(t, "pk", key.PubKey)
	assert.Nil(t, key.Identifier)
}

func TestNewer(t *testing.T) {
	older := &nostr.Event{ID: "bb", CreatedAt: 100}
	newer := &nostr.Event{ID: "aa", CreatedAt: 200}
	assert.True(t, Newer(newer, older))
	assert.False(t, Newer(older, newer))

	// same timestamp: greater id wins
	lo := &nostr.Event{ID: "aa", CreatedAt: 100}
	hi := &nostr.Event{ID: "ff", CreatedAt: 100}
	assert.True(t, Newer(hi, lo))
	assert.False(t, Newer(lo, hi))
}

func TestIndexedTags(t *testing.T) {
	evt := &nostr.Event{Tags: nostr.Tags{
		{"p", "alice"},
		{"e", ""},
		{"title", "Hello"},
		{"t"},
		{"é", "accent"},
		{"p", "bob", "wss://relay"},
	}}

	assert.Equal(t, []IndexedTag{
		{Name: "p", Value: "alice"},
		{Name: "é", Value: "accent"},
		{Name: "p", Value: "bob"},
	}, IndexedTags(evt))
}

func TestEncodeDecodeTags(t *testing.T) {
	raw, err := EncodeTags(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)

	tags := nostr.Tags{{"p", "a", "wss://x"}, {"title", "Hello \"World\""}}
	raw, err = EncodeTags(tags)
	require.NoError(t, err)

	decoded, err := DecodeTags(raw)
	require.NoError(t, err)
	assert.Equal(t, tags, decoded)
}

func TestDecodeTags_Malformed(t *testing.T) {
	_, err := DecodeTags("{not json")
	assert.Error(t, err)

	decoded, err := DecodeTags("null")
	require.NoError(t, err)
	assert.NotNil(t, decoded)
}
