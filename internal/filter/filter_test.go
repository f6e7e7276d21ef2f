package filter

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
)

func ts(v int64) *nostr.Timestamp {
	t := nostr.Timestamp(v)
	return &t
}

func TestMatches_Basics(t *testing.T) {
	evt := &nostr.Event{ID: "id1", PubKey: "alice", Kind: 1, CreatedAt: 150}

	testCases := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter", Filter{}, true},
		{"id hit", Filter{IDs: []string{"id1"}}, true},
		{"id miss", Filter{IDs: []string{"id2"}}, false},
		{"empty ids", Filter{IDs: []string{}}, false},
		{"kind hit", Filter{Kinds: []int{0, 1}}, true},
		{"kind miss", Filter{Kinds: []int{7}}, false},
		{"author miss", Filter{Authors: []string{"bob"}}, false},
		{"since inclusive", Filter{Since: ts(150)}, true},
		{"since after", Filter{Since: ts(151)}, false},
		{"until exclusive", Filter{Until: ts(150)}, false},
		{"until after", Filter{Until: ts(151)}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.filter.Matches(evt))
		})
	}
}

func TestMatches_TagsOrVersusAnd(t *testing.T) {
	e1 := &nostr.Event{Kind: 1, Tags: nostr.Tags{{"p", "a"}}}
	e2 := &nostr.Event{Kind: 1, Tags: nostr.Tags{{"p", "a"}, {"p", "b"}}}

	or := Filter{Tags: TagMap{"p": {"a", "b"}}}
	assert.True(t, or.Matches(e1))
	assert.True(t, or.Matches(e2))

	and := Filter{AndTags: TagMap{"p": {"a", "b"}}}
	assert.False(t, and.Matches(e1))
	assert.True(t, and.Matches(e2))

	// a key in both groups is AND-only
	both := Filter{Tags: TagMap{"p": {"a"}}, AndTags: TagMap{"p": {"a", "b"}}}
	assert.False(t, both.Matches(e1))
	assert.True(t, both.Matches(e2))

	emptyAnd := Filter{AndTags: TagMap{"p": {}}}
	assert.False(t, emptyAnd.Matches(e2))
}

func TestMatches_DistinctOrKeysAllRequired(t *testing.T) {
	evt := &nostr.Event{Tags: nostr.Tags{{"p", "a"}, {"e", "x"}}}

	assert.True(t, Filter{Tags: TagMap{"p": {"a"}, "e": {"x", "y"}}}.Matches(evt))
	assert.False(t, Filter{Tags: TagMap{"p": {"a"}, "t": {"x"}}}.Matches(evt))
}

func TestMatches_Search(t *testing.T) {
	evt := &nostr.Event{Kind: 30023, Tags: nostr.Tags{{"title", "Hello World"}}}
	assert.True(t, Filter{Search: "hello"}.Matches(evt))
	assert.False(t, Filter{Search: "bye"}.Matches(evt))

	dm := &nostr.Event{Kind: 4, Content: "hello"}
	assert.False(t, Filter{Search: "hello"}.Matches(dm))

	note := &nostr.Event{Kind: 1, Content: "hi there"}
	assert.False(t, Filter{Search: "hi"}.Matches(note), "shorter than a trigram")
	assert.True(t, Filter{Search: "hi "}.Matches(note))
}

func TestMatches_EmptyTagValueNeverMatches(t *testing.T) {
	evt := &nostr.Event{Kind: 1, Tags: nostr.Tags{{"p", ""}, {"e", "x"}}}
	assert.False(t, Filter{Tags: TagMap{"p": {""}}}.Matches(evt))
	assert.False(t, Filter{AndTags: TagMap{"p": {""}}}.Matches(evt))
	assert.True(t, Filter{Tags: TagMap{"e": {"", "x"}}}.Matches(evt))
}

func TestMatchesAny(t *testing.T) {
	evt := &nostr.Event{Kind: 2}
	filters := []Filter{{Kinds: []int{1}}, {Kinds: []int{2}}}
	assert.True(t, MatchesAny(filters, evt))
	assert.False(t, MatchesAny(filters[:1], evt))
}

func TestTagNames(t *testing.T) {
	f := Filter{
		Tags:    TagMap{"p": {"a"}, "e": {"b"}, "t": {"c"}},
		AndTags: TagMap{"t": {"c"}, "a": {"d"}},
	}
	assert.Equal(t, []string{"e", "p"}, f.OrTagNames())
	assert.Equal(t, []string{"a", "t"}, f.AndTagNames())
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, Filter{Limit: 10, Order: OrderRank}.IsEmpty())
	assert.False(t, Filter{Kinds: []int{}}.IsEmpty())
}

func TestValidate_TagNames(t *testing.T) {
	err := Filter{Tags: TagMap{"title": {"x"}}}.Validate()
	assert.Error(t, err)
}
