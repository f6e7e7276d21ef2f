package filter

import (
	"slices"

	"github.com/nbd-wtf/go-nostr"

	"github.com/roach88/bakery/internal/event"
	"github.com/roach88/bakery/internal/search"
)

// Order is the ordering hint carried by a filter.
type Order string

const (
	OrderDefault   Order = ""
	OrderRank      Order = "rank"
	OrderCreatedAt Order = "created_at"
)

// TagMap maps a one-character tag name to the values it must match.
type TagMap map[string][]string

// Filter selects events. Nil slices and pointers mean "no constraint";
// an empty, non-nil slice matches nothing.
type Filter struct {
	IDs     []string
	Kinds   []int
	Authors []string
	Since   *nostr.Timestamp
	Until   *nostr.Timestamp
	Search  string

	// Limit caps the result; 0 means no limit.
	Limit int
	Order Order

	// Tags holds "#x" constraints: any listed value satisfies the key.
	Tags TagMap
	// AndTags holds "&x" constraints: every listed value must be present.
	AndTags TagMap
}

// OrTagNames returns the "#x" keys not overridden by an "&x" key, sorted.
func (f Filter) OrTagNames() []string {
	names := make([]string, 0, len(f.Tags))
	for name := range f.Tags {
		if _, isAnd := f.AndTags[name]; isAnd {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// AndTagNames returns the "&x" keys, sorted.
func (f Filter) AndTagNames() []string {
	names := make([]string, 0, len(f.AndTags))
	for name := range f.AndTags {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsEmpty reports whether the filter places no condition on events.
// Limit and Order are not conditions.
func (f Filter) IsEmpty() bool {
	return f.IDs == nil && f.Kinds == nil && f.Authors == nil &&
		f.Since == nil && f.Until == nil && f.Search == "" &&
		len(f.Tags) == 0 && len(f.AndTags) == 0
}

// Matches evaluates the filter against evt in memory, with the same
// semantics as the compiled SQL: since is inclusive, until exclusive.
func (f Filter) Matches(evt *nostr.Event) bool {
	if f.IDs != nil && !slices.Contains(f.IDs, evt.ID) {
		return false
	}
	if f.Kinds != nil && !slices.Contains(f.Kinds, evt.Kind) {
		return false
	}
	if f.Authors != nil && !slices.Contains(f.Authors, evt.PubKey) {
		return false
	}
	if f.Since != nil && evt.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && evt.CreatedAt >= *f.Until {
		return false
	}

	for _, name := range f.OrTagNames() {
		if !hasAnyTagValue(evt, name, f.Tags[name]) {
			return false
		}
	}
	for _, name := range f.AndTagNames() {
		values := f.AndTags[name]
		if len(values) == 0 {
			return false
		}
		for _, v := range values {
			if !hasAnyTagValue(evt, name, []string{v}) {
				return false
			}
		}
	}

	if f.Search != "" {
		row, ok := search.RowFor(evt)
		if !ok || !row.Contains(f.Search) {
			return false
		}
	}
	return true
}

// MatchesAny reports whether any filter matches evt.
func MatchesAny(filters []Filter, evt *nostr.Event) bool {
	for _, f := range filters {
		if f.Matches(evt) {
			return true
		}
	}
	return false
}

// hasAnyTagValue looks only at tags the store indexes, so an empty value
// never matches.
func hasAnyTagValue(evt *nostr.Event, name string, values []string) bool {
	for _, tag := range event.IndexedTags(evt) {
		if tag.Name == name && slices.Contains(values, tag.Value) {
			return true
		}
	}
	return false
}
