package event

import (
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
	"github.com/nbd-wtf/go-nostr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Key identifies the slot a replaceable or addressable event competes for.
// Identifier is nil for replaceable kinds.
type Key struct {
	Kind       int
	PubKey     string
	Identifier *string
}

// Identifier returns the value of the first "d" tag with a non-empty value.
// Addressable events without one use the empty identifier.
func Identifier(evt *nostr.Event) string {
	for _, tag := range evt.Tags {
		if len(tag) >= 2 && tag[0] == "d" && tag[1] != "" {
			return tag[1]
		}
	}
	return ""
}

// StoredIdentifier returns the value persisted in events.identifier:
// the d-tag for addressable kinds and nil for everything else.
func StoredIdentifier(evt *nostr.Event) *string {
	if !IsAddressable(evt.Kind) {
		return nil
	}
	d := Identifier(evt)
	return &d
}

// KeyOf returns the replacement key of evt.
// ok is false for regular and ephemeral kinds.
func KeyOf(evt *nostr.Event) (key Key, ok bool) {
	if !IsReplaceableClass(evt.Kind) {
		return Key{}, false
	}
	return Key{Kind: evt.Kind, PubKey: evt.PubKey, Identifier: StoredIdentifier(evt)}, true
}

// Newer reports whether a wins over b under the replacement tie-break:
// created_at descending, then id descending.
func Newer(a, b *nostr.Event) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	return a.ID > b.ID
}

// IndexedTag is one row of the tag projection.
type IndexedTag struct {
	Name  string
	Value string
}

// IsIndexableTagName reports whether tags with this name are projected into
// the tag index: exactly one character.
func IsIndexableTagName(name string) bool {
	return utf8.RuneCountInString(name) == 1
}

// IndexedTags projects the single-character tags with a non-empty value.
func IndexedTags(evt *nostr.Event) []IndexedTag {
	var out []IndexedTag
	for _, tag := range evt.Tags {
		if len(tag) < 2 || tag[1] == "" || !IsIndexableTagName(tag[0]) {
			continue
		}
		out = append(out, IndexedTag{Name: tag[0], Value: tag[1]})
	}
	return out
}

// EncodeTags serializes tags for the events.tags column.
// A nil tag list is stored as an empty array.
func EncodeTags(tags nostr.Tags) (string, error) {
	if tags == nil {
		return "[]", nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeTags parses the events.tags column back into ordered tags.
func DecodeTags(raw string) (nostr.Tags, error) {
	var tags nostr.Tags
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, err
	}
	if tags == nil {
		tags = nostr.Tags{}
	}
	return tags, nil
}
