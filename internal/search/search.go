// Package search derives the full-text rows the store indexes for each event.
//
// A search row is (id, content, tags): tags holds the values of a few
// human-readable tags, content holds the event content after a kind-specific
// formatter. Rows are plain data; the store owns the FTS tables.
package search

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/nbd-wtf/go-nostr"
	"github.com/tidwall/gjson"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/bakery/internal/event"
)

// SearchableTags lists the tag names whose values are indexed.
var SearchableTags = []string{"title", "description", "about", "summary", "alt"}

// Blacklist lists kinds that never enter the public index.
var Blacklist = []int{event.KindEncryptedDirectMessage}

// profileFields are the kind-0 JSON fields exposed to search, including the
// deprecated spellings some clients still publish.
var profileFields = []string{
	"name",
	"display_name",
	"about",
	"nip05",
	"lud16",
	"website",
	"displayName",
	"username",
}

// formatters rewrite content for kinds whose raw content is not useful text.
var formatters = map[int]func(string) string{
	event.KindProfileMetadata: formatProfile,
}

// Row is one record of the public search index.
type Row struct {
	ID      string
	Content string
	Tags    string
}

// Indexable reports whether events of this kind belong in the public index.
func Indexable(kind int) bool {
	return !slices.Contains(Blacklist, kind)
}

// RowFor derives the search row for evt. ok is false for blacklisted kinds.
func RowFor(evt *nostr.Event) (row Row, ok bool) {
	if !Indexable(evt.Kind) {
		return Row{}, false
	}

	var values []string
	for _, tag := range evt.Tags {
		if len(tag) >= 2 && slices.Contains(SearchableTags, tag[0]) {
			values = append(values, tag[1])
		}
	}

	return Row{
		ID:      evt.ID,
		Content: Normalize(FormatContent(evt.Kind, evt.Content)),
		Tags:    Normalize(strings.Join(values, " ")),
	}, true
}

// FormatContent applies the kind formatter, if any, to content.
func FormatContent(kind int, content string) string {
	if format, ok := formatters[kind]; ok {
		return format(content)
	}
	return content
}

// formatProfile extracts profile fields; malformed JSON falls back to the
// raw content.
func formatProfile(content string) string {
	if !gjson.Valid(content) {
		return content
	}
	doc := gjson.Parse(content)
	if !doc.IsObject() {
		return content
	}

	var lines []string
	for _, field := range profileFields {
		v := doc.Get(field)
		if !v.Exists() || v.Type == gjson.Null || v.Type == gjson.False {
			continue
		}
		if s := v.String(); s != "" {
			lines = append(lines, s)
		}
	}
	return strings.Join(lines, "\n")
}

// Normalize puts text in NFC so composed and decomposed input index alike.
func Normalize(s string) string {
	return norm.NFC.String(s)
}

// Phrase quotes q, in NFC, as a single FTS5 phrase.
func Phrase(q string) string {
	return quote(Normalize(q))
}

// PhraseForms matches q as written or in either Unicode normal form. It
// serves text indexed exactly as callers supplied it.
func PhraseForms(q string) string {
	forms := []string{q}
	for _, f := range []string{norm.NFC.String(q), norm.NFD.String(q)} {
		if !slices.Contains(forms, f) {
			forms = append(forms, f)
		}
	}
	for i, f := range forms {
		forms[i] = quote(f)
	}
	return strings.Join(forms, " OR ")
}

// quote wraps s in double quotes, doubling embedded quotes.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// AnyPhrase builds an FTS5 query matching any of the given phrases.
func AnyPhrase(qs []string) string {
	parts := make([]string, 0, len(qs))
	for _, q := range qs {
		parts = append(parts, Phrase(q))
	}
	return strings.Join(parts, " OR ")
}

// MinQueryRunes is the shortest query the trigram index can match.
const MinQueryRunes = 3

// Contains reports whether q appears, case-insensitively, in the row's
// content or tags. It approximates the trigram MATCH for in-memory checks,
// including that queries shorter than MinQueryRunes match nothing.
func (r Row) Contains(q string) bool {
	needle := strings.ToLower(Normalize(q))
	if utf8.RuneCountInString(needle) < MinQueryRunes {
		return false
	}
	return strings.Contains(strings.ToLower(r.Content), needle) ||
		strings.Contains(strings.ToLower(r.Tags), needle)
}
