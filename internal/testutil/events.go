package testutil

import (
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

// EventSpec describes a fixture event before signing.
type EventSpec struct {
	Author    string
	Kind      int
	CreatedAt nostr.Timestamp
	Content   string
	Tags      nostr.Tags
}

// Sign builds and signs the event described by spec with the author's
// derived key. The returned event has ID, PubKey and Sig populated.
func Sign(spec EventSpec) (*nostr.Event, error) {
	tags := spec.Tags
	if tags == nil {
		tags = nostr.Tags{}
	}

	evt := &nostr.Event{
		CreatedAt: spec.CreatedAt,
		Kind:      spec.Kind,
		Tags:      tags,
		Content:   spec.Content,
	}
	if err := evt.Sign(Key(spec.Author).Secret); err != nil {
		return nil, fmt.Errorf("sign fixture event: %w", err)
	}
	return evt, nil
}

// MustSign is Sign for tests that cannot proceed without the fixture.
func MustSign(spec EventSpec) *nostr.Event {
	evt, err := Sign(spec)
	if err != nil {
		panic(err)
	}
	return evt
}

// NewEvent is the common short form of MustSign.
func NewEvent(author string, kind int, createdAt nostr.Timestamp, content string, tags ...nostr.Tag) *nostr.Event {
	return MustSign(EventSpec{
		Author:    author,
		Kind:      kind,
		CreatedAt: createdAt,
		Content:   content,
		Tags:      nostr.Tags(tags),
	})
}
