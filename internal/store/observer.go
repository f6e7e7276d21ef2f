package store

import (
	"github.com/nbd-wtf/go-nostr"
)

// Observer receives committed changes. Calls happen synchronously after the
// transaction commits, in commit order, while the store's write lock is
// held. Observers must not write to the store.
type Observer interface {
	EventInserted(evt *nostr.Event)
	EventRemoved(id string)
}

// ContentObserver is implemented by observers that also want to know when
// decrypted content is cached for an event.
type ContentObserver interface {
	ContentCached(id string)
}

func (s *Store) notifyInserted(evt *nostr.Event) {
	for _, o := range s.observers {
		o.EventInserted(evt)
	}
}

func (s *Store) notifyRemoved(ids []string) {
	for _, id := range ids {
		for _, o := range s.observers {
			o.EventRemoved(id)
		}
	}
}

func (s *Store) notifyContent(id string) {
	for _, o := range s.observers {
		if co, ok := o.(ContentObserver); ok {
			co.ContentCached(id)
		}
	}
}
