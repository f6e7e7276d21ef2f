package store

import (
	"path/filepath"
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

// createTestStore opens a fresh store in a temp directory.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// recorder is an Observer that logs what it sees in order.
type recorder struct {
	log []string
}

func (r *recorder) EventInserted(evt *nostr.Event) { r.log = append(r.log, "+"+evt.ID) }
func (r *recorder) EventRemoved(id string)         { r.log = append(r.log, "-"+id) }
func (r *recorder) ContentCached(id string)        { r.log = append(r.log, "c"+id) }

func eventIDs(events []*nostr.Event) []string {
	out := make([]string, len(events))
	for i, evt := range events {
		out[i] = evt.ID
	}
	return out
}

func countRows(t *testing.T, s *Store, query string, args ...any) int {
	t.Helper()
	var n int
	if err := s.DB().QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}
