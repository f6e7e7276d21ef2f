package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"github.com/roach88/bakery/internal/filter"
	"github.com/roach88/bakery/internal/search"
)

// DecryptedSearch narrows a search over cached plaintext.
type DecryptedSearch struct {
	// Conversation restricts results to messages exchanged between two
	// pubkeys: authored by one and p-tagging the other.
	Conversation *[2]string

	// Order is OrderRank or OrderCreatedAt. Unset means OrderCreatedAt.
	Order filter.Order

	// Limit caps the result; 0 means no limit.
	Limit int
}

// AddEventContent caches plaintext for a stored event and indexes it for
// SearchDecrypted. The plaintext is stored byte for byte. The store never
// decrypts anything itself.
//
// Returns false if content was already cached for the event; the first
// plaintext wins. Returns ErrNotFound if the event is not stored.
func (s *Store) AddEventContent(ctx context.Context, id, plaintext string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := hasEventID(ctx, s.db, id)
	if err != nil {
		return false, fmt.Errorf("add event content: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("add event content %s: %w", id, ErrNotFound)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO decryption_cache (event, content)
		VALUES (?, ?)
		ON CONFLICT(event) DO NOTHING
	`, id, plaintext)
	if err != nil {
		return false, fmt.Errorf("add event content: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add event content: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	s.notifyContent(id)
	return true, nil
}

// GetEventContent returns the cached plaintext of an event.
// Returns ErrNotFound if none is cached.
func (s *Store) GetEventContent(ctx context.Context, id string) (string, error) {
	var content string
	err := s.reader.QueryRowContext(ctx,
		`SELECT content FROM decryption_cache WHERE event = ?`, id,
	).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("get event content %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get event content: %w", err)
	}
	return content, nil
}

// GetEventsContent returns cached plaintext keyed by event id. Events with
// nothing cached are absent from the map.
func (s *Store) GetEventsContent(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	for _, chunk := range chunks(ids, maxBatch) {
		in, args := placeholders(chunk)
		rows, err := s.reader.QueryContext(ctx,
			`SELECT event, content FROM decryption_cache WHERE event IN (`+in+`)`, args...,
		)
		if err != nil {
			return nil, fmt.Errorf("get events content: %w", err)
		}
		for rows.Next() {
			var id, content string
			if err := rows.Scan(&id, &content); err != nil {
				rows.Close()
				return nil, fmt.Errorf("get events content: scan: %w", err)
			}
			out[id] = content
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("get events content: iterate: %w", err)
		}
	}
	return out, nil
}

// SearchDecrypted finds events whose cached plaintext contains query, in
// the form given or either Unicode normal form.
func (s *Store) SearchDecrypted(ctx context.Context, query string, opts DecryptedSearch) ([]*nostr.Event, error) {
	switch opts.Order {
	case filter.OrderDefault, filter.OrderCreatedAt, filter.OrderRank:
	default:
		return nil, fmt.Errorf("search decrypted: %w", &filter.ValidationError{
			Field:   "order",
			Message: fmt.Sprintf("unknown order %q", opts.Order),
		})
	}

	stmt := `SELECT ` + eventColumns + ` FROM decryption_cache_fts
		JOIN decryption_cache ON decryption_cache.rowid = decryption_cache_fts.rowid
		JOIN events ON events.id = decryption_cache.event
		WHERE decryption_cache_fts MATCH ?`
	args := []any{search.PhraseForms(query)}

	if c := opts.Conversation; c != nil {
		stmt += ` AND (
			(events.pubkey = ? AND EXISTS (SELECT 1 FROM tags WHERE tags.event = events.id AND tags.tag = 'p' AND tags.value = ?))
			OR (events.pubkey = ? AND EXISTS (SELECT 1 FROM tags WHERE tags.event = events.id AND tags.tag = 'p' AND tags.value = ?))
		)`
		args = append(args, c[1], c[0], c[0], c[1])
	}

	if opts.Order == filter.OrderRank {
		stmt += ` ORDER BY decryption_cache_fts.rank, events.created_at DESC, events.id DESC`
	} else {
		stmt += ` ORDER BY events.created_at DESC, events.id DESC`
	}

	if opts.Limit > 0 {
		stmt += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.reader.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("search decrypted: %w", err)
	}
	defer rows.Close()

	events, err := s.scanEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("search decrypted: %w", err)
	}
	return events, nil
}

// ClearDecrypted drops all cached plaintext and its index. Returns the
// number of cache rows removed.
func (s *Store) ClearDecrypted(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM decryption_cache`)
	if err != nil {
		return 0, fmt.Errorf("clear decrypted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear decrypted: %w", err)
	}

	s.log.Info().Int64("removed", n).Msg("decrypted content cleared")
	return int(n), nil
}
