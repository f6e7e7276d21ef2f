package store

import (
	"context"
	"fmt"
	"strings"
)

// maxBatch bounds the number of ids bound into one IN list, well under
// SQLite's host parameter limit.
const maxBatch = 500

// RemoveEvents deletes the given events with their tag rows, search rows and
// cached decrypted content, all in one transaction. Unknown ids are
// ignored. Returns the number of events deleted.
func (s *Store) RemoveEvents(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("remove events: begin: %w", err)
	}
	defer tx.Rollback()

	var removed []string
	for _, chunk := range chunks(ids, maxBatch) {
		existing, err := existingIDs(ctx, tx, chunk)
		if err != nil {
			return 0, fmt.Errorf("remove events: %w", err)
		}
		if len(existing) == 0 {
			continue
		}
		if _, err := deleteEventRows(ctx, tx, existing); err != nil {
			return 0, fmt.Errorf("remove events: %w", err)
		}
		removed = append(removed, existing...)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("remove events: commit: %w", err)
	}

	s.log.Debug().Int("requested", len(ids)).Int("removed", len(removed)).Msg("events removed")

	s.notifyRemoved(removed)
	return len(removed), nil
}

// existingIDs returns the subset of ids present in events, in input order.
func existingIDs(ctx context.Context, q querier, ids []string) ([]string, error) {
	in, args := placeholders(ids)
	rows, err := q.QueryContext(ctx, `SELECT id FROM events WHERE id IN (`+in+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("select ids: %w", err)
	}
	defer rows.Close()

	found := make(map[string]bool, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}

	var out []string
	for _, id := range ids {
		if found[id] {
			out = append(out, id)
			delete(found, id)
		}
	}
	return out, nil
}

// deleteEventRows removes ids from the search index, the decryption cache,
// the tag index and finally the events table. Callers hold a transaction.
func deleteEventRows(ctx context.Context, q querier, ids []string) (int64, error) {
	var total int64
	for _, chunk := range chunks(ids, maxBatch) {
		in, args := placeholders(chunk)

		if _, err := q.ExecContext(ctx, `DELETE FROM events_fts WHERE id IN (`+in+`)`, args...); err != nil {
			return 0, fmt.Errorf("delete search rows: %w", err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM decryption_cache WHERE event IN (`+in+`)`, args...); err != nil {
			return 0, fmt.Errorf("delete decrypted content: %w", err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM tags WHERE event IN (`+in+`)`, args...); err != nil {
			return 0, fmt.Errorf("delete tags: %w", err)
		}
		res, err := q.ExecContext(ctx, `DELETE FROM events WHERE id IN (`+in+`)`, args...)
		if err != nil {
			return 0, fmt.Errorf("delete events: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("delete events: %w", err)
		}
		total += n
	}
	return total, nil
}

func placeholders(values []string) (string, []any) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", "), args
}

func chunks(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
