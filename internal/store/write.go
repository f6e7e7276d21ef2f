package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"github.com/roach88/bakery/internal/event"
)

// AddEvent stores evt with its tag projection and search row.
//
// Returns false without error when the event is ephemeral (and the store
// does not preserve ephemeral events), when its id is already stored, or
// when history is off and a same-or-newer event already holds its
// replaceable slot. When history is off, older events of the same slot are
// pruned in the same transaction.
//
// Observers see the pruned removals and then the insertion, after commit.
func (s *Store) AddEvent(ctx context.Context, evt *nostr.Event) (bool, error) {
	if err := event.CheckShape(evt); err != nil {
		return false, fmt.Errorf("add event: %w", err)
	}

	if event.IsEphemeral(evt.Kind) && !s.preserveEphemeral {
		s.log.Debug().Str("id", evt.ID).Int("kind", evt.Kind).Msg("ephemeral event not stored")
		return false, nil
	}

	tagsJSON, err := event.EncodeTags(evt.Tags)
	if err != nil {
		return false, fmt.Errorf("add event: encode tags: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("add event: begin: %w", err)
	}
	defer tx.Rollback()

	exists, err := hasEventID(ctx, tx, evt.ID)
	if err != nil {
		return false, fmt.Errorf("add event: %w", err)
	}
	if exists {
		return false, nil
	}

	key, replaceable := event.KeyOf(evt)
	if replaceable && !s.keepHistory {
		winner, found, err := currentWinner(ctx, tx, key)
		if err != nil {
			return false, fmt.Errorf("add event: %w", err)
		}
		if found && !event.Newer(evt, winner) {
			s.log.Debug().
				Str("id", evt.ID).
				Str("winner", winner.ID).
				Msg("stale replaceable event not stored")
			return false, nil
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (id, created_at, pubkey, sig, kind, content, tags, identifier)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		evt.ID,
		int64(evt.CreatedAt),
		evt.PubKey,
		evt.Sig,
		evt.Kind,
		evt.Content,
		tagsJSON,
		event.StoredIdentifier(evt),
	)
	if err != nil {
		return false, fmt.Errorf("add event: insert: %w", err)
	}

	for _, tag := range event.IndexedTags(evt) {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tags (event, tag, value) VALUES (?, ?, ?)`,
			evt.ID, tag.Name, tag.Value,
		)
		if err != nil {
			return false, fmt.Errorf("add event: insert tag: %w", err)
		}
	}

	if err := writeSearchRow(ctx, tx, evt); err != nil {
		return false, fmt.Errorf("add event: %w", err)
	}

	var pruned []string
	if replaceable && !s.keepHistory {
		pruned, err = pruneSlot(ctx, tx, key)
		if err != nil {
			return false, fmt.Errorf("add event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("add event: commit: %w", err)
	}

	s.log.Debug().
		Str("id", evt.ID).
		Int("kind", evt.Kind).
		Int("pruned", len(pruned)).
		Msg("event stored")

	s.notifyRemoved(pruned)
	s.notifyInserted(evt)
	return true, nil
}

func hasEventID(ctx context.Context, q querier, id string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check event %s: %w", id, err)
	}
	return n > 0, nil
}

// slotClause renders the WHERE condition selecting every row of key.
// Replaceable kinds store a NULL identifier, which "=" would never match.
func slotClause(key event.Key) (string, []any) {
	if key.Identifier == nil {
		return "kind = ? AND pubkey = ? AND identifier IS NULL", []any{key.Kind, key.PubKey}
	}
	return "kind = ? AND pubkey = ? AND identifier = ?", []any{key.Kind, key.PubKey, *key.Identifier}
}

// currentWinner returns the id and created_at of the newest row of key.
func currentWinner(ctx context.Context, q querier, key event.Key) (*nostr.Event, bool, error) {
	where, args := slotClause(key)

	var winner nostr.Event
	var createdAt int64
	err := q.QueryRowContext(ctx,
		`SELECT id, created_at FROM events WHERE `+where+` ORDER BY created_at DESC, id DESC LIMIT 1`,
		args...,
	).Scan(&winner.ID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find current winner: %w", err)
	}
	winner.CreatedAt = nostr.Timestamp(createdAt)
	return &winner, true, nil
}

// pruneSlot deletes every row of key except the newest and returns the
// ids it deleted.
func pruneSlot(ctx context.Context, tx *sql.Tx, key event.Key) ([]string, error) {
	where, args := slotClause(key)

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM events WHERE `+where+` ORDER BY created_at DESC, id DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("prune: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("prune: scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("prune: iterate: %w", err)
	}
	rows.Close()

	if len(ids) <= 1 {
		return nil, nil
	}
	stale := ids[1:]
	if _, err := deleteEventRows(ctx, tx, stale); err != nil {
		return nil, fmt.Errorf("prune: %w", err)
	}
	return stale, nil
}
