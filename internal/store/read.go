package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"

	"github.com/roach88/bakery/internal/event"
	"github.com/roach88/bakery/internal/filter"
	"github.com/roach88/bakery/internal/querysql"
)

var eventColumns = strings.Join(querysql.EventColumns, ", ")

// GetEvent returns the event with the given id.
// Returns ErrNotFound if it is not stored.
func (s *Store) GetEvent(ctx context.Context, id string) (*nostr.Event, error) {
	row := s.reader.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE events.id = ?`, id)
	evt, err := s.scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return evt, nil
}

// HasEvent reports whether an event with the given id is stored.
func (s *Store) HasEvent(ctx context.Context, id string) (bool, error) {
	ok, err := hasEventID(ctx, s.reader, id)
	if err != nil {
		return false, fmt.Errorf("has event: %w", err)
	}
	return ok, nil
}

// replaceableKey validates kind and builds the slot key.
// identifier is ignored for replaceable kinds.
func replaceableKey(kind int, pubkey, identifier string) (event.Key, error) {
	switch event.Classify(kind) {
	case event.Replaceable:
		return event.Key{Kind: kind, PubKey: pubkey}, nil
	case event.Addressable:
		return event.Key{Kind: kind, PubKey: pubkey, Identifier: &identifier}, nil
	default:
		return event.Key{}, fmt.Errorf("kind %d (%s): %w", kind, event.Classify(kind), ErrNotReplaceable)
	}
}

// GetReplaceable returns the current winner of a replaceable or addressable
// slot: newest created_at, ties broken by the greater id.
// Returns ErrNotReplaceable for other kinds and ErrNotFound for empty slots.
func (s *Store) GetReplaceable(ctx context.Context, kind int, pubkey, identifier string) (*nostr.Event, error) {
	key, err := replaceableKey(kind, pubkey, identifier)
	if err != nil {
		return nil, fmt.Errorf("get replaceable: %w", err)
	}

	where, args := slotClause(key)
	row := s.reader.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE `+where+` ORDER BY created_at DESC, id DESC LIMIT 1`,
		args...,
	)
	evt, err := s.scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get replaceable %d:%s: %w", kind, pubkey, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get replaceable: %w", err)
	}
	return evt, nil
}

// HasReplaceable reports whether a replaceable or addressable slot holds
// any event.
func (s *Store) HasReplaceable(ctx context.Context, kind int, pubkey, identifier string) (bool, error) {
	key, err := replaceableKey(kind, pubkey, identifier)
	if err != nil {
		return false, fmt.Errorf("has replaceable: %w", err)
	}

	where, args := slotClause(key)
	var n int
	if err := s.reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE `+where, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("has replaceable: %w", err)
	}
	return n > 0, nil
}

// GetReplaceableHistory returns every stored version of a slot, newest
// first. Without history retention this is at most one event.
func (s *Store) GetReplaceableHistory(ctx context.Context, kind int, pubkey, identifier string) ([]*nostr.Event, error) {
	key, err := replaceableKey(kind, pubkey, identifier)
	if err != nil {
		return nil, fmt.Errorf("get replaceable history: %w", err)
	}

	where, args := slotClause(key)
	rows, err := s.reader.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE `+where+` ORDER BY created_at DESC, id DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("get replaceable history: %w", err)
	}
	defer rows.Close()

	events, err := s.scanEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("get replaceable history: %w", err)
	}
	return events, nil
}

// GetEventsForFilters returns the union of events matched by filters,
// ordered by search rank or recency and capped by the smallest limit.
// No filters selects every stored event.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) GetEventsForFilters(ctx context.Context, filters []filter.Filter) ([]*nostr.Event, error) {
	q, err := s.compiler.Compile(filters)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}

	rows, err := s.reader.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	defer rows.Close()

	events, err := s.scanEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	return events, nil
}

// CountEventsForFilters returns how many events GetEventsForFilters would
// return for the same filters.
func (s *Store) CountEventsForFilters(ctx context.Context, filters []filter.Filter) (int, error) {
	q, err := s.compiler.CompileCount(filters)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}

	var n int
	if err := s.reader.QueryRowContext(ctx, q.SQL, q.Args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanEvent hydrates one row in querysql.EventColumns order.
// Malformed stored tags degrade to an empty tag list.
func (s *Store) scanEvent(row scanner) (*nostr.Event, error) {
	var evt nostr.Event
	var createdAt int64
	var tagsJSON string

	if err := row.Scan(
		&evt.ID,
		&createdAt,
		&evt.PubKey,
		&evt.Sig,
		&evt.Kind,
		&evt.Content,
		&tagsJSON,
	); err != nil {
		return nil, err
	}
	evt.CreatedAt = nostr.Timestamp(createdAt)

	tags, err := event.DecodeTags(tagsJSON)
	if err != nil {
		s.log.Warn().Err(err).Str("id", evt.ID).Msg("stored tags are malformed, returning none")
		tags = nostr.Tags{}
	}
	evt.Tags = tags

	return &evt, nil
}

func (s *Store) scanEvents(rows *sql.Rows) ([]*nostr.Event, error) {
	events := []*nostr.Event{}
	for rows.Next() {
		evt, err := s.scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
