package store

import (
	"context"
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"github.com/roach88/bakery/internal/search"
)

const createSearchTable = `
	CREATE VIRTUAL TABLE events_fts USING fts5(
		id UNINDEXED,
		content,
		tags,
		tokenize='trigram'
	)
`

// backfillPage is how many events one back-fill read pulls at a time.
const backfillPage = 500

// ensureSearchIndex creates the public search table and back-fills it from
// stored events, but only when the table does not exist yet.
func (s *Store) ensureSearchIndex(ctx context.Context) error {
	exists, err := hasTable(ctx, s.db, "events_fts")
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.buildSearchIndex(ctx, false)
	if err != nil {
		return err
	}
	s.log.Info().Int("indexed", n).Msg("search index built")
	return nil
}

// RebuildSearch drops the public search index and rebuilds it from the
// events table. Returns the number of rows indexed.
func (s *Store) RebuildSearch(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.buildSearchIndex(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("rebuild search: %w", err)
	}
	s.log.Info().Int("indexed", n).Msg("search index rebuilt")
	return n, nil
}

// buildSearchIndex (re)creates events_fts and fills it in one transaction.
func (s *Store) buildSearchIndex(ctx context.Context, drop bool) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("build search index: begin: %w", err)
	}
	defer tx.Rollback()

	if drop {
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS events_fts`); err != nil {
			return 0, fmt.Errorf("drop search table: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, createSearchTable); err != nil {
		return 0, fmt.Errorf("create search table: %w", err)
	}

	indexed := 0
	after := ""
	for {
		page, err := s.readPage(ctx, tx, after)
		if err != nil {
			return 0, err
		}
		if len(page) == 0 {
			break
		}
		for _, evt := range page {
			row, ok := search.RowFor(evt)
			if !ok {
				continue
			}
			if err := insertSearchRow(ctx, tx, row); err != nil {
				return 0, err
			}
			indexed++
		}
		after = page[len(page)-1].ID
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("build search index: commit: %w", err)
	}
	return indexed, nil
}

// readPage reads the next page of events in id order after the given id.
// The page is fully read before returning so the caller can write on the
// same connection.
func (s *Store) readPage(ctx context.Context, q querier, after string) ([]*nostr.Event, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE events.id > ? ORDER BY events.id LIMIT ?`,
		after, backfillPage,
	)
	if err != nil {
		return nil, fmt.Errorf("read events page: %w", err)
	}
	defer rows.Close()
	return s.scanEvents(rows)
}

// writeSearchRow replaces the public search row of evt, if its kind is
// indexable.
func writeSearchRow(ctx context.Context, q querier, evt *nostr.Event) error {
	row, ok := search.RowFor(evt)
	if !ok {
		return nil
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM events_fts WHERE id = ?`, row.ID); err != nil {
		return fmt.Errorf("clear search row: %w", err)
	}
	return insertSearchRow(ctx, q, row)
}

func insertSearchRow(ctx context.Context, q querier, row search.Row) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO events_fts (id, content, tags) VALUES (?, ?, ?)`,
		row.ID, row.Content, row.Tags,
	)
	if err != nil {
		return fmt.Errorf("insert search row: %w", err)
	}
	return nil
}
