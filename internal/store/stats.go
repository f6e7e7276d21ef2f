package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Stats summarizes the store's contents and footprint.
type Stats struct {
	Events int
	// Size is the combined size in bytes of the database file and its
	// -wal and -shm side files.
	Size int64
}

// Stats counts stored events and measures the database files on disk.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&st.Events); err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}

	for _, suffix := range []string{"", "-wal", "-shm"} {
		info, err := os.Stat(s.path + suffix)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Stats{}, fmt.Errorf("stats: %w", err)
		}
		st.Size += info.Size()
	}
	return st, nil
}

// Clear deletes every event together with its tags, search rows and cached
// plaintext, in one transaction. Observers are not notified per event.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clear: begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM events_fts`,
		`DELETE FROM decryption_cache`,
		`DELETE FROM tags`,
		`DELETE FROM events`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear: %s: %w", stmt, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("clear: commit: %w", err)
	}

	s.log.Info().Msg("store cleared")
	return nil
}
