package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/roach88/bakery/internal/querysql"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added composite (kind, pubkey, identifier) index for replaceable lookups
const currentSchemaVersion = 1

// maxReaders caps the read-only pool of a file database.
const maxReaders = 4

// Store is a single-file SQLite event store with tag and full-text indexes.
// Uses WAL mode so readers proceed while a write is in flight.
//
// A Store is safe for concurrent use. Writes are serialized on one
// connection; reads go through a separate read-only pool.
type Store struct {
	db       *sql.DB // the single writer connection
	reader   *sql.DB // read-only pool; db itself for in-memory databases
	path     string
	driver   string
	compiler *querysql.SQLCompiler

	keepHistory       bool
	preserveEphemeral bool
	observers         []Observer
	log               zerolog.Logger

	// mu serializes writers and the observer calls that follow their commit.
	mu sync.Mutex
}

// Option configures a Store at Open.
type Option func(*Store)

// WithKeepHistory keeps superseded replaceable and addressable versions
// instead of pruning them.
func WithKeepHistory(keep bool) Option {
	return func(s *Store) {
		s.keepHistory = keep
	}
}

// WithPreserveEphemeral stores ephemeral kinds instead of rejecting them.
func WithPreserveEphemeral(preserve bool) Option {
	return func(s *Store) {
		s.preserveEphemeral = preserve
	}
}

// WithLogger sets the store logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// WithObserver registers an observer for committed inserts and removals.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithDriver selects the database/sql driver name ("sqlite" or "sqlite3").
func WithDriver(name string) Option {
	return func(s *Store) {
		s.driver = name
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically, and builds the
// public search index from existing rows the first time it is missing.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:     path,
		driver:   defaultDriver,
		compiler: querysql.NewSQLCompiler(),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open(s.driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer; a single pooled connection also keeps
	// per-connection pragmas in force for every statement.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s.db = db

	if err := s.ensureSearchIndex(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set up search index: %w", err)
	}

	reader, err := s.openReader()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open read pool: %w", err)
	}
	s.reader = reader

	s.log.Debug().
		Str("path", path).
		Str("driver", s.driver).
		Bool("keep_history", s.keepHistory).
		Bool("preserve_ephemeral", s.preserveEphemeral).
		Msg("store opened")

	return s, nil
}

// Close closes the read pool and the writer connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if s.reader != nil && s.reader != s.db {
		if err := s.reader.Close(); err != nil {
			s.db.Close()
			return err
		}
	}
	return s.db.Close()
}

// openReader opens the read-only pool so queries do not queue behind the
// writer connection. In-memory and URI databases read through the writer:
// a second pool would not see the same database.
func (s *Store) openReader() (*sql.DB, error) {
	if s.path == "" || s.path == ":memory:" || strings.HasPrefix(s.path, "file:") {
		return s.db, nil
	}

	db, err := sql.Open(s.driver, readerDSN(s.driver, s.path))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(maxReaders)
	db.SetMaxIdleConns(maxReaders)
	return db, nil
}

var uriEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

// readerDSN builds a read-only URI for path with the busy timeout the
// writer uses, in the option syntax of the named driver.
func readerDSN(driver, path string) string {
	uri := "file:" + uriEscaper.Replace(path) + "?mode=ro"
	if driver == "sqlite3" {
		return uri + "&_busy_timeout=5000"
	}
	return uri + "&_pragma=busy_timeout(5000)"
}

// DB exposes the underlying pool. Writes through it bypass observers
// and the search index.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates missing tables and indexes, then migrates.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the composite replaceable-lookup index to databases
// created before it was part of schema.sql.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_events_replaceable
		ON events(kind, pubkey, identifier)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// hasTable reports whether a table (or virtual table) exists.
func hasTable(ctx context.Context, q querier, name string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return n > 0, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// verifyPragma checks that a pragma is set to the expected value.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
