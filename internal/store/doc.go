// Package store provides SQLite-backed storage for Nostr events.
//
// One database file holds:
//   - events: one row per stored event; tags kept as JSON
//   - tags: the projection of single-character tags, for tag filters
//   - events_fts: the public full-text index (trigram FTS5)
//   - decryption_cache: plaintext supplied by callers for encrypted events,
//     indexed by decryption_cache_fts through triggers
//
// # Replacement
//
// Replaceable kinds keep one event per (kind, pubkey); addressable kinds one
// per (kind, pubkey, d-tag). The winner is the newest created_at, ties broken
// by the greater id. Unless history is kept, a losing event is refused and
// older rows are pruned in the transaction that stores the winner.
//
// # Consistency
//
// Every write, with its tag rows, search row and pruning, is one
// transaction. Observers are called after commit, in commit order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes, served by a read-only pool
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
