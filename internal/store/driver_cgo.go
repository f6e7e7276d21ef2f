//go:build cgo && sqlite_fts5

package store

import (
	_ "github.com/mattn/go-sqlite3"
)

// Built with cgo and the sqlite_fts5 tag, the mattn driver has FTS5 compiled
// in and becomes the default.
func init() {
	defaultDriver = "sqlite3"
}
