package store

import (
	_ "modernc.org/sqlite"
)

// defaultDriver is the database/sql driver Open uses unless WithDriver says
// otherwise. The pure-Go driver ships FTS5 and the trigram tokenizer.
var defaultDriver = "sqlite"
