// Package sqlite provides a SQLite-backed implementation of the
// storage.Storage interface.
//
// WHY SQLite?
// ───────────
// SQLite stores everything in a single file on disk. There is no
// network, no separate server process, and no installation beyond the
// driver. It is the default driver for local runs.
//
// Importing go-sqlite3 registers the sqlite3 driver with database/sql.
// The queries themselves live in the sqldb package; this package only
// opens the file and describes the SQLite flavour of the schema.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aanand-mishra/online-campus/internal/config"
	"github.com/aanand-mishra/online-campus/internal/storage/sqldb"

	// Importing the package also registers the "sqlite3" driver.
	"github.com/mattn/go-sqlite3"
)

// Schema:
//
//	students    seq gives insertion order, row_version is the CAS token
//	courses     code is unique
//	enrolments  one row per (student, course) pair
var dialect = sqldb.Dialect{
	Name:        "sqlite",
	Placeholder: sqldb.QuestionMark,
	IsUnique:    isUnique,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS students (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			id          TEXT    NOT NULL UNIQUE,
			first_name  TEXT    NOT NULL,
			last_name   TEXT    NOT NULL,
			row_version BLOB    NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS courses (
			id          TEXT    PRIMARY KEY,
			code        TEXT    NOT NULL UNIQUE,
			name        TEXT    NOT NULL,
			description TEXT    NOT NULL DEFAULT '',
			credits     INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS enrolments (
			id          TEXT PRIMARY KEY,
			student_id  TEXT NOT NULL REFERENCES students(id),
			course_id   TEXT NOT NULL REFERENCES courses(id),
			UNIQUE (student_id, course_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_enrolments_student ON enrolments(student_id)`,
	},
}

// New opens the SQLite database at cfg.Storage.Path, creates the tables
// if they do not already exist, and returns a ready-to-use store.
func New(cfg *config.Config) (*sqldb.Store, error) {
	return Open(context.Background(), cfg.Storage.Path)
}

// Open is New for callers that only have a file path (tests, tools).
func Open(ctx context.Context, path string) (*sqldb.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite.New: create dir: %w", err)
		}
	}

	// WAL lets readers proceed while a writer holds the lock; the busy
	// timeout makes concurrent writers wait instead of failing at once.
	// Immediate transactions take the write lock up front, so a
	// read-then-write transaction never fails on lock upgrade.
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open db: %w", err)
	}

	store, err := sqldb.New(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.New: %w", err)
	}
	return store, nil
}

func isUnique(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
