// Package postgres provides a Postgres-backed storage.Storage using pgx
// as the database/sql driver. Queries are shared with SQLite through the
// sqldb package; only the DDL and the placeholder style differ.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/aanand-mishra/online-campus/internal/config"
	"github.com/aanand-mishra/online-campus/internal/storage/sqldb"
)

// uniqueViolation is the SQLSTATE for a broken UNIQUE or PRIMARY KEY.
const uniqueViolation = "23505"

var dialect = sqldb.Dialect{
	Name:        "postgres",
	Placeholder: sqldb.Dollar,
	IsUnique:    isUnique,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS students (
			seq         BIGSERIAL PRIMARY KEY,
			id          TEXT  NOT NULL UNIQUE,
			first_name  TEXT  NOT NULL,
			last_name   TEXT  NOT NULL,
			row_version BYTEA NOT NULL
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

// New connects to cfg.Storage.DSN, applies the schema and returns a
// ready-to-use store.
func New(cfg *config.Config) (*sqldb.Store, error) {
	return Open(context.Background(), cfg.Storage.DSN)
}

// Open connects with pool defaults and verifies the server answers.
func Open(ctx context.Context, dsn string) (*sqldb.Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: open db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	store, err := sqldb.New(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres.New: %w", err)
	}
	return store, nil
}

func isUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
