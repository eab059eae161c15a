// Package db provides database connection helpers, schema migration, and the
// transient-error retry wrapper used by every writer in the service.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/scenefeed/prebot/telemetry"
)

// maxTransientRetries is how many extra attempts a statement gets after a
// deadlock or lock-wait error before the write is dropped.
const maxTransientRetries = 9

// Connect opens a Postgres connection with the given DSN. The caller resolves
// the DSN (config applies the local-dev default).
func Connect(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("empty database DSN")
	}
	return sql.Open("pgx", dsn)
}

// Migrate applies idempotent schema changes for all required tables and indices.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS predb (
			id SERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			md5 TEXT UNIQUE,
			sha1 TEXT,
			size TEXT,
			category TEXT,
			source TEXT,
			groupid INTEGER,
			requestid INTEGER,
			nuked SMALLINT DEFAULT 0,
			nukereason TEXT,
			files TEXT,
			filename TEXT,
			predate TIMESTAMPTZ DEFAULT NOW(),
			shared SMALLINT DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS groups (
			id SERIAL PRIMARY KEY,
			name TEXT UNIQUE NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predb_title ON predb(title)`,
		`CREATE INDEX IF NOT EXISTS idx_predb_shared ON predb(shared)`,
		`CREATE INDEX IF NOT EXISTS idx_predb_requestid_group ON predb(requestid, groupid)`,
		`CREATE INDEX IF NOT EXISTS idx_predb_predate ON predb(predate)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

// IsTransient reports whether err is a deadlock or lock-wait class error that
// is worth retrying with the identical statement. Everything else (syntax,
// constraint violations, connection loss) is a hard fault.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"55P03": // lock_not_available
		return true
	}
	return false
}

// ExecRetry executes a statement, retrying up to maxTransientRetries extra times
// when the datastore signals a transient conflict. Each retry is logged so the
// operator can see lock contention. Non-transient errors fail immediately.
func ExecRetry(ctx context.Context, dbc *sql.DB, op, query string, args ...any) (sql.Result, error) {
	var lastErr error
	for attempt := 0; attempt <= maxTransientRetries; attempt++ {
		res, err := dbc.ExecContext(ctx, query, args...)
		if err == nil {
			return res, nil
		}
		if !IsTransient(err) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		lastErr = err
		telemetry.IncDeadlockRetries()
		slog.Warn("transient database conflict, retrying statement",
			slog.String("op", op), slog.Int("attempt", attempt+1), slog.Any("err", err))
	}
	return nil, fmt.Errorf("%s: dropped after %d transient retries: %w", op, maxTransientRetries, lastErr)
}

// InsertRetry is ExecRetry for inserts that need the generated row id. The query
// must end with a RETURNING id clause.
func InsertRetry(ctx context.Context, dbc *sql.DB, op, query string, args ...any) (int64, error) {
	var lastErr error
	for attempt := 0; attempt <= maxTransientRetries; attempt++ {
		var id int64
		err := dbc.QueryRowContext(ctx, query, args...).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !IsTransient(err) {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
		lastErr = err
		telemetry.IncDeadlockRetries()
		slog.Warn("transient database conflict, retrying insert",
			slog.String("op", op), slog.Int("attempt", attempt+1), slog.Any("err", err))
	}
	return 0, fmt.Errorf("%s: dropped after %d transient retries: %w", op, maxTransientRetries, lastErr)
}
