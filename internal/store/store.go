// Package store persists processed notices in SQLite so deduplication
// survives process restarts.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/go-scripts/oamon/internal/notice"
)

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS notices (
    identity_key   TEXT PRIMARY KEY,
    title          TEXT NOT NULL,
    department     TEXT NOT NULL,
    published_date TEXT NOT NULL,
    detail_url     TEXT NOT NULL,
    full_text      TEXT NOT NULL,
    summary        TEXT,
    fetched_at     TEXT NOT NULL,
    processed      BOOLEAN NOT NULL DEFAULT 0,
    created_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notices_published ON notices(published_date);
`

// SQLite is the notice store backed by a single database file.
type SQLite struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and ensures the schema exists.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &SQLite{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Close() error { return s.db.Close() }

// IsKnown reports whether a notice with this identity key was ever saved.
func (s *SQLite) IsKnown(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM notices WHERE identity_key = ?", key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup notice: %w", err)
	}
	return true, nil
}

// Save upserts the record under its identity key. Saving the same record
// twice is a no-op apart from updated_at; an empty summary never overwrites
// a previously stored one, so a retried summarization can only add.
func (s *SQLite) Save(ctx context.Context, rec notice.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notices (identity_key, title, department, published_date,
		                     detail_url, full_text, summary, fetched_at, processed)
		VALUES (?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?)
		ON CONFLICT(identity_key) DO UPDATE SET
		    full_text  = excluded.full_text,
		    summary    = COALESCE(excluded.summary, notices.summary),
		    fetched_at = excluded.fetched_at,
		    processed  = excluded.processed OR notices.processed,
		    updated_at = CURRENT_TIMESTAMP`,
		rec.IdentityKey(),
		rec.Title,
		rec.Department,
		rec.PublishedAt.UTC().Format("2006-01-02"),
		rec.DetailURL,
		rec.FullText,
		rec.Summary,
		rec.FetchedAt.UTC().Format(time.RFC3339),
		rec.Processed,
	)
	if err != nil {
		return fmt.Errorf("save notice: %w", err)
	}
	return nil
}

// Recent returns up to n stored notices, newest first, for the dashboard's
// result listing.
func (s *SQLite) Recent(ctx context.Context, n int) ([]notice.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT title, department, published_date, detail_url,
		       full_text, COALESCE(summary, ''), fetched_at, processed
		FROM notices
		ORDER BY published_date DESC, created_at DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("list notices: %w", err)
	}
	defer rows.Close()

	var records []notice.Record
	for rows.Next() {
		var (
			rec       notice.Record
			published string
			fetched   string
		)
		if err := rows.Scan(&rec.Title, &rec.Department, &published, &rec.DetailURL,
			&rec.FullText, &rec.Summary, &fetched, &rec.Processed); err != nil {
			return nil, fmt.Errorf("scan notice: %w", err)
		}
		if rec.PublishedAt, err = time.Parse("2006-01-02", published); err != nil {
			return nil, fmt.Errorf("parse published date: %w", err)
		}
		if rec.FetchedAt, err = time.Parse(time.RFC3339, fetched); err != nil {
			return nil, fmt.Errorf("parse fetched_at: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notices: %w", err)
	}
	return records, nil
}
