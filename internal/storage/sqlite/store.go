// Package sqlite provides a single-file Storage implementation suitable for
// local crawls without a Postgres instance.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/Viktoriusw/seriously-crawler/internal/clock"
	"github.com/Viktoriusw/seriously-crawler/internal/crawler"
)

const schema = `
CREATE TABLE IF NOT EXISTS crawl_sessions (
	id TEXT PRIMARY KEY,
	seed_urls TEXT NOT NULL,
	max_depth INTEGER NOT NULL,
	max_pages INTEGER NOT NULL,
	status TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	pages_crawled INTEGER NOT NULL DEFAULT 0,
	pages_failed INTEGER NOT NULL DEFAULT 0,
	bytes_downloaded INTEGER NOT NULL DEFAULT 0,
	links_discovered INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS crawl_pages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	url TEXT NOT NULL,
	final_url TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	content_type TEXT NOT NULL,
	depth INTEGER NOT NULL,
	parent_url TEXT,
	bytes INTEGER NOT NULL,
	elapsed_ms INTEGER NOT NULL,
	fetched_at TIMESTAMP NOT NULL,
	links INTEGER NOT NULL,
	record TEXT
);
CREATE INDEX IF NOT EXISTS idx_crawl_pages_url ON crawl_pages (url);
CREATE TABLE IF NOT EXISTS crawl_errors (
	session_id TEXT NOT NULL,
	url TEXT NOT NULL,
	reason TEXT NOT NULL,
	occurred_at TIMESTAMP NOT NULL
);`

// Store persists crawl data in a SQLite database file.
type Store struct {
	db  *sql.DB
	clk clock.Clock
}

// Open creates or opens the database at path and ensures the schema exists.
// SQLite permits a single writer, so the connection pool is capped at one.
func Open(ctx context.Context, path string, clk clock.Clock) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: db, clk: clk}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts the session row. Seed URLs are stored as a JSON
// array string.
func (s *Store) CreateSession(ctx context.Context, session crawler.Session) error {
	seeds, err := seedsJSON(session.SeedURLs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO crawl_sessions (id, seed_urls, max_depth, max_pages, status, started_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, seeds, session.MaxDepth, session.MaxPages,
		string(session.Status), session.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// PersistPage inserts a page row and returns its generated ID.
func (s *Store) PersistPage(ctx context.Context, sessionID string, record crawler.PageRecord) (string, error) {
	pageID, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate page id: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO crawl_pages (
	id, session_id, url, final_url, status_code, content_type,
	depth, parent_url, bytes, elapsed_ms, fetched_at, links, record
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pageID.String(), sessionID, record.URL, record.FinalURL,
		record.StatusCode, record.ContentType, record.Depth, record.ParentURL,
		record.Bytes, record.Elapsed.Milliseconds(), record.FetchedAt,
		record.Links, string(record.Record),
	)
	if err != nil {
		return "", fmt.Errorf("insert page: %w", err)
	}
	return pageID.String(), nil
}

// PersistError inserts an error row for the session.
func (s *Store) PersistError(ctx context.Context, sessionID, url string, reason crawler.FailureReason) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO crawl_errors (session_id, url, reason, occurred_at)
VALUES (?, ?, ?, ?)`,
		sessionID, url, string(reason), s.clk.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert error record: %w", err)
	}
	return nil
}

// FinishSession marks the session stopped and stores the final counters.
func (s *Store) FinishSession(ctx context.Context, sessionID string, stats crawler.StatsSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE crawl_sessions
SET status = ?, finished_at = ?, pages_crawled = ?, pages_failed = ?,
	bytes_downloaded = ?, links_discovered = ?
WHERE id = ?`,
		string(crawler.StatusStopped), s.clk.Now(),
		stats.PagesCrawled, stats.PagesFailed,
		stats.BytesDownloaded, stats.LinksDiscovered, sessionID,
	)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return nil
}

// HasCrawled reports whether the normalized form of url was persisted in any
// session.
func (s *Store) HasCrawled(ctx context.Context, url string) (bool, error) {
	normalized, err := crawler.NormalizeURL(url)
	if err != nil {
		return false, fmt.Errorf("normalize url: %w", err)
	}
	var count int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM crawl_pages WHERE url = ?`, normalized,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query crawled url: %w", err)
	}
	return count > 0, nil
}

func seedsJSON(seeds []string) (string, error) {
	raw, err := json.Marshal(seeds)
	if err != nil {
		return "", fmt.Errorf("marshal seed urls: %w", err)
	}
	return string(raw), nil
}
