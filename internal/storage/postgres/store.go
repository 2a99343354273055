// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Viktoriusw/seriously-crawler/internal/crawler"
)

// StoreConfig controls the Postgres connection pool.
type StoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store writes crawl sessions, pages, and error records into Postgres.
type Store struct {
	pool pool
}

// NewStore creates a Postgres-backed Store using the provided config.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewStoreWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewStoreWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// InitSchema creates the crawl tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS crawl_sessions (
	id UUID PRIMARY KEY,
	seed_urls JSONB NOT NULL,
	max_depth INT NOT NULL,
	max_pages INT NOT NULL,
	status TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	pages_crawled BIGINT NOT NULL DEFAULT 0,
	pages_failed BIGINT NOT NULL DEFAULT 0,
	bytes_downloaded BIGINT NOT NULL DEFAULT 0,
	links_discovered BIGINT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS crawl_pages (
	id UUID PRIMARY KEY,
	session_id UUID NOT NULL REFERENCES crawl_sessions (id),
	url TEXT NOT NULL,
	final_url TEXT NOT NULL,
	status_code INT NOT NULL,
	content_type TEXT NOT NULL,
	depth INT NOT NULL,
	parent_url TEXT,
	bytes BIGINT NOT NULL,
	elapsed_ms BIGINT NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL,
	links INT NOT NULL,
	record JSONB
);
CREATE INDEX IF NOT EXISTS idx_crawl_pages_url ON crawl_pages (url);
CREATE TABLE IF NOT EXISTS crawl_errors (
	session_id UUID NOT NULL REFERENCES crawl_sessions (id),
	url TEXT NOT NULL,
	reason TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL
);`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// CreateSession inserts the session row.
func (s *Store) CreateSession(ctx context.Context, session crawler.Session) error {
	seeds, err := json.Marshal(session.SeedURLs)
	if err != nil {
		return fmt.Errorf("marshal seed urls: %w", err)
	}
	query := `
INSERT INTO crawl_sessions (id, seed_urls, max_depth, max_pages, status, started_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = s.pool.Exec(ctx, query,
		session.ID,
		seeds,
		session.MaxDepth,
		session.MaxPages,
		string(session.Status),
		session.StartedAt,
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
	query := `
INSERT INTO crawl_pages (
	id, session_id, url, final_url, status_code, content_type,
	depth, parent_url, bytes, elapsed_ms, fetched_at, links, record
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err = s.pool.Exec(ctx, query,
		pageID.String(),
		sessionID,
		record.URL,
		record.FinalURL,
		record.StatusCode,
		record.ContentType,
		record.Depth,
		record.ParentURL,
		record.Bytes,
		record.Elapsed.Milliseconds(),
		record.FetchedAt,
		record.Links,
		[]byte(record.Record),
	)
	if err != nil {
		return "", fmt.Errorf("insert page: %w", err)
	}
	return pageID.String(), nil
}

// PersistError inserts an error row for the session.
func (s *Store) PersistError(ctx context.Context, sessionID, url string, reason crawler.FailureReason) error {
	query := `
INSERT INTO crawl_errors (session_id, url, reason, occurred_at)
VALUES ($1, $2, $3, now())`
	if _, err := s.pool.Exec(ctx, query, sessionID, url, string(reason)); err != nil {
		return fmt.Errorf("insert error record: %w", err)
	}
	return nil
}

// FinishSession marks the session stopped and stores the final counters.
func (s *Store) FinishSession(ctx context.Context, sessionID string, stats crawler.StatsSnapshot) error {
	query := `
UPDATE crawl_sessions
SET status = $1, finished_at = now(), pages_crawled = $2, pages_failed = $3,
	bytes_downloaded = $4, links_discovered = $5
WHERE id = $6`
	_, err := s.pool.Exec(ctx, query,
		string(crawler.StatusStopped),
		stats.PagesCrawled,
		stats.PagesFailed,
		stats.BytesDownloaded,
		stats.LinksDiscovered,
		sessionID,
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
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM crawl_pages WHERE url = $1)`
	if err := s.pool.QueryRow(ctx, query, normalized).Scan(&exists); err != nil {
		return false, fmt.Errorf("query crawled url: %w", err)
	}
	return exists, nil
}
