// Package memory provides an in-memory Storage implementation for
// development and testing.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Viktoriusw/seriously-crawler/internal/clock"
	"github.com/Viktoriusw/seriously-crawler/internal/crawler"
)

// ErrorRecord is one failed-page row kept per session.
type ErrorRecord struct {
	URL        string
	Reason     crawler.FailureReason
	OccurredAt time.Time
}

// Store keeps sessions, pages, and error records in maps guarded by one
// RWMutex. The crawled set is keyed by normalized URL and spans sessions, so
// HasCrawled answers across restarts of the engine within one process.
type Store struct {
	clk clock.Clock

	mu       sync.RWMutex
	sessions map[string]crawler.Session
	finished map[string]crawler.StatsSnapshot
	pages    map[string][]crawler.PageRecord
	errors   map[string][]ErrorRecord
	crawled  map[string]struct{}
	nextPage int64
}

// NewStore constructs a Store.
func NewStore(clk clock.Clock) *Store {
	return &Store{
		clk:      clk,
		sessions: make(map[string]crawler.Session),
		finished: make(map[string]crawler.StatsSnapshot),
		pages:    make(map[string][]crawler.PageRecord),
		errors:   make(map[string][]ErrorRecord),
		crawled:  make(map[string]struct{}),
	}
}

// CreateSession stores new session metadata.
func (s *Store) CreateSession(_ context.Context, session crawler.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	s.sessions[session.ID] = session
	return nil
}

// PersistPage appends a page row and marks its URL crawled.
func (s *Store) PersistPage(_ context.Context, sessionID string, record crawler.PageRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return "", fmt.Errorf("session %s not found", sessionID)
	}
	s.nextPage++
	pageID := fmt.Sprintf("page-%d", s.nextPage)
	s.pages[sessionID] = append(s.pages[sessionID], record)
	if normalized, err := crawler.NormalizeURL(record.URL); err == nil {
		s.crawled[normalized] = struct{}{}
	}
	return pageID, nil
}

// PersistError appends an error record for the session.
func (s *Store) PersistError(_ context.Context, sessionID, url string, reason crawler.FailureReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[sessionID] = append(s.errors[sessionID], ErrorRecord{
		URL:        url,
		Reason:     reason,
		OccurredAt: s.clk.Now(),
	})
	return nil
}

// FinishSession records the final snapshot and marks the session stopped.
func (s *Store) FinishSession(_ context.Context, sessionID string, stats crawler.StatsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	session.Status = crawler.StatusStopped
	s.sessions[sessionID] = session
	s.finished[sessionID] = stats
	return nil
}

// HasCrawled reports whether the normalized form of url was persisted before.
func (s *Store) HasCrawled(_ context.Context, url string) (bool, error) {
	normalized, err := crawler.NormalizeURL(url)
	if err != nil {
		return false, fmt.Errorf("normalize url: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.crawled[normalized]
	return ok, nil
}

// Session fetches session metadata by ID.
func (s *Store) Session(id string) (crawler.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

// FinalStats returns the snapshot recorded by FinishSession.
func (s *Store) FinalStats(sessionID string) (crawler.StatsSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats, ok := s.finished[sessionID]
	return stats, ok
}

// Pages returns a copy of the page rows recorded for a session.
func (s *Store) Pages(sessionID string) []crawler.PageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pages := s.pages[sessionID]
	out := make([]crawler.PageRecord, len(pages))
	copy(out, pages)
	return out
}

// Errors returns a copy of the error rows recorded for a session.
func (s *Store) Errors(sessionID string) []ErrorRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	errs := s.errors[sessionID]
	out := make([]ErrorRecord, len(errs))
	copy(out, errs)
	return out
}
