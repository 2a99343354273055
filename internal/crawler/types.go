package crawler

import (
	"encoding/json"
	"net/http"
	"time"
)

// SessionStatus represents the lifecycle state of a crawl session.
type SessionStatus string

// Session status values. Transitions follow
// Created -> Running -> (Paused <-> Running) -> Stopping -> Stopped.
const (
	StatusCreated  SessionStatus = "created"
	StatusRunning  SessionStatus = "running"
	StatusPaused   SessionStatus = "paused"
	StatusStopping SessionStatus = "stopping"
	StatusStopped  SessionStatus = "stopped"
)

// Session is the metadata persisted for one orchestration run.
type Session struct {
	ID        string        `json:"id"`
	SeedURLs  []string      `json:"seed_urls"`
	MaxDepth  int           `json:"max_depth"`
	MaxPages  int           `json:"max_pages"`
	Status    SessionStatus `json:"status"`
	StartedAt time.Time     `json:"started_at"`
}

// FrontierEntry is a queued URL awaiting fetch. It is owned by the Frontier
// while queued; ownership transfers to the dequeuing worker.
type FrontierEntry struct {
	URL      string
	Depth    int
	Parent   string
	Priority int
	Sequence uint64
}

// FetchRequest captures everything needed to fetch one URL.
type FetchRequest struct {
	URL   string
	Depth int
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Headers     http.Header
	Body        []byte
	Elapsed     time.Duration
}

// Link is one outbound link discovered by the page processor.
type Link struct {
	URL        string `json:"url"`
	IsInternal bool   `json:"is_internal"`
	AnchorText string `json:"anchor_text,omitempty"`
	Nofollow   bool   `json:"nofollow,omitempty"`
}

// ProcessResult is returned by the page processor. Record is opaque to the
// engine; it is forwarded to storage untouched.
type ProcessResult struct {
	Links  []Link
	Record json.RawMessage
}

// PageRecord is persisted for each successfully fetched page.
type PageRecord struct {
	URL         string          `json:"url"`
	FinalURL    string          `json:"final_url"`
	StatusCode  int             `json:"status_code"`
	ContentType string          `json:"content_type"`
	Depth       int             `json:"depth"`
	ParentURL   string          `json:"parent_url,omitempty"`
	Bytes       int64           `json:"bytes"`
	Elapsed     time.Duration   `json:"elapsed"`
	FetchedAt   time.Time       `json:"fetched_at"`
	Links       int             `json:"links"`
	Record      json.RawMessage `json:"record,omitempty"`
}

// FailureReason classifies why a page was recorded as failed.
type FailureReason string

// Failure reasons persisted alongside error records.
const (
	ReasonBlockedByRobots FailureReason = "blocked-by-robots"
	ReasonNetworkError    FailureReason = "network-error"
	ReasonProcessorError  FailureReason = "processor-error"
	ReasonStorageError    FailureReason = "storage-error"
)

// StatsSnapshot is a consistent view of the crawl counters.
type StatsSnapshot struct {
	PagesCrawled    int64         `json:"pages_crawled"`
	PagesFailed     int64         `json:"pages_failed"`
	BytesDownloaded int64         `json:"bytes_downloaded"`
	LinksDiscovered int64         `json:"links_discovered"`
	StartedAt       time.Time     `json:"started_at"`
	Elapsed         time.Duration `json:"elapsed"`
	PagesPerSecond  float64       `json:"pages_per_second"`
}

// Progress combines the stats snapshot with queue and lifecycle state for
// the control surface.
type Progress struct {
	StatsSnapshot
	SessionID  string        `json:"session_id"`
	QueueDepth int           `json:"queue_depth"`
	InFlight   int           `json:"in_flight"`
	Status     SessionStatus `json:"status"`
	Running    bool          `json:"running"`
	Paused     bool          `json:"paused"`
}
