package crawler

import (
	"context"
	"time"
)

// Fetcher performs the HTTP GET for one URL, applying the configured timeout
// and redirect policy.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error)
}

// PageProcessor turns a fetched response into discovered links plus an
// opaque record to persist. Implemented by downstream analysis collaborators.
type PageProcessor interface {
	Process(ctx context.Context, resp FetchResponse) (ProcessResult, error)
}

// Storage persists sessions, pages and error records, and answers
// has-this-URL-been-crawled queries across restarts.
type Storage interface {
	CreateSession(ctx context.Context, session Session) error
	PersistPage(ctx context.Context, sessionID string, record PageRecord) (string, error)
	PersistError(ctx context.Context, sessionID, url string, reason FailureReason) error
	FinishSession(ctx context.Context, sessionID string, stats StatsSnapshot) error
	HasCrawled(ctx context.Context, url string) (bool, error)
}

// RobotsPolicy answers robots.txt questions per URL/domain.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
	CrawlDelay(domain string) (time.Duration, bool)
}

// RateLimiter enforces minimum spacing between requests to the same domain.
// Acquire blocks until the domain's pacing constraint is satisfied.
type RateLimiter interface {
	Acquire(ctx context.Context, domain string) error
	SetDomainDelay(domain string, delay time.Duration)
}

// Publisher pushes page-persisted notifications to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
