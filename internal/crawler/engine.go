package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Viktoriusw/seriously-crawler/internal/clock"
	iduuid "github.com/Viktoriusw/seriously-crawler/internal/id/uuid"
	"github.com/Viktoriusw/seriously-crawler/internal/progress"
)

// seedPriority orders seed URLs ahead of discovered links.
const seedPriority = 10

const defaultHeartbeatInterval = 5 * time.Second

// Engine owns the crawl session lifecycle and runs the fixed-size worker
// pool. Workers pull from the Frontier, consult the robots policy and rate
// limiter, fetch, hand the response to the page processor, feed discovered
// links back into the Frontier, and report to storage and stats.
//
// Instead of polling, idle and paused workers block on a condition variable
// signaled by Frontier feeds and by Pause/Resume/Stop transitions. The
// session ends when maxPages is reached or the frontier is quiescent: empty
// while no worker holds an in-flight entry. An explicit in-flight counter
// closes the race where a worker has dequeued the last entry but not yet
// enqueued its children.
type Engine struct {
	cfg       CrawlerConfig
	frontier  *Frontier
	fetcher   Fetcher
	processor PageProcessor
	store     Storage
	robots    RobotsPolicy
	limiter   RateLimiter
	emitter   progress.Emitter
	publisher Publisher
	clk       clock.Clock
	logger    *zap.Logger
	idGen     iduuid.Generator

	mu        sync.Mutex
	cond      *sync.Cond
	status    SessionStatus
	inFlight  int
	maxPages  int
	session   Session
	sessionID [16]byte
	stats     *StatsAggregator
	done      chan struct{}
}

// NewEngine constructs an Engine. The emitter and publisher may be nil when
// progress reporting or downstream notification is not wanted.
func NewEngine(
	cfg CrawlerConfig,
	fetcher Fetcher,
	processor PageProcessor,
	store Storage,
	robots RobotsPolicy,
	limiter RateLimiter,
	emitter progress.Emitter,
	publisher Publisher,
	clk clock.Clock,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	frontier := NewFrontier(FrontierConfig{
		MaxDepth:        cfg.MaxDepth,
		SeedDomains:     cfg.SeedDomains(),
		AllowSubdomains: cfg.AllowSubdomains,
		FollowExternal:  cfg.FollowExternalLinks,
		ExcludePatterns: cfg.ExcludePatterns,
	}, logger)

	e := &Engine{
		cfg:       cfg,
		frontier:  frontier,
		fetcher:   fetcher,
		processor: processor,
		store:     store,
		robots:    robots,
		limiter:   limiter,
		emitter:   emitter,
		publisher: publisher,
		clk:       clk,
		logger:    logger,
		status:    StatusCreated,
		stats:     NewStatsAggregator(clk),
		done:      make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Start validates the configuration, admits the seeds, spawns the worker
// pool, and blocks until the session terminates. It returns the final stats
// snapshot. A non-positive maxPages falls back to the configured default.
func (e *Engine) Start(ctx context.Context, maxPages int) (StatsSnapshot, error) {
	if maxPages <= 0 {
		maxPages = e.cfg.MaxPages
	}
	if err := e.cfg.Validate(); err != nil {
		return StatsSnapshot{}, fmt.Errorf("invalid configuration: %w", err)
	}

	e.mu.Lock()
	if e.status != StatusCreated {
		status := e.status
		e.mu.Unlock()
		return StatsSnapshot{}, fmt.Errorf("session already started (status %s)", status)
	}
	e.status = StatusRunning
	e.maxPages = maxPages
	e.mu.Unlock()

	accepted := 0
	for _, seed := range e.cfg.Seeds {
		if e.frontier.Add(seed, 0, "", seedPriority) {
			accepted++
		}
	}
	if accepted == 0 {
		return e.failStart(fmt.Errorf("no seed URL was admitted to the frontier"))
	}

	rawID, err := e.idGen.NewRawID()
	if err != nil {
		return e.failStart(fmt.Errorf("generate session id: %w", err))
	}
	session := Session{
		ID:        rawID.String(),
		SeedURLs:  append([]string(nil), e.cfg.Seeds...),
		MaxDepth:  e.cfg.MaxDepth,
		MaxPages:  maxPages,
		Status:    StatusRunning,
		StartedAt: e.clk.Now(),
	}
	e.mu.Lock()
	e.session = session
	e.sessionID = progress.UUIDToBytes(rawID)
	e.stats = NewStatsAggregator(e.clk)
	e.mu.Unlock()

	if err := e.store.CreateSession(ctx, session); err != nil {
		return e.failStart(fmt.Errorf("create session: %w", err))
	}

	e.emit(progress.Event{Stage: progress.StageSessionStart})
	e.logger.Info("crawl session started",
		zap.String("session_id", session.ID),
		zap.Int("max_pages", maxPages),
		zap.Int("max_depth", e.cfg.MaxDepth),
		zap.Int("concurrency", e.cfg.Concurrency),
	)

	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			e.runWorker(ctx, worker)
		}(i)
	}

	hbCtx, stopHeartbeat := context.WithCancel(context.Background())
	go e.heartbeat(hbCtx, ctx)

	wg.Wait()
	stopHeartbeat()

	e.mu.Lock()
	e.status = StatusStopped
	e.session.Status = StatusStopped
	e.mu.Unlock()
	e.cond.Broadcast()
	close(e.done)

	snap := e.stats.Snapshot()
	if err := e.store.FinishSession(ctx, session.ID, snap); err != nil {
		e.logger.Warn("finish session failed", zap.String("session_id", session.ID), zap.Error(err))
	}
	e.emit(progress.Event{Stage: progress.StageSessionDone, Dur: snap.Elapsed})
	e.logger.Info("crawl session finished",
		zap.String("session_id", session.ID),
		zap.Int64("pages_crawled", snap.PagesCrawled),
		zap.Int64("pages_failed", snap.PagesFailed),
		zap.Int64("bytes_downloaded", snap.BytesDownloaded),
		zap.Duration("elapsed", snap.Elapsed),
	)
	return snap, nil
}

func (e *Engine) failStart(err error) (StatsSnapshot, error) {
	e.mu.Lock()
	e.status = StatusStopped
	e.mu.Unlock()
	close(e.done)
	e.emit(progress.Event{Stage: progress.StageSessionError, Note: err.Error()})
	return StatsSnapshot{}, err
}

// Pause makes workers stop pulling new work at their next loop boundary.
// In-flight fetches run to completion.
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.status == StatusRunning {
		e.status = StatusPaused
		e.logger.Info("crawl paused")
	}
	e.mu.Unlock()
	e.cond.Broadcast()
}

// Resume lets paused workers pull work again.
func (e *Engine) Resume() {
	e.mu.Lock()
	if e.status == StatusPaused {
		e.status = StatusRunning
		e.logger.Info("crawl resumed")
	}
	e.mu.Unlock()
	e.cond.Broadcast()
}

// Stop makes all workers exit at their next loop boundary. It does not wait
// for them; Start returns once the pool has drained, and Shutdown offers a
// bounded join.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.beginStopLocked("stop requested")
	e.mu.Unlock()
}

// Shutdown stops the session, waits for the worker pool to exit (bounded by
// ctx), and releases the HTTP client's idle connections.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.Stop()

	e.mu.Lock()
	started := e.status != StatusCreated
	e.mu.Unlock()

	if started {
		select {
		case <-e.done:
		case <-ctx.Done():
			return fmt.Errorf("shutdown wait: %w", ctx.Err())
		}
	}
	if closer, ok := e.fetcher.(interface{ Close() }); ok {
		closer.Close()
	}
	return nil
}

// Progress returns the current stats snapshot together with queue depth and
// lifecycle state.
func (e *Engine) Progress() Progress {
	e.mu.Lock()
	stats := e.stats
	p := Progress{
		SessionID: e.session.ID,
		InFlight:  e.inFlight,
		Status:    e.status,
		Running:   e.status == StatusRunning || e.status == StatusPaused,
		Paused:    e.status == StatusPaused,
	}
	e.mu.Unlock()

	p.StatsSnapshot = stats.Snapshot()
	p.QueueDepth = e.frontier.Size()
	return p
}

func (e *Engine) runWorker(ctx context.Context, worker int) {
	e.logger.Debug("worker started", zap.Int("worker", worker))
	for {
		entry, ok := e.nextEntry()
		if !ok {
			break
		}
		e.processEntry(ctx, entry)

		e.mu.Lock()
		e.inFlight--
		e.mu.Unlock()
		e.cond.Broadcast()
	}
	e.logger.Debug("worker exiting", zap.Int("worker", worker))
}

// nextEntry blocks until work is available, the session pauses or stops, or
// quiescence is detected. It returns false when the worker should exit.
func (e *Engine) nextEntry() (FrontierEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for {
		switch e.status {
		case StatusStopping, StatusStopped:
			return FrontierEntry{}, false
		case StatusPaused:
			e.cond.Wait()
			continue
		}
		if e.stats.Crawled() >= int64(e.maxPages) {
			e.beginStopLocked("max pages reached")
			return FrontierEntry{}, false
		}
		if entry, ok := e.frontier.Next(); ok {
			e.inFlight++
			return entry, true
		}
		if e.inFlight == 0 {
			e.beginStopLocked("frontier quiescent")
			return FrontierEntry{}, false
		}
		e.cond.Wait()
	}
}

func (e *Engine) beginStopLocked(reason string) {
	if e.status == StatusRunning || e.status == StatusPaused {
		e.status = StatusStopping
		e.logger.Info("stopping crawl", zap.String("reason", reason))
	}
	e.cond.Broadcast()
}

func (e *Engine) processEntry(ctx context.Context, entry FrontierEntry) {
	domain := Domain(entry.URL)

	if e.cfg.SkipCrawled {
		if crawled, err := e.store.HasCrawled(ctx, entry.URL); err == nil && crawled {
			e.logger.Debug("skipping previously crawled url", zap.String("url", entry.URL))
			return
		}
	}

	if e.cfg.RespectRobots {
		if !e.robots.Allowed(ctx, entry.URL) {
			e.recordFailure(ctx, entry.URL, ReasonBlockedByRobots, nil)
			return
		}
		if delay, ok := e.robots.CrawlDelay(domain); ok && delay > e.cfg.CrawlDelay {
			e.limiter.SetDomainDelay(domain, delay)
		}
	}

	if err := e.limiter.Acquire(ctx, domain); err != nil {
		// Context ended while pacing; the stop transition is observed at
		// the next loop boundary.
		return
	}

	resp, err := e.fetcher.Fetch(ctx, FetchRequest{URL: entry.URL, Depth: entry.Depth})
	if err != nil {
		e.recordFailure(ctx, entry.URL, ReasonNetworkError, err)
		return
	}

	e.emit(progress.Event{
		Stage:       progress.StageFetchDone,
		Site:        domain,
		URL:         entry.URL,
		Bytes:       int64(len(resp.Body)),
		StatusClass: progress.ClassifyStatus(resp.StatusCode),
		Dur:         resp.Elapsed,
	})

	if !isProcessableContent(resp.ContentType) {
		TotalContentSkipped.Inc()
		e.logger.Debug("dropping non-html response",
			zap.String("url", entry.URL),
			zap.String("content_type", resp.ContentType),
		)
		return
	}

	result, err := e.invokeProcessor(ctx, resp)
	if err != nil {
		e.recordFailure(ctx, entry.URL, ReasonProcessorError, err)
		return
	}

	if n := len(result.Links); n > 0 {
		e.stats.AddLinks(int64(n))
		TotalLinksDiscovered.Add(float64(n))
	}
	added := 0
	for _, link := range result.Links {
		if link.Nofollow {
			continue
		}
		if !link.IsInternal && !e.cfg.FollowExternalLinks {
			continue
		}
		if e.frontier.Add(link.URL, entry.Depth+1, resp.FinalURL, 0) {
			added++
		}
	}
	if added > 0 {
		e.cond.Broadcast()
	}

	record := PageRecord{
		URL:         entry.URL,
		FinalURL:    resp.FinalURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.ContentType,
		Depth:       entry.Depth,
		ParentURL:   entry.Parent,
		Bytes:       int64(len(resp.Body)),
		Elapsed:     resp.Elapsed,
		FetchedAt:   e.clk.Now(),
		Links:       len(result.Links),
		Record:      result.Record,
	}
	pageID, err := e.store.PersistPage(ctx, e.session.ID, record)
	if err != nil {
		e.recordFailure(ctx, entry.URL, ReasonStorageError, err)
		return
	}

	e.stats.IncrementCrawled()
	e.stats.AddBytes(record.Bytes)
	TotalPagesCrawled.Inc()
	TotalBytesDownloaded.Add(float64(record.Bytes))

	e.publishPage(ctx, pageID, entry, resp)
}

func (e *Engine) recordFailure(ctx context.Context, url string, reason FailureReason, cause error) {
	e.stats.IncrementFailed()
	TotalPagesFailed.WithLabelValues(string(reason)).Inc()

	if reason == ReasonBlockedByRobots {
		e.logger.Info("blocked by robots.txt", zap.String("url", url))
	} else {
		e.logger.Warn("page failed",
			zap.String("url", url),
			zap.String("reason", string(reason)),
			zap.Error(cause),
		)
	}
	if err := e.store.PersistError(ctx, e.session.ID, url, reason); err != nil {
		e.logger.Warn("persist error record failed", zap.String("url", url), zap.Error(err))
	}
}

// invokeProcessor isolates processor faults: a panic in the injected
// processor is converted to an error so one bad page cannot kill a worker.
func (e *Engine) invokeProcessor(ctx context.Context, resp FetchResponse) (result ProcessResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return e.processor.Process(ctx, resp)
}

func (e *Engine) publishPage(ctx context.Context, pageID string, entry FrontierEntry, resp FetchResponse) {
	if e.publisher == nil || e.cfg.PublishTopic == "" {
		return
	}
	payload := map[string]any{
		"session_id": e.session.ID,
		"page_id":    pageID,
		"url":        resp.FinalURL,
		"status":     resp.StatusCode,
		"bytes":      len(resp.Body),
		"depth":      entry.Depth,
		"fetched_at": e.clk.Now().Format(time.RFC3339),
	}
	if _, err := e.publisher.Publish(ctx, e.cfg.PublishTopic, payload); err != nil {
		e.logger.Warn("publish page notification failed", zap.String("url", resp.FinalURL), zap.Error(err))
	}
}

func (e *Engine) heartbeat(loopCtx, crawlCtx context.Context) {
	interval := e.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-loopCtx.Done():
			return
		case <-crawlCtx.Done():
			e.Stop()
			return
		case <-ticker.C:
			p := e.Progress()
			e.emit(progress.Event{Stage: progress.StageSessionHeartbeat, Bytes: p.BytesDownloaded})
			e.logger.Info("crawl progress",
				zap.Int64("pages_crawled", p.PagesCrawled),
				zap.Int64("pages_failed", p.PagesFailed),
				zap.Int("queue_depth", p.QueueDepth),
				zap.Int("in_flight", p.InFlight),
				zap.Float64("pages_per_second", p.PagesPerSecond),
			)
		}
	}
}

func (e *Engine) emit(evt progress.Event) {
	if e.emitter == nil {
		return
	}
	evt.SessionID = e.sessionID
	if evt.TS.IsZero() {
		evt.TS = e.clk.Now()
	}
	e.emitter.Emit(evt)
}

func isProcessableContent(contentType string) bool {
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}
