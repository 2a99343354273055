package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Viktoriusw/seriously-crawler/internal/clock/system"
	"github.com/Viktoriusw/seriously-crawler/internal/crawler"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "crawl.db"), system.New())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	session := crawler.Session{
		ID:        "7a0c8bc0-0000-7000-8000-000000000001",
		SeedURLs:  []string{"https://example.com/"},
		MaxDepth:  2,
		MaxPages:  10,
		Status:    crawler.StatusRunning,
		StartedAt: time.Unix(1700000000, 0).UTC(),
	}
	require.NoError(t, store.CreateSession(ctx, session))
	assert.Error(t, store.CreateSession(ctx, session), "primary key rejects duplicates")

	pageID, err := store.PersistPage(ctx, session.ID, crawler.PageRecord{
		URL:         "https://example.com/a",
		FinalURL:    "https://example.com/a",
		StatusCode:  200,
		ContentType: "text/html",
		Depth:       1,
		Bytes:       512,
		Elapsed:     50 * time.Millisecond,
		FetchedAt:   time.Unix(1700000100, 0).UTC(),
		Links:       3,
		Record:      []byte(`{"title":"A"}`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, pageID)

	crawled, err := store.HasCrawled(ctx, "HTTPS://example.com/a/")
	require.NoError(t, err)
	assert.True(t, crawled, "equivalent forms normalize to the stored url")

	crawled, err = store.HasCrawled(ctx, "https://example.com/other")
	require.NoError(t, err)
	assert.False(t, crawled)

	require.NoError(t, store.PersistError(ctx, session.ID, "https://example.com/x", crawler.ReasonProcessorError))
	require.NoError(t, store.FinishSession(ctx, session.ID, crawler.StatsSnapshot{
		PagesCrawled:    1,
		PagesFailed:     1,
		BytesDownloaded: 512,
		LinksDiscovered: 3,
	}))
}

func TestSQLiteHasCrawledRejectsBadURL(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	_, err := store.HasCrawled(context.Background(), "ftp://example.com/a")
	assert.Error(t, err)
}
