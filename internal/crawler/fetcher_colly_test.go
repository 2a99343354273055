package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFetcherConfig() CrawlerConfig {
	return CrawlerConfig{
		Seeds:          []string{"https://example.com/"},
		UserAgent:      "test-bot",
		MaxPages:       10,
		MaxDepth:       1,
		Concurrency:    1,
		RequestTimeout: 5 * time.Second,
		MaxRedirects:   5,
		MaxBodyBytes:   1 << 20,
		RobotsCacheTTL: time.Hour,
	}
}

func TestCollyFetcherFetchesPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-bot", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body>hello</body></html>")
	}))
	t.Cleanup(srv.Close)

	fetcher, err := NewCollyFetcher(newFetcherConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)

	resp, err := fetcher.Fetch(context.Background(), FetchRequest{URL: srv.URL + "/page"})
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.ContentType)
	assert.Contains(t, string(resp.Body), "hello")
	assert.Equal(t, srv.URL+"/page", resp.FinalURL)
	assert.Greater(t, resp.Elapsed, time.Duration(0))
}

func TestCollyFetcherFollowsRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/middle", http.StatusFound)
	})
	mux.HandleFunc("/middle", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/end", http.StatusFound)
	})
	mux.HandleFunc("/end", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>done</html>")
	})

	fetcher, err := NewCollyFetcher(newFetcherConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)

	resp, err := fetcher.Fetch(context.Background(), FetchRequest{URL: srv.URL + "/start"})
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, srv.URL+"/end", resp.FinalURL)
}

func TestCollyFetcherCapsRedirectHops(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})

	cfg := newFetcherConfig()
	cfg.MaxRedirects = 2
	fetcher, err := NewCollyFetcher(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)

	resp, err := fetcher.Fetch(context.Background(), FetchRequest{URL: srv.URL + "/loop"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode, "hop cap returns the last redirect response")
}

func TestCollyFetcherReturnsErrorStatusResponses(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "<html>missing</html>")
	}))
	t.Cleanup(srv.Close)

	fetcher, err := NewCollyFetcher(newFetcherConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)

	resp, err := fetcher.Fetch(context.Background(), FetchRequest{URL: srv.URL + "/missing"})
	require.NoError(t, err, "http error statuses are responses, not fetch errors")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCollyFetcherReportsNetworkErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	fetcher, err := NewCollyFetcher(newFetcherConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)

	_, err = fetcher.Fetch(context.Background(), FetchRequest{URL: srv.URL + "/gone"})
	assert.Error(t, err)
}
