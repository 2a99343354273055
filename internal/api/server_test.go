package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Viktoriusw/seriously-crawler/internal/crawler"
)

type fakeController struct {
	progress crawler.Progress
	paused   int
	resumed  int
	stopped  int
}

func (c *fakeController) Progress() crawler.Progress { return c.progress }
func (c *fakeController) Pause()                     { c.paused++ }
func (c *fakeController) Resume()                    { c.resumed++ }
func (c *fakeController) Stop()                      { c.stopped++ }

func newTestServer(t *testing.T) (*httptest.Server, *fakeController) {
	t.Helper()
	controller := &fakeController{
		progress: crawler.Progress{
			SessionID:  "7a0c8bc0-0000-7000-8000-000000000001",
			QueueDepth: 7,
			InFlight:   2,
			Status:     crawler.StatusRunning,
			Running:    true,
		},
	}
	controller.progress.PagesCrawled = 12
	controller.progress.BytesDownloaded = 4096

	srv := httptest.NewServer(NewServer(controller, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, controller
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestGetProgress(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/session/progress")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		SessionID    string `json:"session_id"`
		QueueDepth   int    `json:"queue_depth"`
		InFlight     int    `json:"in_flight"`
		Status       string `json:"status"`
		PagesCrawled int64  `json:"pages_crawled"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "7a0c8bc0-0000-7000-8000-000000000001", body.SessionID)
	assert.Equal(t, 7, body.QueueDepth)
	assert.Equal(t, 2, body.InFlight)
	assert.Equal(t, string(crawler.StatusRunning), body.Status)
	assert.Equal(t, int64(12), body.PagesCrawled)
}

func TestControlEndpoints(t *testing.T) {
	t.Parallel()

	srv, controller := newTestServer(t)
	for _, path := range []string{"/v1/session/pause", "/v1/session/resume", "/v1/session/stop"} {
		resp, err := http.Post(srv.URL+path, "application/json", nil)
		require.NoError(t, err, path)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()
		assert.Equal(t, controller.progress.SessionID, body["session_id"], path)
		assert.Equal(t, string(crawler.StatusRunning), body["status"], path)
	}

	assert.Equal(t, 1, controller.paused)
	assert.Equal(t, 1, controller.resumed)
	assert.Equal(t, 1, controller.stopped)
}

func TestControlEndpointsRejectGet(t *testing.T) {
	t.Parallel()

	srv, controller := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/session/pause")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Zero(t, controller.paused)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}
