package crawler

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLLinkProcessorExtractsLinks(t *testing.T) {
	t.Parallel()

	body := `<html><head><title>Example Page</title></head><body>
		<a href="/relative">Relative</a>
		<a href="https://example.com/absolute">Absolute</a>
		<a href="https://blog.example.com/post">Subdomain</a>
		<a href="https://other.org/page" rel="nofollow">External nofollow</a>
		<a href="mailto:someone@example.com">Mail</a>
		<a href="#section">Fragment</a>
	</body></html>`

	p := NewHTMLLinkProcessor([]string{"example.com"}, true)
	result, err := p.Process(context.Background(), FetchResponse{
		FinalURL:    "https://example.com/page",
		ContentType: "text/html",
		Body:        []byte(body),
	})
	require.NoError(t, err)
	require.Len(t, result.Links, 4, "mailto and fragment links are dropped")

	byURL := make(map[string]Link, len(result.Links))
	for _, link := range result.Links {
		byURL[link.URL] = link
	}

	rel, ok := byURL["https://example.com/relative"]
	require.True(t, ok, "relative href resolved against the final url")
	assert.True(t, rel.IsInternal)
	assert.Equal(t, "Relative", rel.AnchorText)

	sub, ok := byURL["https://blog.example.com/post"]
	require.True(t, ok)
	assert.True(t, sub.IsInternal, "subdomain counts as internal when allowed")

	ext, ok := byURL["https://other.org/page"]
	require.True(t, ok)
	assert.False(t, ext.IsInternal)
	assert.True(t, ext.Nofollow)

	var summary pageSummary
	require.NoError(t, json.Unmarshal(result.Record, &summary))
	assert.Equal(t, "Example Page", summary.Title)
	assert.Equal(t, 4, summary.LinkCount)
}

func TestHTMLLinkProcessorSubdomainsDisallowed(t *testing.T) {
	t.Parallel()

	p := NewHTMLLinkProcessor([]string{"example.com"}, false)
	result, err := p.Process(context.Background(), FetchResponse{
		FinalURL: "https://example.com/",
		Body:     []byte(`<a href="https://blog.example.com/post">x</a>`),
	})
	require.NoError(t, err)
	require.Len(t, result.Links, 1)
	assert.False(t, result.Links[0].IsInternal)
}

func TestHTMLLinkProcessorToleratesBrokenMarkup(t *testing.T) {
	t.Parallel()

	p := NewHTMLLinkProcessor([]string{"example.com"}, true)
	result, err := p.Process(context.Background(), FetchResponse{
		FinalURL: "https://example.com/",
		Body:     []byte(`<html><body><a href="/ok">ok<div></a></html`),
	})
	require.NoError(t, err, "the html5 parser recovers from malformed input")
	require.NotEmpty(t, result.Links)
	assert.Equal(t, "https://example.com/ok", result.Links[0].URL)
}
