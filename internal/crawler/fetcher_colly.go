package crawler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// CollyFetcher implements the Fetcher interface on top of a Colly collector.
// Each Fetch clones the base collector so per-request callbacks never leak
// between workers.
type CollyFetcher struct {
	baseCollector *colly.Collector
	transport     *http.Transport
	maxRedirects  int
	logger        *zap.Logger
}

// NewCollyFetcher constructs a configured Colly-based Fetcher. Robots.txt is
// deliberately ignored at this layer; the engine consults its own policy
// cache before any fetch.
func NewCollyFetcher(cfg CrawlerConfig, logger *zap.Logger) (*CollyFetcher, error) {
	base := colly.NewCollector(
		colly.Async(true),
		colly.UserAgent(cfg.UserAgent),
		colly.MaxBodySize(int(cfg.MaxBodyBytes)),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
	)
	base.AllowURLRevisit = true

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   32,
		MaxConnsPerHost:       cfg.Concurrency * 2,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		ForceAttemptHTTP2:     true,
	}
	base.WithTransport(transport)
	base.SetRequestTimeout(cfg.RequestTimeout)

	return &CollyFetcher{
		baseCollector: base,
		transport:     transport,
		maxRedirects:  cfg.MaxRedirects,
		logger:        logger,
	}, nil
}

// Fetch retrieves one page. Redirects are followed up to the configured hop
// count; the final URL after redirects is reported in the response.
func (f *CollyFetcher) Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error) {
	collector := f.baseCollector.Clone()
	collector.SetRedirectHandler(func(_ *http.Request, via []*http.Request) error {
		if len(via) >= f.maxRedirects {
			return http.ErrUseLastResponse
		}
		return nil
	})

	start := time.Now()
	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnResponse(func(r *colly.Response) {
		headers := http.Header{}
		if r.Headers != nil {
			for k, v := range *r.Headers {
				cp := make([]string, len(v))
				copy(cp, v)
				headers[k] = cp
			}
		}
		resp := FetchResponse{
			URL:         req.URL,
			FinalURL:    r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: headers.Get("Content-Type"),
			Headers:     headers,
			Body:        append([]byte{}, r.Body...),
			Elapsed:     time.Since(start),
		}
		send(fetchResult{resp: resp})
	})

	collector.OnError(func(_ *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		send(fetchResult{err: err})
	})

	if err := collector.Visit(req.URL); err != nil {
		return FetchResponse{}, err
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return FetchResponse{}, err
		}
		return res.resp, res.err
	default:
		return FetchResponse{}, errors.New("fetch produced no result")
	}
}

// Close releases idle connections held by the shared transport.
func (f *CollyFetcher) Close() {
	f.transport.CloseIdleConnections()
}

type fetchResult struct {
	resp FetchResponse
	err  error
}
