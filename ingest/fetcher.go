package ingest

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/skeinworks/spindle/config"
	"github.com/skeinworks/spindle/errors"
	"github.com/skeinworks/spindle/internal/httpclient"
)

// maxBodyBytes caps how much of a page the fetcher reads. Scraped pages are
// HTML documents; anything larger is not a page we can parse.
const maxBodyBytes = 8 << 20 // 8 MiB

// Fetcher performs rate-limited, SSRF-protected page fetches for the
// spiders. One shared limiter paces all spiders against all sources.
type Fetcher struct {
	client    *httpclient.Client
	limiter   *rate.Limiter
	userAgent string
	logger    *zap.SugaredLogger
}

// NewFetcher builds a fetcher from configuration.
func NewFetcher(cfg config.FetcherConfig, logger *zap.SugaredLogger) *Fetcher {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "spindle/1.0"
	}

	return &Fetcher{
		client:    httpclient.New(timeout, httpclient.Options{}),
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		userAgent: userAgent,
		logger:    logger,
	}
}

// newTestFetcher builds a fetcher that accepts private addresses, for tests
// against httptest servers.
func newTestFetcher(logger *zap.SugaredLogger) *Fetcher {
	return &Fetcher{
		client:    httpclient.New(5*time.Second, httpclient.Options{AllowPrivateIP: true}),
		limiter:   rate.NewLimiter(rate.Inf, 1),
		userAgent: "spindle-test/1.0",
		logger:    logger,
	}
}

// Fetch GETs a page, honoring the rate limit and the context deadline, and
// returns its body.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter wait interrupted")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build request for %s", url)
	}
	req.Header.Set("User-Agent", f.userAgent)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read body of %s", url)
	}

	f.logger.Debugw("Page fetched",
		"url", url,
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds())
	return body, nil
}
