// Package amazon resolves ASINs by scraping public search result pages.
// There is no API here: requests present browser headers and stay behind a
// one-per-second politeness limit so the host does not block us.
package amazon

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/bookish/bibliographer/internal/resilience"
)

// ErrNoResult means the search page rendered without any product ASIN.
var ErrNoResult = eris.New("amazon: no asin in search results")

// asinPattern captures the first product container's ASIN attribute.
var asinPattern = regexp.MustCompile(`<div[^>]*data-asin="([^"]+)"[^>]`)

// browserHeaders make the request indistinguishable from a normal page
// load. Accept-Encoding is deliberately absent so the transport can
// negotiate and transparently decode gzip itself.
var browserHeaders = map[string]string{
	"User-Agent":                "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.5",
	"DNT":                       "1",
	"Upgrade-Insecure-Requests": "1",
}

// Client defines the Amazon scrape operations.
type Client interface {
	// SearchASIN fetches the search results for a plus-joined term and
	// returns the first ASIN found on the page.
	SearchASIN(ctx context.Context, plusTerm string) (string, error)
}

// PlusTerm collapses a free-text search into the plus-joined form used
// both in the search URL and as the cache key.
func PlusTerm(term string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(term)), "+")
}

// CoverURL returns the public product-image URL for an ASIN.
func CoverURL(asin string) string {
	return "https://images-na.ssl-images-amazon.com/images/P/" + asin + ".jpg"
}

// Option configures the Amazon client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the politeness limit, in requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an Amazon search client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://www.amazon.com",
		http:    &http.Client{Timeout: 20 * time.Second},
		limiter: rate.NewLimiter(1, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) SearchASIN(ctx context.Context, plusTerm string) (string, error) {
	// The plus separators are literal query syntax; they must not be
	// percent-encoded.
	reqURL := c.baseURL + "/s?k=" + plusTerm

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "amazon: create search request")
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}

	body, status, err := c.retryDo(ctx, req)
	if err != nil {
		return "", eris.Wrapf(err, "amazon: search %q", plusTerm)
	}
	if status != http.StatusOK {
		return "", eris.Errorf("amazon: search %q: unexpected status %d", plusTerm, status)
	}

	match := asinPattern.FindSubmatch(body)
	if match == nil {
		return "", ErrNoResult
	}
	asin := strings.TrimSpace(string(match[1]))
	if asin == "" {
		return "", ErrNoResult
	}
	return asin, nil
}

func (c *httpClient) retryDo(ctx context.Context, req *http.Request) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 2 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, err
		}

		resp, err := c.http.Do(req.Clone(ctx))
		if err != nil {
			lastErr = resilience.Transient(err, 0)
		} else {
			body, readErr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if readErr != nil {
				return nil, resp.StatusCode, eris.Wrap(readErr, "amazon: read response body")
			}
			if !resilience.IsTransientStatus(resp.StatusCode) {
				return body, resp.StatusCode, nil
			}
			lastErr = resilience.Transient(eris.Errorf("amazon: status %d", resp.StatusCode), resp.StatusCode)
		}

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, 0, lastErr
}
