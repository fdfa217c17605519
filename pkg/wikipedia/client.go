// Package wikipedia checks article existence on English Wikipedia.
package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/bookish/bibliographer/internal/resilience"
)

// ErrMissing means Wikipedia affirmatively has no article by that name.
var ErrMissing = eris.New("wikipedia: no such article")

const userAgent = "bibliographer-bot/1.0"

// Page is an existing Wikipedia article. Title is the canonical page
// title after any normalization Wikipedia applied to the query.
type Page struct {
	Title string
	URL   string
}

// Client defines the Wikipedia operations.
type Client interface {
	// Lookup resolves an article name to its canonical page, or ErrMissing
	// when no such article exists.
	Lookup(ctx context.Context, article string) (*Page, error)
}

// Option configures the Wikipedia client.
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

// NewClient creates a Wikipedia client, limited to one request per second.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://en.wikipedia.org",
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(1, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type queryPayload struct {
	Query struct {
		Pages map[string]struct {
			Title   string  `json:"title"`
			Missing *string `json:"missing"`
		} `json:"pages"`
	} `json:"query"`
}

func (c *httpClient) Lookup(ctx context.Context, article string) (*Page, error) {
	q := url.Values{}
	q.Set("action", "query")
	q.Set("titles", article)
	q.Set("format", "json")
	q.Set("prop", "info")
	reqURL := fmt.Sprintf("%s/w/api.php?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "wikipedia: create request")
	}
	req.Header.Set("User-Agent", userAgent)

	body, status, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrapf(err, "wikipedia: lookup %q", article)
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("wikipedia: unexpected status %d: %s", status, string(body))
	}

	var payload queryPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, eris.Wrap(err, "wikipedia: unmarshal response")
	}

	// A single-title query yields exactly one page entry; a "missing"
	// marker on it means the article does not exist.
	for _, page := range payload.Query.Pages {
		if page.Missing != nil {
			continue
		}
		return &Page{
			Title: page.Title,
			URL:   articleURL(page.Title),
		}, nil
	}
	return nil, ErrMissing
}

// articleURL builds the canonical page URL; links always point at the
// production site no matter which endpoint answered the query.
func articleURL(title string) string {
	return "https://en.wikipedia.org/wiki/" + strings.ReplaceAll(title, " ", "_")
}

func (c *httpClient) retryDo(ctx context.Context, req *http.Request) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := time.Second

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
				return nil, resp.StatusCode, eris.Wrap(readErr, "wikipedia: read response body")
			}
			if !resilience.IsTransientStatus(resp.StatusCode) {
				return body, resp.StatusCode, nil
			}
			lastErr = resilience.Transient(eris.Errorf("wikipedia: status %d", resp.StatusCode), resp.StatusCode)
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
