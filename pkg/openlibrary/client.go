// Package openlibrary provides a client for the OpenLibrary books API.
package openlibrary

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

// ErrNotFound means OpenLibrary has no edition for the ISBN.
var ErrNotFound = eris.New("openlibrary: no edition for isbn")

const userAgent = "bibliographer-bot/1.0"

// Client defines the OpenLibrary operations.
type Client interface {
	// EditionOLID returns the bare OpenLibrary edition ID ("OL…M", without
	// the "/books/" prefix) for a normalized ISBN.
	EditionOLID(ctx context.Context, isbn string) (string, error)
}

// Option configures the OpenLibrary client.
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

// NewClient creates an OpenLibrary client. Requests are limited to one per
// second, the documented politeness ceiling for anonymous use.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://openlibrary.org",
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(1, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) EditionOLID(ctx context.Context, isbn string) (string, error) {
	bibkey := "ISBN:" + isbn

	q := url.Values{}
	q.Set("bibkeys", bibkey)
	q.Set("format", "json")
	q.Set("jscmd", "data")
	reqURL := fmt.Sprintf("%s/api/books?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "openlibrary: create request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	body, status, err := c.retryDo(ctx, req)
	if err != nil {
		return "", eris.Wrapf(err, "openlibrary: lookup isbn %s", isbn)
	}
	if status != http.StatusOK {
		return "", eris.Errorf("openlibrary: unexpected status %d: %s", status, string(body))
	}

	var payload map[string]struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", eris.Wrap(err, "openlibrary: unmarshal response")
	}

	entry, ok := payload[bibkey]
	if !ok || entry.Key == "" {
		return "", ErrNotFound
	}
	return strings.TrimPrefix(entry.Key, "/books/"), nil
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
				return nil, resp.StatusCode, eris.Wrap(readErr, "openlibrary: read response body")
			}
			if !resilience.IsTransientStatus(resp.StatusCode) {
				return body, resp.StatusCode, nil
			}
			lastErr = resilience.Transient(eris.Errorf("openlibrary: status %d", resp.StatusCode), resp.StatusCode)
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
