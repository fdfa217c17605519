// Package raindrop provides a client for the Raindrop.io highlights API.
package raindrop

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bookish/bibliographer/internal/model"
	"github.com/bookish/bibliographer/internal/resilience"
)

// ErrUnauthorized means the API token was rejected.
var ErrUnauthorized = eris.New("raindrop: api token rejected")

// perPage is the maximum page size the highlights endpoint allows.
const perPage = 50

// Client defines the Raindrop.io operations.
type Client interface {
	// Highlights returns every highlight in the account keyed by the
	// decimal form of its Raindrop ID.
	Highlights(ctx context.Context) (map[string]model.Highlight, error)
}

// Option configures the Raindrop client.
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

type httpClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Raindrop client with an API access token.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://api.raindrop.io/rest/v1",
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// highlightsPage carries Raindrop's result flag; false means the API
// rejected the request even though the status was 200.
type highlightsPage struct {
	Result bool              `json:"result"`
	Items  []model.Highlight `json:"items"`
}

func (c *httpClient) Highlights(ctx context.Context) (map[string]model.Highlight, error) {
	highlights := make(map[string]model.Highlight)

	// Raindrop pages are zero-based.
	for page := 0; ; page++ {
		zap.L().Debug("raindrop highlights page", zap.Int("page", page))

		items, err := c.highlightsPage(ctx, page)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return highlights, nil
		}
		for _, h := range items {
			highlights[h.Key()] = h
		}
		if len(items) < perPage {
			return highlights, nil
		}
	}
}

func (c *httpClient) highlightsPage(ctx context.Context, page int) ([]model.Highlight, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("perpage", strconv.Itoa(perPage))
	reqURL := fmt.Sprintf("%s/highlights?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "raindrop: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	body, status, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrapf(err, "raindrop: highlights page %d", page)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, eris.Wrapf(ErrUnauthorized, "status %d", status)
	case status != http.StatusOK:
		return nil, eris.Errorf("raindrop: unexpected status %d: %s", status, string(body))
	}

	var pg highlightsPage
	if err := json.Unmarshal(body, &pg); err != nil {
		return nil, eris.Wrap(err, "raindrop: unmarshal highlights page")
	}
	if !pg.Result {
		return nil, eris.Errorf("raindrop: api error on page %d: %s", page, string(body))
	}
	return pg.Items, nil
}

func (c *httpClient) retryDo(ctx context.Context, req *http.Request) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := c.http.Do(req.Clone(ctx))
		if err != nil {
			lastErr = resilience.Transient(err, 0)
		} else {
			body, readErr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if readErr != nil {
				return nil, resp.StatusCode, eris.Wrap(readErr, "raindrop: read response body")
			}
			if !resilience.IsTransientStatus(resp.StatusCode) {
				return body, resp.StatusCode, nil
			}
			lastErr = resilience.Transient(eris.Errorf("raindrop: status %d", resp.StatusCode), resp.StatusCode)
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
