// Package librofm provides a client for the Libro.fm library API.
package librofm

import (
	"bytes"
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

// ErrUnauthorized means the credentials or token were rejected.
var ErrUnauthorized = eris.New("librofm: credentials rejected")

// userAgent mimics the Android app; the API refuses unknown agents.
const userAgent = "okhttp/3.14.9"

// Client defines the Libro.fm operations.
type Client interface {
	// Login exchanges a username and password for an access token.
	Login(ctx context.Context, username, password string) (string, error)

	// Library returns every audiobook in the account keyed by Libro.fm
	// ISBN. Call Login first, or construct the client with a token.
	Library(ctx context.Context) (map[string]model.LibraryBook, error)
}

// Option configures the Libro.fm client.
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

// WithToken seeds an already-established access token, skipping Login.
func WithToken(token string) Option {
	return func(c *httpClient) {
		c.token = token
	}
}

type httpClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Libro.fm client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://libro.fm",
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Login(ctx context.Context, username, password string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"grant_type": "password",
		"username":   username,
		"password":   password,
	})
	if err != nil {
		return "", eris.Wrap(err, "librofm: marshal login payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token", bytes.NewReader(payload))
	if err != nil {
		return "", eris.Wrap(err, "librofm: create login request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	body, status, err := c.retryDo(ctx, req)
	if err != nil {
		return "", eris.Wrap(err, "librofm: login")
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "", eris.Wrapf(ErrUnauthorized, "status %d", status)
	case status != http.StatusOK:
		return "", eris.Errorf("librofm: unexpected login status %d: %s", status, string(body))
	}

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", eris.Wrap(err, "librofm: unmarshal login response")
	}
	if resp.AccessToken == "" {
		return "", eris.New("librofm: login response had no access token")
	}
	c.token = resp.AccessToken
	return resp.AccessToken, nil
}

// audiobook is the subset of a Libro.fm library entry the normalizer reads.
type audiobook struct {
	ISBN        string   `json:"isbn"`
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	CoverURL    string   `json:"cover_url"`
	PublishDate string   `json:"publication_date"`
}

// libraryPage uses a pointer for Audiobooks so a response missing the key
// entirely is distinguishable from an empty page.
type libraryPage struct {
	Audiobooks *[]audiobook `json:"audiobooks"`
	TotalPages int          `json:"total_pages"`
}

func (c *httpClient) Library(ctx context.Context) (map[string]model.LibraryBook, error) {
	books := make(map[string]model.LibraryBook)

	for page := 1; ; page++ {
		zap.L().Debug("librofm library page", zap.Int("page", page))

		pg, err := c.libraryPage(ctx, page)
		if err != nil {
			return nil, err
		}
		for _, ab := range *pg.Audiobooks {
			if ab.ISBN == "" {
				continue
			}
			books[ab.ISBN] = model.LibraryBook{
				Title:     ab.Title,
				Authors:   ab.Authors,
				CoverURL:  ab.CoverURL,
				Published: ab.PublishDate,
				ISBN:      ab.ISBN,
			}
		}
		if page >= pg.TotalPages {
			return books, nil
		}
	}
}

func (c *httpClient) libraryPage(ctx context.Context, page int) (*libraryPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	reqURL := fmt.Sprintf("%s/api/v7/library?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "librofm: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", userAgent)

	body, status, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrapf(err, "librofm: library page %d", page)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, eris.Wrapf(ErrUnauthorized, "status %d", status)
	case status != http.StatusOK:
		return nil, eris.Errorf("librofm: unexpected status %d: %s", status, string(body))
	}

	var pg libraryPage
	if err := json.Unmarshal(body, &pg); err != nil {
		return nil, eris.Wrap(err, "librofm: unmarshal library page")
	}
	if pg.Audiobooks == nil {
		return nil, eris.Errorf("librofm: no audiobooks in page %d response", page)
	}
	return &pg, nil
}

func (c *httpClient) retryDo(ctx context.Context, req *http.Request) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		cloned := req.Clone(ctx)
		if req.GetBody != nil {
			// Rewind the login body so retried POSTs are not empty.
			body, err := req.GetBody()
			if err != nil {
				return nil, 0, eris.Wrap(err, "librofm: rewind request body")
			}
			cloned.Body = body
		}

		resp, err := c.http.Do(cloned)
		if err != nil {
			lastErr = resilience.Transient(err, 0)
		} else {
			body, readErr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if readErr != nil {
				return nil, resp.StatusCode, eris.Wrap(readErr, "librofm: read response body")
			}
			if !resilience.IsTransientStatus(resp.StatusCode) {
				return body, resp.StatusCode, nil
			}
			lastErr = resilience.Transient(eris.Errorf("librofm: status %d", resp.StatusCode), resp.StatusCode)
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
