// Package googlebooks provides a client for the Google Books volumes API.
package googlebooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/bookish/bibliographer/internal/resilience"
)

// ErrNotFound means the API affirmatively had no matching volume.
var ErrNotFound = eris.New("googlebooks: no matching volume")

// Volume is the subset of a Google Books volume consumed downstream.
// ImageURL holds only the largest cover the API offered.
type Volume struct {
	ID          string
	Title       string
	Authors     []string
	ISBN13      string
	PublishDate string
	ImageURL    string
}

// Client defines the Google Books operations.
type Client interface {
	// Volume fetches a single volume by its volume ID.
	Volume(ctx context.Context, volumeID string) (*Volume, error)
	// Search returns the first volume matching an intitle/inauthor query.
	Search(ctx context.Context, title, author string) (*Volume, error)
}

// Option configures the Google Books client.
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
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Google Books client. The API key may be empty for
// low-volume anonymous use.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://www.googleapis.com/books/v1",
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// volumeFields limits responses to exactly what the volume cache stores.
const volumeFields = "id,volumeInfo(title,authors,publishedDate,imageLinks,industryIdentifiers)"

// imageSizes is the cover preference order, largest first.
var imageSizes = []string{"extraLarge", "large", "medium", "small", "thumbnail", "smallThumbnail"}

type volumePayload struct {
	ID         string `json:"id"`
	VolumeInfo struct {
		Title               string            `json:"title"`
		Authors             []string          `json:"authors"`
		PublishedDate       string            `json:"publishedDate"`
		ImageLinks          map[string]string `json:"imageLinks"`
		IndustryIdentifiers []struct {
			Type       string `json:"type"`
			Identifier string `json:"identifier"`
		} `json:"industryIdentifiers"`
	} `json:"volumeInfo"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *httpClient) Volume(ctx context.Context, volumeID string) (*Volume, error) {
	q := url.Values{}
	q.Set("fields", volumeFields)
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	reqURL := fmt.Sprintf("%s/volumes/%s?%s", c.baseURL, url.PathEscape(volumeID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "googlebooks: create volume request")
	}

	body, status, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "googlebooks: fetch volume")
	}
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("googlebooks: volume %s: unexpected status %d: %s", volumeID, status, string(body))
	}

	var payload volumePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, eris.Wrap(err, "googlebooks: unmarshal volume")
	}
	if payload.Error != nil {
		return nil, ErrNotFound
	}
	return normalize(payload), nil
}

func (c *httpClient) Search(ctx context.Context, title, author string) (*Volume, error) {
	q := url.Values{}
	q.Set("q", fmt.Sprintf("intitle:%s inauthor:%s", title, author))
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	reqURL := fmt.Sprintf("%s/volumes?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "googlebooks: create search request")
	}

	body, status, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "googlebooks: search")
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("googlebooks: search: unexpected status %d: %s", status, string(body))
	}

	var payload struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, eris.Wrap(err, "googlebooks: unmarshal search response")
	}
	if len(payload.Items) == 0 {
		return nil, ErrNotFound
	}

	// First candidate wins; the volume fetch fills in the normalized fields.
	return c.Volume(ctx, payload.Items[0].ID)
}

func normalize(p volumePayload) *Volume {
	v := &Volume{
		ID:          p.ID,
		Title:       p.VolumeInfo.Title,
		Authors:     p.VolumeInfo.Authors,
		PublishDate: p.VolumeInfo.PublishedDate,
	}
	for _, ident := range p.VolumeInfo.IndustryIdentifiers {
		if ident.Type == "ISBN_13" {
			v.ISBN13 = ident.Identifier
			break
		}
	}
	for _, size := range imageSizes {
		if u := p.VolumeInfo.ImageLinks[size]; u != "" {
			v.ImageURL = u
			break
		}
	}
	return v
}

// retryDo executes the request with bounded exponential backoff, retrying
// request-level network failures and transient HTTP statuses. The last
// error is marked transient so callers can classify it.
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
				return nil, resp.StatusCode, eris.Wrap(readErr, "googlebooks: read response body")
			}
			if !resilience.IsTransientStatus(resp.StatusCode) {
				return body, resp.StatusCode, nil
			}
			lastErr = resilience.Transient(eris.Errorf("googlebooks: status %d", resp.StatusCode), resp.StatusCode)
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
