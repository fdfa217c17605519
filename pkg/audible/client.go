// Package audible provides a client for the Audible library API.
//
// The client takes an already-established access token; the interactive
// login and device-registration dance is out of scope here.
package audible

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bookish/bibliographer/internal/model"
	"github.com/bookish/bibliographer/internal/resilience"
)

// ErrUnauthorized means the access token was rejected. The caller should
// re-authenticate rather than retry.
var ErrUnauthorized = eris.New("audible: access token rejected")

// pageSize is the per-request item count. Real libraries rarely exceed a
// single page at this size.
const pageSize = 1000

// responseGroups selects the item fields the normalizer reads. The spaces
// after commas match what the service expects.
const responseGroups = "product_desc, media, product_attrs"

// Client defines the Audible operations.
type Client interface {
	// Library returns every book in the user's library keyed by ASIN.
	Library(ctx context.Context) (map[string]model.LibraryBook, error)
}

// Option configures the Audible client.
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

// NewClient creates an Audible client for the US marketplace.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://api.audible.com",
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// libraryItem is the subset of an Audible library entry the normalizer
// reads. ProductImages is keyed by pixel size ("500", "1024", ...).
type libraryItem struct {
	ASIN    string `json:"asin"`
	Title   string `json:"title"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	ProductImages map[string]string `json:"product_images"`
	PurchaseDate  string            `json:"purchase_date"`
}

type libraryPage struct {
	Items []libraryItem `json:"items"`
}

func (c *httpClient) Library(ctx context.Context) (map[string]model.LibraryBook, error) {
	books := make(map[string]model.LibraryBook)

	for page := 1; ; page++ {
		zap.L().Debug("audible library page", zap.Int("page", page), zap.Int("size", pageSize))

		items, err := c.libraryPage(ctx, page)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if item.ASIN == "" {
				continue
			}
			books[item.ASIN] = normalize(item)
		}
		if len(items) < pageSize {
			return books, nil
		}
	}
}

func (c *httpClient) libraryPage(ctx context.Context, page int) ([]libraryItem, error) {
	q := url.Values{}
	q.Set("num_results", strconv.Itoa(pageSize))
	q.Set("page", strconv.Itoa(page))
	q.Set("response_groups", responseGroups)
	reqURL := fmt.Sprintf("%s/1.0/library?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "audible: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	body, status, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrapf(err, "audible: library page %d", page)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, eris.Wrapf(ErrUnauthorized, "status %d", status)
	case status != http.StatusOK:
		return nil, eris.Errorf("audible: unexpected status %d: %s", status, string(body))
	}

	var payload libraryPage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, eris.Wrap(err, "audible: unmarshal library page")
	}
	return payload.Items, nil
}

var datePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// datePart reduces a timestamp like "2020-01-15T05:00:00Z" to its date.
func datePart(s string) string {
	if m := datePrefix.FindString(s); m != "" {
		return m
	}
	if len(s) > 10 {
		return s[:10]
	}
	return s
}

// largestImage picks the URL under the numerically largest size key.
func largestImage(images map[string]string) string {
	best := ""
	bestSize := -1
	for key, u := range images {
		size, err := strconv.Atoi(key)
		if err != nil {
			size = 0
		}
		if size > bestSize {
			bestSize, best = size, u
		}
	}
	return best
}

func normalize(item libraryItem) model.LibraryBook {
	book := model.LibraryBook{
		Title:       item.Title,
		AudibleASIN: item.ASIN,
		CoverURL:    largestImage(item.ProductImages),
	}
	for _, a := range item.Authors {
		book.Authors = append(book.Authors, a.Name)
	}
	if item.PurchaseDate != "" {
		book.PurchaseDate = datePart(item.PurchaseDate)
	}
	return book
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
				return nil, resp.StatusCode, eris.Wrap(readErr, "audible: read response body")
			}
			if !resilience.IsTransientStatus(resp.StatusCode) {
				return body, resp.StatusCode, nil
			}
			lastErr = resilience.Transient(eris.Errorf("audible: status %d", resp.StatusCode), resp.StatusCode)
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
