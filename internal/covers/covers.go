// Package covers downloads cover images and manages the cover file inside
// a book's output directory. Each directory holds at most one cover.<ext>;
// the extension follows the content type the server reported.
package covers

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bookish/bibliographer/internal/resilience"
)

// ErrNotImage reports that the URL served something other than an image,
// or an image type we have no file name for.
var ErrNotImage = eris.New("covers: response is not a usable image")

// ErrPlaceholder reports an image too small to be a real cover. Amazon
// serves a 43-byte transparent GIF for ASINs with no product image.
var ErrPlaceholder = eris.New("covers: image is a placeholder")

// minImageBytes is the smallest plausible cover. Anything under this is
// treated as a placeholder rather than saved.
const minImageBytes = 1000

// coverNames maps content-type prefixes to the file written in the book
// directory. Order matters only for documentation; lookup is by prefix.
var coverNames = []struct {
	prefix   string
	filename string
}{
	{"image/jpeg", "cover.jpg"},
	{"image/png", "cover.png"},
	{"image/gif", "cover.gif"},
	{"image/webp", "cover.webp"},
}

// coverExts are the extensions Find recognizes as an existing cover.
var coverExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// Data is a downloaded cover image ready to be written to disk.
type Data struct {
	Bytes       []byte
	ContentType string
	Filename    string
}

// Fetcher downloads cover images with per-host politeness limits.
type Fetcher struct {
	client   *http.Client
	limiters map[string]*rate.Limiter
	retry    resilience.RetryConfig
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) { f.client = hc }
}

// WithHostRateLimit sets requests-per-second for a single host.
func WithHostRateLimit(host string, rps float64) Option {
	return func(f *Fetcher) { f.limiters[host] = rate.NewLimiter(rate.Limit(rps), 1) }
}

// NewFetcher returns a Fetcher with a 10s timeout and a 1 req/s limit on
// the Amazon image host, which bans aggressive clients.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{Timeout: 10 * time.Second},
		limiters: map[string]*rate.Limiter{
			"images-na.ssl-images-amazon.com": rate.NewLimiter(1, 1),
		},
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			OnRetry:        resilience.LogRetries("covers", "download"),
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) limiterFor(rawURL string) *rate.Limiter {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return f.limiters[u.Host]
}

// Download fetches a cover image. It rejects non-image responses and
// placeholder-sized images so callers can fall through to the next source.
func (f *Fetcher) Download(ctx context.Context, rawURL string) (*Data, error) {
	return resilience.DoVal(ctx, f.retry, func(ctx context.Context) (*Data, error) {
		return f.download(ctx, rawURL)
	})
}

func (f *Fetcher) download(ctx context.Context, rawURL string) (*Data, error) {
	if lim := f.limiterFor(rawURL); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "covers: rate limiter wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "covers: build request for %s", rawURL)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, resilience.Transient(eris.Wrapf(err, "covers: get %s", rawURL), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	zap.L().Debug("cover response",
		zap.String("url", rawURL),
		zap.Int("status", resp.StatusCode),
		zap.String("content_type", resp.Header.Get("Content-Type")),
	)

	if resilience.IsTransientStatus(resp.StatusCode) {
		return nil, resilience.Transient(eris.Errorf("covers: http %d from %s", resp.StatusCode, rawURL), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("covers: http %d from %s", resp.StatusCode, rawURL)
	}

	contentType := resp.Header.Get("Content-Type")
	filename := ""
	for _, cn := range coverNames {
		if strings.HasPrefix(contentType, cn.prefix) {
			filename = cn.filename
			break
		}
	}
	if filename == "" {
		return nil, eris.Wrapf(ErrNotImage, "content type %q from %s", contentType, rawURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.Transient(eris.Wrapf(err, "covers: read %s", rawURL), 0)
	}
	if len(body) < minImageBytes {
		return nil, eris.Wrapf(ErrPlaceholder, "%d bytes from %s", len(body), rawURL)
	}

	return &Data{Bytes: body, ContentType: contentType, Filename: filename}, nil
}

// FromBytes wraps raw image bytes as cover data, sniffing the content
// type. Used when the cover comes from a local file instead of a URL.
func FromBytes(b []byte) (*Data, error) {
	contentType := http.DetectContentType(b)
	for _, cn := range coverNames {
		if strings.HasPrefix(contentType, cn.prefix) {
			if len(b) < minImageBytes {
				return nil, eris.Wrapf(ErrPlaceholder, "%d bytes", len(b))
			}
			return &Data{Bytes: b, ContentType: contentType, Filename: cn.filename}, nil
		}
	}
	return nil, eris.Wrapf(ErrNotImage, "content type %q", contentType)
}

// Find returns the path of the cover file in dir, or "" if none exists.
// Directory entries are scanned in name order, so multiple covers (which
// Write never leaves behind) resolve deterministically.
func Find(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", eris.Wrapf(err, "covers: read dir %s", dir)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if coverExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", nil
}

// Write removes any existing cover in dir and writes d under its
// content-type-derived name. Returns the written path.
func Write(dir string, d *Data) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "covers: create dir %s", dir)
	}
	for {
		existing, err := Find(dir)
		if err != nil {
			return "", err
		}
		if existing == "" {
			break
		}
		if err := os.Remove(existing); err != nil {
			return "", eris.Wrapf(err, "covers: remove stale cover %s", existing)
		}
	}

	path := filepath.Join(dir, d.Filename)
	if err := os.WriteFile(path, d.Bytes, 0o644); err != nil {
		return "", eris.Wrapf(err, "covers: write %s", path)
	}
	return path, nil
}
