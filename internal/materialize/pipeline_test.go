package materialize

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookish/bibliographer/internal/catalog"
	"github.com/bookish/bibliographer/internal/covers"
	"github.com/bookish/bibliographer/internal/enrich"
	"github.com/bookish/bibliographer/internal/model"
	"github.com/bookish/bibliographer/internal/resolve"
	"github.com/bookish/bibliographer/pkg/amazon"
	"github.com/bookish/bibliographer/pkg/googlebooks"
	"github.com/bookish/bibliographer/pkg/openlibrary"
	"github.com/bookish/bibliographer/pkg/wikipedia"
)

// Pipeline fakes cover the full client surface, so a raw library record
// can resolve end to end without leaving the process.

type fakeGBooks struct {
	searchHits map[string]*googlebooks.Volume // keyed by title
	err        error
	calls      int
}

func (f *fakeGBooks) Volume(context.Context, string) (*googlebooks.Volume, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return nil, googlebooks.ErrNotFound
}

func (f *fakeGBooks) Search(_ context.Context, title, _ string) (*googlebooks.Volume, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.searchHits[title]; ok {
		return v, nil
	}
	return nil, googlebooks.ErrNotFound
}

type fakeOpenLibrary struct {
	olids map[string]string
	calls int
}

func (f *fakeOpenLibrary) EditionOLID(_ context.Context, isbn string) (string, error) {
	f.calls++
	if olid, ok := f.olids[isbn]; ok {
		return olid, nil
	}
	return "", openlibrary.ErrNotFound
}

type fakeWikipedia struct {
	pages map[string]*wikipedia.Page
	calls int
}

func (f *fakeWikipedia) Lookup(_ context.Context, article string) (*wikipedia.Page, error) {
	f.calls++
	if p, ok := f.pages[article]; ok {
		return p, nil
	}
	return nil, wikipedia.ErrMissing
}

type fakeAmazon struct {
	asins map[string]string // keyed by plus-joined term
	calls int
}

func (f *fakeAmazon) SearchASIN(_ context.Context, plusTerm string) (string, error) {
	f.calls++
	if asin, ok := f.asins[plusTerm]; ok {
		return asin, nil
	}
	return "", amazon.ErrNoResult
}

type pipeline struct {
	out     string
	cat     *catalog.Catalog
	engine  *enrich.Engine
	mat     *Materializer
	gbooks  *fakeGBooks
	openlib *fakeOpenLibrary
	wiki    *fakeWikipedia
	amazon  *fakeAmazon
	urls    []string // cover URLs requested, in order
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	p := &pipeline{
		out: t.TempDir(),
		cat: catalog.New(t.TempDir()),
		gbooks: &fakeGBooks{searchHits: map[string]*googlebooks.Volume{
			"Getting Things Done": {
				ID:          "zpWhDQAAQBAJ",
				Title:       "Getting Things Done",
				Authors:     []string{"David Allen"},
				ISBN13:      "9780143126560",
				PublishDate: "2015-03-17",
				ImageURL:    "https://books.google.com/books/content?id=zpWhDQAAQBAJ",
			},
		}},
		openlib: &fakeOpenLibrary{olids: map[string]string{"9780143126560": "OL25617971M"}},
		wiki: &fakeWikipedia{pages: map[string]*wikipedia.Page{
			"Getting Things Done (book)": {
				Title: "Getting Things Done (book)",
				URL:   "https://en.wikipedia.org/wiki/Getting_Things_Done_(book)",
			},
			"David Allen": {
				Title: "David Allen (author)",
				URL:   "https://en.wikipedia.org/wiki/David_Allen_(author)",
			},
		}},
		amazon: &fakeAmazon{asins: map[string]string{"Getting+Things+Done+David+Allen": "0142000280"}},
	}

	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		p.urls = append(p.urls, r.URL.String())
		return imageResponse(coverBytes), nil
	})
	fetcher := covers.NewFetcher(covers.WithHTTPClient(&http.Client{Transport: rt}))
	resolvers := resolve.New(p.cat, resolve.Clients{
		GoogleBooks: p.gbooks,
		OpenLibrary: p.openlib,
		Wikipedia:   p.wiki,
		Amazon:      p.amazon,
		Covers:      fetcher,
	})
	p.engine = enrich.New(p.cat, resolvers)
	p.mat = New(p.cat, resolvers, p.out)
	return p
}

func (p *pipeline) clientCalls() int {
	return p.gbooks.calls + p.openlib.calls + p.wiki.calls + p.amazon.calls
}

func TestPipeline_RawRecordToBookDirectory(t *testing.T) {
	p := newPipeline(t)
	require.NoError(t, p.cat.AudibleLibrary.MergeAndSave(map[string]model.LibraryBook{
		"B0030CVQ0S": {Title: "Getting Things Done", Authors: []string{"David Allen"}},
	}))

	ctx := context.Background()
	stats, err := p.engine.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Records)
	assert.Equal(t, 6, stats.Filled, "slug, volume, isbn, olid, asin, wikipedia")
	assert.Zero(t, stats.Failed)

	rep, err := p.mat.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.BooksWritten)
	assert.Empty(t, rep.CoversMissing)
	assert.Empty(t, rep.Collisions)

	bookDir := filepath.Join(p.out, "getting-things-done")
	docPath := filepath.Join(bookDir, "bibliographer.json")
	firstDoc, err := os.ReadFile(docPath)
	require.NoError(t, err)

	var doc model.BookDoc
	require.NoError(t, json.Unmarshal(firstDoc, &doc))
	assert.Equal(t, "9780143126560", doc.ISBN)
	assert.Equal(t, "2015-03-17", doc.Published)
	assert.Equal(t, "https://openlibrary.org/books/OL25617971M", doc.Links.Metadata.OpenLibrary)
	assert.Equal(t, "https://books.google.com/books?id=zpWhDQAAQBAJ", doc.Links.Metadata.GoogleBooks)
	assert.Equal(t, "https://www.amazon.com/dp/0142000280", doc.Links.Affiliate.Amazon)

	firstCover, err := os.ReadFile(filepath.Join(bookDir, "cover.jpg"))
	require.NoError(t, err)
	assert.Equal(t, coverBytes, firstCover)
	assert.FileExists(t, filepath.Join(bookDir, "index.md"))

	// One search located the volume; every later consumer hit the cache.
	assert.Equal(t, 1, p.gbooks.calls)
	assert.Equal(t, 1, p.openlib.calls)
	assert.Equal(t, 2, p.wiki.calls, "(book) article plus author fan-out")
	assert.Equal(t, 1, p.amazon.calls)
	require.Len(t, p.urls, 1)

	firstEnriched, err := os.ReadFile(p.cat.AudibleEnriched.Path())
	require.NoError(t, err)

	// Second pass with the volume service down: warm caches keep it dark.
	p.gbooks.err = eris.New("googlebooks outage")
	calls := p.clientCalls()

	stats, err = p.engine.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Records)
	assert.Zero(t, stats.Filled)
	assert.Zero(t, stats.Failed)

	rep, err = p.mat.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.BooksWritten)

	secondDoc, err := os.ReadFile(docPath)
	require.NoError(t, err)
	assert.Equal(t, string(firstDoc), string(secondDoc))

	secondEnriched, err := os.ReadFile(p.cat.AudibleEnriched.Path())
	require.NoError(t, err)
	assert.Equal(t, string(firstEnriched), string(secondEnriched))

	secondCover, err := os.ReadFile(filepath.Join(bookDir, "cover.jpg"))
	require.NoError(t, err)
	assert.Equal(t, firstCover, secondCover)

	assert.Equal(t, calls, p.clientCalls(), "settled records make no client calls")
	assert.Len(t, p.urls, 1, "an existing cover is never refetched")
}
