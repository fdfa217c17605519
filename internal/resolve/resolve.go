// Package resolve implements cache-or-fetch lookups across the external
// identifier spaces. Each lookup consults its JSON map first, makes at
// most one live call per key, and stores only successful answers: a
// failed or empty lookup is never cached, so later runs retry it.
package resolve

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bookish/bibliographer/internal/catalog"
	"github.com/bookish/bibliographer/internal/covers"
	"github.com/bookish/bibliographer/internal/isbn"
	"github.com/bookish/bibliographer/internal/model"
	"github.com/bookish/bibliographer/pkg/amazon"
	"github.com/bookish/bibliographer/pkg/googlebooks"
	"github.com/bookish/bibliographer/pkg/openlibrary"
	"github.com/bookish/bibliographer/pkg/wikipedia"
)

// ErrNoMatch means the external source affirmatively had no answer for
// the key. Callers treat it as "attempted, still unresolved"; it is
// never written to a cache file.
var ErrNoMatch = eris.New("resolve: no match")

// Clients bundles the external service clients the resolvers call.
type Clients struct {
	GoogleBooks googlebooks.Client
	OpenLibrary openlibrary.Client
	Wikipedia   wikipedia.Client
	Amazon      amazon.Client
	Covers      *covers.Fetcher
}

// Resolvers answers identifier lookups backed by the catalog's maps.
type Resolvers struct {
	cat     *catalog.Catalog
	clients Clients
}

// New creates the resolver set over cat.
func New(cat *catalog.Catalog, clients Clients) *Resolvers {
	return &Resolvers{cat: cat, clients: clients}
}

// ISBNToOLID resolves an ISBN (punctuation tolerated) to a bare
// OpenLibrary edition ID like "OL24718136M".
func (r *Resolvers) ISBNToOLID(ctx context.Context, rawISBN string, force bool) (string, error) {
	key := isbn.Normalize(rawISBN)
	if key == "" {
		return "", eris.New("resolve: empty isbn")
	}

	if !force {
		cachedMap, err := r.cat.ISBNToOLID.Load()
		if err != nil {
			return "", err
		}
		if olid, ok := cachedMap[key]; ok {
			return olid, nil
		}
	}

	olid, err := r.clients.OpenLibrary.EditionOLID(ctx, key)
	if err != nil {
		if errors.Is(err, openlibrary.ErrNotFound) {
			return "", eris.Wrapf(ErrNoMatch, "isbn %s", key)
		}
		return "", err
	}

	if err := r.cat.ISBNToOLID.MergeAndSave(map[string]string{key: olid}); err != nil {
		return "", err
	}
	return olid, nil
}

// VolumeByID resolves a Google Books volume ID to its normalized volume
// record.
func (r *Resolvers) VolumeByID(ctx context.Context, volumeID string, force bool) (*model.Volume, error) {
	if volumeID == "" {
		return nil, eris.New("resolve: empty volume id")
	}

	if !force {
		cachedMap, err := r.cat.GBooksVolumes.Load()
		if err != nil {
			return nil, err
		}
		if vol, ok := cachedMap[volumeID]; ok {
			return &vol, nil
		}
	}

	fetched, err := r.clients.GoogleBooks.Volume(ctx, volumeID)
	if err != nil {
		if errors.Is(err, googlebooks.ErrNotFound) {
			return nil, eris.Wrapf(ErrNoMatch, "volume %s", volumeID)
		}
		return nil, err
	}

	vol := volumeFromClient(fetched)
	if err := r.cat.GBooksVolumes.MergeAndSave(map[string]model.Volume{vol.ID: vol}); err != nil {
		return nil, err
	}
	return &vol, nil
}

// SearchVolume resolves a title/author pair to the first matching Google
// Books volume. The fetched volume lands in the volumes cache; the
// search itself has no cache of its own, so callers persist the volume
// ID they get back.
func (r *Resolvers) SearchVolume(ctx context.Context, title, author string) (*model.Volume, error) {
	fetched, err := r.clients.GoogleBooks.Search(ctx, title, author)
	if err != nil {
		if errors.Is(err, googlebooks.ErrNotFound) {
			return nil, eris.Wrapf(ErrNoMatch, "search %q/%q", title, author)
		}
		return nil, err
	}

	vol := volumeFromClient(fetched)
	if err := r.cat.GBooksVolumes.MergeAndSave(map[string]model.Volume{vol.ID: vol}); err != nil {
		return nil, err
	}
	return &vol, nil
}

// VolumeIDForASIN resolves a source-native ASIN to a Google Books volume
// ID, searching by title/author on a cache miss.
func (r *Resolvers) VolumeIDForASIN(ctx context.Context, asin, title, author string, force bool) (string, error) {
	if asin == "" {
		return "", eris.New("resolve: empty asin")
	}

	if !force {
		cachedMap, err := r.cat.ASINToVolume.Load()
		if err != nil {
			return "", err
		}
		if volumeID, ok := cachedMap[asin]; ok {
			return volumeID, nil
		}
	}

	vol, err := r.SearchVolume(ctx, title, author)
	if err != nil {
		return "", err
	}

	if err := r.cat.ASINToVolume.MergeAndSave(map[string]string{asin: vol.ID}); err != nil {
		return "", err
	}
	return vol.ID, nil
}

// ASINBySearch resolves a free-text search term to the first ASIN on the
// Amazon results page. Terms are normalized to their plus-joined form,
// which is also the cache key.
func (r *Resolvers) ASINBySearch(ctx context.Context, term string, force bool) (string, error) {
	key := amazon.PlusTerm(term)
	if key == "" {
		return "", eris.New("resolve: empty search term")
	}

	if !force {
		cachedMap, err := r.cat.SearchToASIN.Load()
		if err != nil {
			return "", err
		}
		if asin, ok := cachedMap[key]; ok {
			return asin, nil
		}
	}

	asin, err := r.clients.Amazon.SearchASIN(ctx, key)
	if err != nil {
		if errors.Is(err, amazon.ErrNoResult) {
			return "", eris.Wrapf(ErrNoMatch, "term %s", key)
		}
		return "", err
	}

	if err := r.cat.SearchToASIN.MergeAndSave(map[string]string{key: asin}); err != nil {
		return "", err
	}
	return asin, nil
}

// WikipediaKey builds the composite cache key for a title/authors lookup.
func WikipediaKey(title string, authors []string) string {
	return "title=" + title + ";authors=" + strings.Join(authors, "|")
}

// WikipediaPages resolves the set of relevant Wikipedia pages for a book:
// the first existing of "<title> (book)" and the bare title, plus every
// author with a page. The result maps normalized page titles to canonical
// URLs; pages that do not exist are simply absent. An empty result is
// returned but not cached, so later runs check again.
func (r *Resolvers) WikipediaPages(ctx context.Context, title string, authors []string, force bool) (map[string]string, error) {
	key := WikipediaKey(title, authors)

	if !force {
		cachedMap, err := r.cat.WikipediaPages.Load()
		if err != nil {
			return nil, err
		}
		if pages, ok := cachedMap[key]; ok {
			return pages, nil
		}
	}

	pages := make(map[string]string)

	for _, candidate := range []string{title + " (book)", title} {
		page, err := r.lookupArticle(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if page != nil {
			pages[page.Title] = page.URL
			break
		}
	}
	for _, author := range authors {
		page, err := r.lookupArticle(ctx, author)
		if err != nil {
			return nil, err
		}
		if page != nil {
			pages[page.Title] = page.URL
		}
	}

	if len(pages) == 0 {
		return pages, nil
	}
	if err := r.cat.WikipediaPages.MergeAndSave(map[string]map[string]string{key: pages}); err != nil {
		return nil, err
	}
	return pages, nil
}

// lookupArticle maps a missing article to (nil, nil) so the fan-out can
// continue; any other failure aborts the whole lookup uncached.
func (r *Resolvers) lookupArticle(ctx context.Context, article string) (*wikipedia.Page, error) {
	page, err := r.clients.Wikipedia.Lookup(ctx, article)
	if err != nil {
		if errors.Is(err, wikipedia.ErrMissing) {
			zap.L().Debug("wikipedia article missing", zap.String("article", article))
			return nil, nil
		}
		return nil, err
	}
	return page, nil
}

// Cover fetches cover bytes, preferring the Google Books volume image and
// falling back to the Amazon product image for fallbackASIN. The cover
// file on disk is this lookup's cache; callers check it before calling.
func (r *Resolvers) Cover(ctx context.Context, volumeID, fallbackASIN string) (*covers.Data, error) {
	if volumeID != "" {
		vol, err := r.VolumeByID(ctx, volumeID, false)
		switch {
		case catalog.IsCorrupt(err):
			return nil, err
		case err != nil:
			zap.L().Debug("volume lookup failed, trying fallback",
				zap.String("volume_id", volumeID),
				zap.Error(err),
			)
		case vol.ImageURL != "":
			data, err := r.clients.Covers.Download(ctx, vol.ImageURL)
			if err == nil {
				return data, nil
			}
			zap.L().Debug("volume cover failed, trying fallback",
				zap.String("volume_id", volumeID),
				zap.Error(err),
			)
		}
	}

	if fallbackASIN != "" {
		data, err := r.clients.Covers.Download(ctx, amazon.CoverURL(fallbackASIN))
		if err == nil {
			return data, nil
		}
		zap.L().Debug("amazon cover failed",
			zap.String("asin", fallbackASIN),
			zap.Error(err),
		)
	}

	return nil, eris.Wrap(ErrNoMatch, "no cover source succeeded")
}

func volumeFromClient(v *googlebooks.Volume) model.Volume {
	return model.Volume{
		ID:          v.ID,
		Title:       v.Title,
		Authors:     v.Authors,
		ISBN13:      v.ISBN13,
		PublishDate: v.PublishDate,
		ImageURL:    v.ImageURL,
	}
}
