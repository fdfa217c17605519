// Package enrich fills per-source enrichment records field by field.
//
// The engine is surgical: a field that is already set is never touched or
// re-resolved, a record with skip=true is frozen entirely, and a resolver
// failure leaves its field null for the next run instead of aborting the
// batch. Every record is persisted before the next one starts, so a crash
// mid-batch loses no progress.
package enrich

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bookish/bibliographer/internal/catalog"
	"github.com/bookish/bibliographer/internal/isbn"
	"github.com/bookish/bibliographer/internal/model"
	"github.com/bookish/bibliographer/internal/resolve"
	"github.com/bookish/bibliographer/internal/slug"
)

var errNoTitle = eris.New("enrich: record has no title")

// Stats summarizes one enrichment pass over a source.
type Stats struct {
	Records int // records visited (skip-frozen ones excluded)
	Filled  int // fields resolved this pass
	Failed  int // resolver failures that left a field null
}

func (s *Stats) add(other Stats) {
	s.Records += other.Records
	s.Filled += other.Filled
	s.Failed += other.Failed
}

// Engine drives enrichment for the library sources.
type Engine struct {
	cat       *catalog.Catalog
	resolvers *resolve.Resolvers
}

// New creates an enrichment engine over cat.
func New(cat *catalog.Catalog, resolvers *resolve.Resolvers) *Engine {
	return &Engine{cat: cat, resolvers: resolvers}
}

// All enriches every source in model.AllSources order.
func (e *Engine) All(ctx context.Context) (Stats, error) {
	var total Stats
	for _, src := range model.AllSources {
		stats, err := e.Source(ctx, src)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Source runs one enrichment pass over every record of src, in key order.
// Only file-integrity problems abort the pass; resolver failures are
// contained to the field they were resolving.
func (e *Engine) Source(ctx context.Context, src model.Source) (Stats, error) {
	var stats Stats

	library, err := e.cat.LoadLibrary(src)
	if err != nil {
		return stats, err
	}
	store := e.cat.EnrichedFor(src)
	enriched, err := store.Load()
	if err != nil {
		return stats, err
	}

	keys := make([]string, 0, len(library))
	for key := range library {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		record := library[key]
		current, exists := enriched[key]
		if current.Skip {
			zap.L().Debug("record frozen", zap.String("source", string(src)), zap.String("key", key))
			continue
		}
		stats.Records++

		updated, err := e.enrichRecord(ctx, src, key, record, current, &stats)
		if err != nil {
			return stats, err
		}

		if exists && updated.Equal(current) {
			continue
		}
		if err := store.MergeAndSave(map[string]model.Enrichment{key: updated}); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// asinKeyed reports whether src keys its library by an Amazon ASIN.
func asinKeyed(src model.Source) bool {
	return src == model.SourceAudible || src == model.SourceKindle
}

func firstAuthor(authors []string) string {
	if len(authors) == 0 {
		return ""
	}
	return authors[0]
}

// enrichRecord attempts each null field once. The returned error is
// non-nil only for failures that must abort the pass (corrupt cache
// files); everything else degrades to a logged null.
func (e *Engine) enrichRecord(ctx context.Context, src model.Source, key string, record model.LibraryBook, current model.Enrichment, stats *Stats) (model.Enrichment, error) {
	out := current

	if out.Slug == nil {
		if s := slug.Make(record.Title); s != "" {
			out.Slug = model.String(s)
			stats.Filled++
		}
	}

	// A source-reported ISBN wins over anything derived later.
	if out.ISBN == nil && record.ISBN != "" {
		out.ISBN = model.String(isbn.Normalize(record.ISBN))
		stats.Filled++
	}

	if out.GBooksVolID == nil {
		volumeID, err := e.resolveVolumeID(ctx, src, key, record)
		switch {
		case err == nil:
			out.GBooksVolID = model.String(volumeID)
			stats.Filled++
		case catalog.IsCorrupt(err):
			return out, err
		default:
			e.logFieldFailure(err, src, key, "gbooks_volid")
			stats.Failed++
		}
	}

	if out.ISBN == nil && out.GBooksVolID != nil {
		vol, err := e.resolvers.VolumeByID(ctx, *out.GBooksVolID, false)
		switch {
		case err == nil:
			if vol.ISBN13 != "" {
				out.ISBN = model.String(vol.ISBN13)
				stats.Filled++
			}
		case catalog.IsCorrupt(err):
			return out, err
		default:
			e.logFieldFailure(err, src, key, "isbn")
			stats.Failed++
		}
	}

	if out.OpenLibraryID == nil && out.ISBN != nil {
		olid, err := e.resolvers.ISBNToOLID(ctx, *out.ISBN, false)
		switch {
		case err == nil:
			out.OpenLibraryID = model.String(olid)
			stats.Filled++
		case catalog.IsCorrupt(err):
			return out, err
		default:
			e.logFieldFailure(err, src, key, "openlibrary_id")
			stats.Failed++
		}
	}

	if out.BookASIN == nil {
		asin, err := e.resolveBookASIN(ctx, record, out.ISBN)
		switch {
		case err == nil:
			out.BookASIN = model.String(asin)
			stats.Filled++
		case catalog.IsCorrupt(err):
			return out, err
		default:
			e.logFieldFailure(err, src, key, "book_asin")
			stats.Failed++
		}
	}

	if out.URLsWikipedia == nil {
		pages, err := e.resolvers.WikipediaPages(ctx, record.Title, record.Authors, false)
		switch {
		case err == nil:
			if len(pages) > 0 {
				out.URLsWikipedia = pages
				stats.Filled++
			}
		case catalog.IsCorrupt(err):
			return out, err
		default:
			e.logFieldFailure(err, src, key, "urls_wikipedia")
			stats.Failed++
		}
	}

	return out, nil
}

// resolveVolumeID picks the lookup path for the Google Books volume:
// ASIN-keyed sources go through the asin2gbv map, the rest search direct.
func (e *Engine) resolveVolumeID(ctx context.Context, src model.Source, key string, record model.LibraryBook) (string, error) {
	if record.Title == "" {
		return "", errNoTitle
	}
	if asinKeyed(src) {
		return e.resolvers.VolumeIDForASIN(ctx, key, record.Title, firstAuthor(record.Authors), false)
	}
	vol, err := e.resolvers.SearchVolume(ctx, record.Title, firstAuthor(record.Authors))
	if err != nil {
		return "", err
	}
	return vol.ID, nil
}

// resolveBookASIN searches Amazon by title and authors, retrying with the
// ISBN as the term when the text search finds nothing.
func (e *Engine) resolveBookASIN(ctx context.Context, record model.LibraryBook, isbnField *string) (string, error) {
	if record.Title == "" {
		return "", errNoTitle
	}

	term := record.Title
	if len(record.Authors) > 0 {
		term += " " + strings.Join(record.Authors, " ")
	}
	asin, err := e.resolvers.ASINBySearch(ctx, term, false)
	if err == nil {
		return asin, nil
	}
	if errors.Is(err, resolve.ErrNoMatch) && isbnField != nil {
		return e.resolvers.ASINBySearch(ctx, *isbnField, false)
	}
	return "", err
}

func (e *Engine) logFieldFailure(err error, src model.Source, key, field string) {
	if errors.Is(err, resolve.ErrNoMatch) || errors.Is(err, errNoTitle) {
		zap.L().Debug("no match",
			zap.String("source", string(src)),
			zap.String("key", key),
			zap.String("field", field),
		)
		return
	}
	zap.L().Warn("resolver failed, field stays null",
		zap.String("source", string(src)),
		zap.String("key", key),
		zap.String("field", field),
		zap.Error(err),
	)
}
