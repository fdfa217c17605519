// Package materialize renders the output tree: one directory per slug
// holding bibliographer.json, a cover image, and an index.md scaffold.
// Directories are only ever added to. Fields a human populated in an
// existing document are preserved verbatim, and index.md is never
// rewritten once it exists.
package materialize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/bookish/bibliographer/internal/catalog"
	"github.com/bookish/bibliographer/internal/covers"
	"github.com/bookish/bibliographer/internal/model"
	"github.com/bookish/bibliographer/internal/resolve"
)

// SlugCollisionError reports slugs claimed by more than one record.
// Contested slugs are skipped during the run, so nothing was overwritten;
// the fix is a human one (set a slug or skip flag on one of the records).
type SlugCollisionError struct {
	// Collisions maps each contested slug to its claimants as
	// "source:key" strings, sorted.
	Collisions map[string][]string
}

func (e *SlugCollisionError) Error() string {
	slugs := make([]string, 0, len(e.Collisions))
	for slug := range e.Collisions {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	parts := make([]string, 0, len(slugs))
	for _, slug := range slugs {
		parts = append(parts, fmt.Sprintf("%q claimed by %s", slug, strings.Join(e.Collisions[slug], ", ")))
	}
	return "materialize: slug collisions: " + strings.Join(parts, "; ")
}

// Report summarizes one materialization run.
type Report struct {
	RunID         string
	BooksWritten  int
	CoversMissing []string // slugs left without a cover file
	Collisions    []string // contested slugs that were skipped
}

// Materializer writes book directories under a slug root from the
// library and enrichment stores.
type Materializer struct {
	cat       *catalog.Catalog
	resolvers *resolve.Resolvers
	root      string
}

// New creates a materializer writing under root.
func New(cat *catalog.Catalog, resolvers *resolve.Resolvers, root string) *Materializer {
	return &Materializer{cat: cat, resolvers: resolvers, root: root}
}

// All materializes every source. Slug collisions are detected up front
// across all sources; contested slugs are skipped and surface in the
// returned SlugCollisionError only after the rest of the batch completed.
func (m *Materializer) All(ctx context.Context) (*Report, error) {
	runID := uuid.NewString()
	log := zap.L().With(zap.String("run_id", runID))
	rep := &Report{RunID: runID}

	contested, err := m.contestedSlugs()
	if err != nil {
		return rep, err
	}
	for slug := range contested {
		rep.Collisions = append(rep.Collisions, slug)
	}
	sort.Strings(rep.Collisions)

	for _, src := range model.AllSources {
		if err := m.source(ctx, src, contested, rep, log); err != nil {
			return rep, err
		}
	}

	log.Info("materialized",
		zap.Int("books", rep.BooksWritten),
		zap.Int("covers_missing", len(rep.CoversMissing)),
		zap.Int("collisions", len(rep.Collisions)),
	)
	if len(contested) > 0 {
		return rep, &SlugCollisionError{Collisions: contested}
	}
	return rep, nil
}

// contestedSlugs surveys every source and returns the slugs claimed by
// more than one materializable record.
func (m *Materializer) contestedSlugs() (map[string][]string, error) {
	claims := make(map[string][]string)
	for _, src := range model.AllSources {
		library, err := m.cat.LoadLibrary(src)
		if err != nil {
			return nil, err
		}
		enriched, err := m.cat.EnrichedFor(src).Load()
		if err != nil {
			return nil, err
		}
		for key := range library {
			e, ok := enriched[key]
			if !ok || e.Skip {
				continue
			}
			slug := model.StringValue(e.Slug)
			if slug == "" {
				continue
			}
			claims[slug] = append(claims[slug], string(src)+":"+key)
		}
	}

	contested := make(map[string][]string)
	for slug, claimants := range claims {
		if len(claimants) > 1 {
			sort.Strings(claimants)
			contested[slug] = claimants
		}
	}
	return contested, nil
}

func (m *Materializer) source(ctx context.Context, src model.Source, contested map[string][]string, rep *Report, log *zap.Logger) error {
	library, err := m.cat.LoadLibrary(src)
	if err != nil {
		return err
	}
	enriched, err := m.cat.EnrichedFor(src).Load()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(library))
	for key := range library {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		e, ok := enriched[key]
		if !ok || e.Skip {
			continue
		}
		slug := model.StringValue(e.Slug)
		if slug == "" {
			continue
		}
		if _, bad := contested[slug]; bad {
			log.Warn("slug contested, record skipped",
				zap.String("source", string(src)),
				zap.String("key", key),
				zap.String("slug", slug),
			)
			continue
		}
		if err := m.book(ctx, src, key, library[key], e, rep, log); err != nil {
			return err
		}
	}
	return nil
}

func (m *Materializer) book(ctx context.Context, src model.Source, key string, record model.LibraryBook, e model.Enrichment, rep *Report, log *zap.Logger) error {
	slug := model.StringValue(e.Slug)
	dir := filepath.Join(m.root, slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "materialize: create %s", dir)
	}

	missing, err := m.EnsureCover(ctx, dir, record, e)
	if err != nil {
		return err
	}
	if missing {
		rep.CoversMissing = append(rep.CoversMissing, slug)
	}

	doc, err := m.buildDoc(ctx, record, e)
	if err != nil {
		return err
	}

	docPath := filepath.Join(dir, "bibliographer.json")
	existing, found, err := readDoc(docPath)
	if err != nil {
		// Never replace a document we cannot parse; the hand edits in it
		// are unrecoverable once clobbered.
		log.Warn("existing document unreadable, leaving untouched",
			zap.String("path", docPath),
			zap.Error(err),
		)
		return nil
	}
	if found {
		doc = doc.MergeExisting(existing)
	}
	if err := writeDocAtomic(docPath, doc); err != nil {
		return err
	}

	if err := scaffoldIndex(dir, record); err != nil {
		return err
	}

	rep.BooksWritten++
	log.Debug("book materialized",
		zap.String("source", string(src)),
		zap.String("key", key),
		zap.String("slug", slug),
	)
	return nil
}

// EnsureCover makes sure dir holds a cover file, downloading one through
// the cover chain when absent. It reports whether the directory remains
// without a cover; a failed download is a missing cover, not an error.
func (m *Materializer) EnsureCover(ctx context.Context, dir string, record model.LibraryBook, e model.Enrichment) (bool, error) {
	existing, err := covers.Find(dir)
	if err != nil {
		return false, err
	}
	if existing != "" {
		return false, nil
	}

	data, err := m.resolvers.Cover(ctx, model.StringValue(e.GBooksVolID), FallbackASIN(record, e))
	switch {
	case catalog.IsCorrupt(err):
		return false, err
	case err != nil:
		zap.L().Debug("no cover found", zap.String("dir", dir), zap.Error(err))
		return true, nil
	}

	if _, err := covers.Write(dir, data); err != nil {
		return false, err
	}
	return false, nil
}

// FallbackASIN picks the ASIN for the Amazon cover fallback: the resolved
// book ASIN first, then whichever source-native ASIN the record carries.
func FallbackASIN(record model.LibraryBook, e model.Enrichment) string {
	if asin := model.StringValue(e.BookASIN); asin != "" {
		return asin
	}
	if record.KindleASIN != "" {
		return record.KindleASIN
	}
	return record.AudibleASIN
}

// buildDoc renders the document for one record from its library and
// enrichment data. Only a corrupt volume cache is an error; an
// unavailable publish date just stays empty.
func (m *Materializer) buildDoc(ctx context.Context, record model.LibraryBook, e model.Enrichment) (model.BookDoc, error) {
	doc := model.BookDoc{
		Title:        record.Title,
		Authors:      record.Authors,
		ISBN:         model.StringValue(e.ISBN),
		PurchaseDate: record.PurchaseDate,
		ReadDate:     record.ReadDate,
	}

	if gvid := model.StringValue(e.GBooksVolID); gvid != "" {
		doc.Links.Metadata.GoogleBooks = "https://books.google.com/books?id=" + gvid
		vol, err := m.resolvers.VolumeByID(ctx, gvid, false)
		switch {
		case catalog.IsCorrupt(err):
			return doc, err
		case err != nil:
			zap.L().Debug("publish date unavailable", zap.String("volume_id", gvid), zap.Error(err))
		default:
			doc.Published = vol.PublishDate
		}
	}
	if doc.Published == "" {
		doc.Published = record.Published
	}

	if olid := model.StringValue(e.OpenLibraryID); olid != "" {
		doc.Links.Metadata.OpenLibrary = "https://openlibrary.org/books/" + olid
	}
	if asin := model.StringValue(e.BookASIN); asin != "" {
		doc.Links.Affiliate.Amazon = "https://www.amazon.com/dp/" + asin
	} else if record.KindleASIN != "" {
		doc.Links.Affiliate.Amazon = "https://www.amazon.com/dp/" + record.KindleASIN
	}
	if record.AudibleASIN != "" {
		doc.Links.Affiliate.Audible = "https://www.audible.com/pd/" + record.AudibleASIN
	}

	titles := make([]string, 0, len(e.URLsWikipedia))
	for title := range e.URLsWikipedia {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	for _, title := range titles {
		doc.Links.Other = append(doc.Links.Other, model.TitledLink{
			Title: title + " - Wikipedia",
			URL:   e.URLsWikipedia[title],
		})
	}

	return doc, nil
}

// readDoc loads an existing sidecar. found is false when no file exists;
// a file that exists but does not parse is an error.
func readDoc(path string) (model.BookDoc, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.BookDoc{}, false, nil
		}
		return model.BookDoc{}, false, eris.Wrapf(err, "materialize: read %s", path)
	}
	var doc model.BookDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.BookDoc{}, false, eris.Wrapf(err, "materialize: parse %s", path)
	}
	return doc, true, nil
}

// writeDocAtomic writes the document with a same-directory temp file and
// rename, like the catalog stores, so a crash cannot leave a half-written
// sidecar.
func writeDocAtomic(path string, doc model.BookDoc) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "materialize: marshal %s", path)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrapf(err, "materialize: create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return eris.Wrapf(err, "materialize: write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return eris.Wrapf(err, "materialize: sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "materialize: close %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return eris.Wrapf(err, "materialize: chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "materialize: replace %s", path)
	}
	return nil
}

// scaffoldIndex writes index.md once. After that the file belongs to the
// user and re-runs never touch it.
func scaffoldIndex(dir string, record model.LibraryBook) error {
	path := filepath.Join(dir, "index.md")
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return eris.Wrapf(err, "materialize: stat %s", path)
	}

	fm, err := frontmatter(record.Title, record.PurchaseDate)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, fm, 0o644); err != nil {
		return eris.Wrapf(err, "materialize: write %s", path)
	}
	return nil
}

// frontmatter renders Hugo front matter for a fresh index.md: quoted
// title, draft flag, and the purchase date when known. Without a date the
// line is emitted commented out, ready to fill in by hand.
func frontmatter(title, date string) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	root.Content = append(root.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: "title"},
		&yaml.Node{Kind: yaml.ScalarNode, Value: title, Style: yaml.DoubleQuotedStyle},
		&yaml.Node{Kind: yaml.ScalarNode, Value: "draft"},
		&yaml.Node{Kind: yaml.ScalarNode, Value: "true"},
	)
	if date != "" {
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: "date"},
			&yaml.Node{Kind: yaml.ScalarNode, Value: date},
		)
	}

	body, err := yaml.Marshal(root)
	if err != nil {
		return nil, eris.Wrap(err, "materialize: render front matter")
	}

	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(body)
	if date == "" {
		b.WriteString("# date:\n")
	}
	b.WriteString("---\n")
	return b.Bytes(), nil
}
