package catalog

import (
	"path/filepath"

	"github.com/bookish/bibliographer/internal/model"
)

// Catalog wires every persisted store under one data root. API caches in
// apicache/ are machine-owned snapshots; user maps in usermaps/ are
// hand-editable and authoritative on conflict.
type Catalog struct {
	// API caches.
	AudibleLibrary     *Store[model.LibraryBook]
	KindleLibrary      *Store[model.LibraryBook]
	LibrofmLibrary     *Store[model.LibraryBook]
	RaindropHighlights *Store[model.Highlight]
	GBooksVolumes      *Store[model.Volume]

	// User maps.
	AudibleEnriched *Store[model.Enrichment]
	KindleEnriched  *Store[model.Enrichment]
	LibrofmEnriched *Store[model.Enrichment]
	ManualEnriched  *Store[model.Enrichment]
	ManualBooks     *Store[model.ManualBook]
	ASINToVolume    *Store[string]
	ISBNToOLID      *Store[string]
	SearchToASIN    *Store[string]
	WikipediaPages  *Store[map[string]string]
}

// New builds the catalog rooted at dataRoot. No files or directories are
// created until something is saved.
func New(dataRoot string) *Catalog {
	api := func(name string) string { return filepath.Join(dataRoot, "apicache", name) }
	user := func(name string) string { return filepath.Join(dataRoot, "usermaps", name) }

	return &Catalog{
		AudibleLibrary:     NewStore[model.LibraryBook](api("audible_library.json")),
		KindleLibrary:      NewStore[model.LibraryBook](api("kindle_library.json")),
		LibrofmLibrary:     NewStore[model.LibraryBook](api("librofm_library.json")),
		RaindropHighlights: NewStore[model.Highlight](api("raindrop_highlights.json")),
		GBooksVolumes:      NewStore[model.Volume](api("gbooks_volumes.json")),

		AudibleEnriched: NewStore[model.Enrichment](user("audible_enriched.json")),
		KindleEnriched:  NewStore[model.Enrichment](user("kindle_enriched.json")),
		LibrofmEnriched: NewStore[model.Enrichment](user("librofm_enriched.json")),
		ManualEnriched:  NewStore[model.Enrichment](user("manual_enriched.json")),
		ManualBooks:     NewStore[model.ManualBook](user("manual_books.json")),
		ASINToVolume:    NewStore[string](user("asin2gbv.json")),
		ISBNToOLID:      NewStore[string](user("isbn2olid.json")),
		SearchToASIN:    NewStore[string](user("search2asin.json")),
		WikipediaPages:  NewStore[map[string]string](user("wikipedia_relevant.json")),
	}
}

// EnrichedFor returns the enrichment store owning records for src.
func (c *Catalog) EnrichedFor(src model.Source) *Store[model.Enrichment] {
	switch src {
	case model.SourceAudible:
		return c.AudibleEnriched
	case model.SourceKindle:
		return c.KindleEnriched
	case model.SourceLibrofm:
		return c.LibrofmEnriched
	case model.SourceManual:
		return c.ManualEnriched
	default:
		return nil
	}
}

// LibraryFor returns the ingested library store for src, or nil for the
// manual source, whose records live in ManualBooks instead.
func (c *Catalog) LibraryFor(src model.Source) *Store[model.LibraryBook] {
	switch src {
	case model.SourceAudible:
		return c.AudibleLibrary
	case model.SourceKindle:
		return c.KindleLibrary
	case model.SourceLibrofm:
		return c.LibrofmLibrary
	default:
		return nil
	}
}

// LoadLibrary returns the library records for src in LibraryBook shape,
// adapting manual entries as needed.
func (c *Catalog) LoadLibrary(src model.Source) (map[string]model.LibraryBook, error) {
	if src == model.SourceManual {
		manual, err := c.ManualBooks.Load()
		if err != nil {
			return nil, err
		}
		out := make(map[string]model.LibraryBook, len(manual))
		for key, m := range manual {
			out[key] = m.AsLibraryBook()
		}
		return out, nil
	}

	lib := c.LibraryFor(src)
	if lib == nil {
		return map[string]model.LibraryBook{}, nil
	}
	return lib.Load()
}
