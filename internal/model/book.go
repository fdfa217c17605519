// Package model defines the data shapes shared across caches, enrichment,
// and the output tree. Every type here round-trips through a hand-editable
// JSON file, so field names are part of the user-facing contract.
package model

import "strconv"

// Source identifies where a library record came from.
type Source string

const (
	SourceAudible Source = "audible"
	SourceKindle  Source = "kindle"
	SourceLibrofm Source = "librofm"
	SourceManual  Source = "manual"
)

// AllSources lists every library source in deterministic processing order.
var AllSources = []Source{SourceAudible, SourceKindle, SourceLibrofm, SourceManual}

// LibraryBook is a normalized per-source purchase record, keyed in its
// cache file by the source-native identifier (Audible ASIN, Kindle ASIN,
// Libro.fm ISBN). ISBN is set only when the source itself reports one.
type LibraryBook struct {
	Title        string   `json:"title"`
	Authors      []string `json:"authors"`
	CoverURL     string   `json:"cover_url,omitempty"`
	PurchaseDate string   `json:"purchase_date,omitempty"`
	ReadDate     string   `json:"read_date,omitempty"`
	Published    string   `json:"published,omitempty"`
	ISBN         string   `json:"isbn,omitempty"`
	AudibleASIN  string   `json:"audible_asin,omitempty"`
	KindleASIN   string   `json:"kindle_asin,omitempty"`
}

// Merge overlays b with freshly ingested source data. Non-empty incoming
// fields win; fields the source stopped reporting are retained, so a
// partial re-ingest never deletes anything.
func (b LibraryBook) Merge(fresh LibraryBook) LibraryBook {
	out := b
	if fresh.Title != "" {
		out.Title = fresh.Title
	}
	if len(fresh.Authors) > 0 {
		out.Authors = fresh.Authors
	}
	if fresh.CoverURL != "" {
		out.CoverURL = fresh.CoverURL
	}
	if fresh.PurchaseDate != "" {
		out.PurchaseDate = fresh.PurchaseDate
	}
	if fresh.ReadDate != "" {
		out.ReadDate = fresh.ReadDate
	}
	if fresh.Published != "" {
		out.Published = fresh.Published
	}
	if fresh.ISBN != "" {
		out.ISBN = fresh.ISBN
	}
	if fresh.AudibleASIN != "" {
		out.AudibleASIN = fresh.AudibleASIN
	}
	if fresh.KindleASIN != "" {
		out.KindleASIN = fresh.KindleASIN
	}
	return out
}

// ManualBook is a hand-entered work, keyed by slug in the manual books
// file. It is the one library record kind created by a human instead of
// an ingestion run.
type ManualBook struct {
	Title        string   `json:"title"`
	Authors      []string `json:"authors"`
	ISBN         string   `json:"isbn,omitempty"`
	PurchaseDate string   `json:"purchase_date,omitempty"`
	ReadDate     string   `json:"read_date,omitempty"`
}

// AsLibraryBook adapts a manual entry to the shape the enrichment engine
// consumes.
func (m ManualBook) AsLibraryBook() LibraryBook {
	return LibraryBook{
		Title:        m.Title,
		Authors:      m.Authors,
		ISBN:         m.ISBN,
		PurchaseDate: m.PurchaseDate,
		ReadDate:     m.ReadDate,
	}
}

// Volume is the normalized Google Books cache value: just the fields
// downstream consumers read, not the raw API payload.
type Volume struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Authors     []string `json:"authors,omitempty"`
	ISBN13      string   `json:"isbn13,omitempty"`
	PublishDate string   `json:"publish_date,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
}

// Highlight is a raw Raindrop highlight. Raindrop IDs are numeric on the
// wire; Key renders the decimal form used as the cache map key.
type Highlight struct {
	ID      int64    `json:"_id"`
	Title   string   `json:"title,omitempty"`
	Link    string   `json:"link,omitempty"`
	Text    string   `json:"text,omitempty"`
	Note    string   `json:"note,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Created string   `json:"created,omitempty"`
}

// Key returns the catalog map key for the highlight.
func (h Highlight) Key() string { return strconv.FormatInt(h.ID, 10) }

// String returns an owned pointer to s, for filling nullable fields.
func String(s string) *string { return &s }

// StringValue returns the string behind p, or "" when p is nil.
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
