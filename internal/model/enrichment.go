package model

// Enrichment is the per-book resolution state, one record per library
// record key. A nil field means "not yet resolved, try again next run";
// a non-nil field is settled and never re-queried. Humans correct bad
// resolutions by editing these records directly, so every field is
// serialized even when null.
type Enrichment struct {
	Slug          *string           `json:"slug"`
	ISBN          *string           `json:"isbn"`
	OpenLibraryID *string           `json:"openlibrary_id"`
	GBooksVolID   *string           `json:"gbooks_volid"`
	BookASIN      *string           `json:"book_asin"`
	URLsWikipedia map[string]string `json:"urls_wikipedia"`
	Skip          bool              `json:"skip"`
}

// Settled reports whether every field has been resolved, meaning an
// enrichment pass has nothing left to attempt for this record.
func (e Enrichment) Settled() bool {
	return e.Slug != nil &&
		e.ISBN != nil &&
		e.OpenLibraryID != nil &&
		e.GBooksVolID != nil &&
		e.BookASIN != nil &&
		e.URLsWikipedia != nil
}

// Equal reports whether two records hold identical values. Used to avoid
// rewriting a store when a pass resolved nothing new.
func (e Enrichment) Equal(other Enrichment) bool {
	if !eqPtr(e.Slug, other.Slug) ||
		!eqPtr(e.ISBN, other.ISBN) ||
		!eqPtr(e.OpenLibraryID, other.OpenLibraryID) ||
		!eqPtr(e.GBooksVolID, other.GBooksVolID) ||
		!eqPtr(e.BookASIN, other.BookASIN) ||
		e.Skip != other.Skip {
		return false
	}
	if (e.URLsWikipedia == nil) != (other.URLsWikipedia == nil) {
		return false
	}
	if len(e.URLsWikipedia) != len(other.URLsWikipedia) {
		return false
	}
	for k, v := range e.URLsWikipedia {
		if other.URLsWikipedia[k] != v {
			return false
		}
	}
	return true
}

func eqPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
