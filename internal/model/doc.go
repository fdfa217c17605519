package model

// BookDoc is the bibliographer.json sidecar written into each slug
// directory, the document a static-site generator consumes.
type BookDoc struct {
	Title        string    `json:"title,omitempty"`
	Authors      []string  `json:"authors,omitempty"`
	ISBN         string    `json:"isbn,omitempty"`
	PurchaseDate string    `json:"purchase_date,omitempty"`
	ReadDate     string    `json:"read_date,omitempty"`
	Published    string    `json:"published,omitempty"`
	Links        BookLinks `json:"links"`
}

// BookLinks groups the outbound links of a book document.
type BookLinks struct {
	Metadata  MetadataLinks  `json:"metadata"`
	Affiliate AffiliateLinks `json:"affiliate"`
	Other     []TitledLink   `json:"other,omitempty"`
}

// MetadataLinks point at canonical bibliographic records.
type MetadataLinks struct {
	OpenLibrary string `json:"openlibrary,omitempty"`
	GoogleBooks string `json:"googlebooks,omitempty"`
}

// AffiliateLinks point at retail product pages.
type AffiliateLinks struct {
	Amazon  string `json:"amazon,omitempty"`
	Audible string `json:"audible,omitempty"`
}

// TitledLink is a labeled URL in the links.other list.
type TitledLink struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// MergeExisting overlays d with the document already on disk: a field the
// existing document has populated is preserved verbatim, a field it lacks
// is filled from d. Hand edits to the sidecar therefore survive every
// re-materialization. links.other is merged as a union keyed by link
// title, existing entries first.
func (d BookDoc) MergeExisting(existing BookDoc) BookDoc {
	out := d
	if existing.Title != "" {
		out.Title = existing.Title
	}
	if len(existing.Authors) > 0 {
		out.Authors = existing.Authors
	}
	if existing.ISBN != "" {
		out.ISBN = existing.ISBN
	}
	if existing.PurchaseDate != "" {
		out.PurchaseDate = existing.PurchaseDate
	}
	if existing.ReadDate != "" {
		out.ReadDate = existing.ReadDate
	}
	if existing.Published != "" {
		out.Published = existing.Published
	}
	if existing.Links.Metadata.OpenLibrary != "" {
		out.Links.Metadata.OpenLibrary = existing.Links.Metadata.OpenLibrary
	}
	if existing.Links.Metadata.GoogleBooks != "" {
		out.Links.Metadata.GoogleBooks = existing.Links.Metadata.GoogleBooks
	}
	if existing.Links.Affiliate.Amazon != "" {
		out.Links.Affiliate.Amazon = existing.Links.Affiliate.Amazon
	}
	if existing.Links.Affiliate.Audible != "" {
		out.Links.Affiliate.Audible = existing.Links.Affiliate.Audible
	}
	out.Links.Other = mergeTitledLinks(existing.Links.Other, d.Links.Other)
	return out
}

func mergeTitledLinks(existing, generated []TitledLink) []TitledLink {
	if len(existing) == 0 {
		return generated
	}
	seen := make(map[string]bool, len(existing))
	out := make([]TitledLink, 0, len(existing)+len(generated))
	for _, l := range existing {
		out = append(out, l)
		seen[l.Title] = true
	}
	for _, l := range generated {
		if !seen[l.Title] {
			out = append(out, l)
		}
	}
	return out
}
