package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibraryBookMerge(t *testing.T) {
	existing := LibraryBook{
		Title:        "Getting Things Done",
		Authors:      []string{"David Allen"},
		PurchaseDate: "2020-01-15",
		AudibleASIN:  "B0030CVQ0S",
	}
	fresh := LibraryBook{
		Title:    "Getting Things Done",
		CoverURL: "https://img.example.com/gtd.jpg",
	}

	merged := existing.Merge(fresh)

	assert.Equal(t, "https://img.example.com/gtd.jpg", merged.CoverURL)
	assert.Equal(t, []string{"David Allen"}, merged.Authors, "absent incoming field keeps existing value")
	assert.Equal(t, "2020-01-15", merged.PurchaseDate)
	assert.Equal(t, "B0030CVQ0S", merged.AudibleASIN)
}

func TestLibraryBookMergeFreshWins(t *testing.T) {
	existing := LibraryBook{Title: "Old Title", PurchaseDate: "2019-01-01"}
	fresh := LibraryBook{Title: "Corrected Title", PurchaseDate: "2019-02-02"}

	merged := existing.Merge(fresh)
	assert.Equal(t, "Corrected Title", merged.Title)
	assert.Equal(t, "2019-02-02", merged.PurchaseDate)
}

func TestEnrichmentNullFieldsSerialized(t *testing.T) {
	data, err := json.Marshal(Enrichment{})
	require.NoError(t, err)

	// Hand-editors need to see every slot, including unresolved ones.
	for _, key := range []string{`"slug":null`, `"isbn":null`, `"openlibrary_id":null`, `"gbooks_volid":null`, `"book_asin":null`, `"urls_wikipedia":null`, `"skip":false`} {
		assert.Contains(t, string(data), key)
	}
}

func TestEnrichmentSettled(t *testing.T) {
	assert.False(t, Enrichment{}.Settled())

	full := Enrichment{
		Slug:          String("getting-things-done"),
		ISBN:          String("9780143126560"),
		OpenLibraryID: String("OL26278461M"),
		GBooksVolID:   String("zpWhDQAAQBAJ"),
		BookASIN:      String("0143126563"),
		URLsWikipedia: map[string]string{},
	}
	assert.True(t, full.Settled())

	partial := full
	partial.OpenLibraryID = nil
	assert.False(t, partial.Settled())
}

func TestEnrichmentEqual(t *testing.T) {
	a := Enrichment{Slug: String("x"), URLsWikipedia: map[string]string{"P": "u"}}
	b := Enrichment{Slug: String("x"), URLsWikipedia: map[string]string{"P": "u"}}
	assert.True(t, a.Equal(b))

	c := b
	c.Skip = true
	assert.False(t, a.Equal(c))

	d := Enrichment{Slug: String("x"), URLsWikipedia: map[string]string{"P": "other"}}
	assert.False(t, a.Equal(d))

	e := Enrichment{Slug: String("x")}
	assert.False(t, a.Equal(e), "nil map differs from populated map")
}

func TestBookDocMergeExistingPreservesPopulated(t *testing.T) {
	generated := BookDoc{
		Title: "Getting Things Done",
		ISBN:  "9780143126560",
		Links: BookLinks{Metadata: MetadataLinks{GoogleBooks: "https://books.google.com/books?id=zpWhDQAAQBAJ"}},
	}
	existing := BookDoc{
		Title: "Getting Things Done: The Art of Stress-Free Productivity",
		Links: BookLinks{Affiliate: AffiliateLinks{Amazon: "https://www.amazon.com/dp/hand-fixed"}},
	}

	merged := generated.MergeExisting(existing)

	assert.Equal(t, existing.Title, merged.Title, "existing populated field preserved")
	assert.Equal(t, "9780143126560", merged.ISBN, "gap filled from generated values")
	assert.Equal(t, "https://www.amazon.com/dp/hand-fixed", merged.Links.Affiliate.Amazon)
	assert.Equal(t, "https://books.google.com/books?id=zpWhDQAAQBAJ", merged.Links.Metadata.GoogleBooks)
}

func TestBookDocMergeExistingOtherLinks(t *testing.T) {
	generated := BookDoc{Links: BookLinks{Other: []TitledLink{
		{Title: "David Allen - Wikipedia", URL: "https://en.wikipedia.org/wiki/David_Allen_(author)"},
	}}}
	existing := BookDoc{Links: BookLinks{Other: []TitledLink{
		{Title: "Author homepage", URL: "https://gettingthingsdone.com"},
		{Title: "David Allen - Wikipedia", URL: "https://en.wikipedia.org/wiki/hand-picked"},
	}}}

	merged := generated.MergeExisting(existing)

	require.Len(t, merged.Links.Other, 2)
	assert.Equal(t, "https://gettingthingsdone.com", merged.Links.Other[0].URL, "existing entries keep their order")
	assert.Equal(t, "https://en.wikipedia.org/wiki/hand-picked", merged.Links.Other[1].URL, "existing entry wins over generated duplicate")
}

func TestManualBookAsLibraryBook(t *testing.T) {
	m := ManualBook{Title: "Blackletter", Authors: []string{"Peter Bain", "Paul Shaw"}, ISBN: "9781568981550", PurchaseDate: "2021-06-01", ReadDate: "2021-07-04"}
	b := m.AsLibraryBook()
	assert.Equal(t, "Blackletter", b.Title)
	assert.Equal(t, []string{"Peter Bain", "Paul Shaw"}, b.Authors)
	assert.Equal(t, "9781568981550", b.ISBN)
	assert.Equal(t, "2021-06-01", b.PurchaseDate)
	assert.Equal(t, "2021-07-04", b.ReadDate)
}

func TestStringHelpers(t *testing.T) {
	p := String("x")
	require.NotNil(t, p)
	assert.Equal(t, "x", StringValue(p))
	assert.Equal(t, "", StringValue(nil))
}
