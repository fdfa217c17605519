package main

import (
	"github.com/bookish/bibliographer/internal/catalog"
	"github.com/bookish/bibliographer/internal/covers"
	"github.com/bookish/bibliographer/internal/model"
	"github.com/bookish/bibliographer/internal/resolve"
	"github.com/bookish/bibliographer/pkg/amazon"
	"github.com/bookish/bibliographer/pkg/googlebooks"
	"github.com/bookish/bibliographer/pkg/openlibrary"
	"github.com/bookish/bibliographer/pkg/wikipedia"
)

// openCatalog builds the catalog rooted at the configured data directory.
func openCatalog() *catalog.Catalog {
	return catalog.New(cfg.DataRoot)
}

// initResolvers wires live metadata clients over the catalog's caches. The
// Google Books key may be empty; unauthenticated requests still work, just
// under a tighter quota.
func initResolvers(cat *catalog.Catalog) (*resolve.Resolvers, error) {
	key, err := cfg.GoogleBooksAPIKey()
	if err != nil {
		return nil, err
	}

	return resolve.New(cat, resolve.Clients{
		GoogleBooks: googlebooks.NewClient(key),
		OpenLibrary: openlibrary.NewClient(),
		Wikipedia:   wikipedia.NewClient(),
		Amazon:      amazon.NewClient(),
		Covers:      covers.NewFetcher(),
	}), nil
}

// mergeLibrary folds freshly retrieved records into a library cache one
// record at a time, so fields the new retrieval does not carry survive
// from earlier runs.
func mergeLibrary(store *catalog.Store[model.LibraryBook], fresh map[string]model.LibraryBook) error {
	existing, err := store.Load()
	if err != nil {
		return err
	}

	updates := make(map[string]model.LibraryBook, len(fresh))
	for key, book := range fresh {
		updates[key] = existing[key].Merge(book)
	}

	return store.MergeAndSave(updates)
}
