package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bookish/bibliographer/internal/isbn"
	"github.com/bookish/bibliographer/internal/model"
	"github.com/bookish/bibliographer/internal/slug"
)

var (
	addTitle        string
	addAuthors      []string
	addISBN         string
	addPurchaseDate string
	addReadDate     string
	addSlug         string
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add records by hand",
}

var addBookCmd = &cobra.Command{
	Use:   "book",
	Short: "Add a book that no ingestion source covers",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := manualSlug(addTitle, addISBN, addSlug)
		if err != nil {
			return err
		}

		cat := openCatalog()
		existing, err := cat.ManualBooks.Load()
		if err != nil {
			return err
		}
		if _, ok := existing[key]; ok {
			return eris.Errorf("manual book %q already exists", key)
		}

		book := model.ManualBook{
			Title:        addTitle,
			Authors:      addAuthors,
			ISBN:         isbn.Normalize(addISBN),
			PurchaseDate: addPurchaseDate,
			ReadDate:     addReadDate,
		}
		if err := cat.ManualBooks.MergeAndSave(map[string]model.ManualBook{key: book}); err != nil {
			return eris.Wrap(err, "save manual book")
		}

		// Pin the chosen slug so enrichment never renames the entry.
		e := model.Enrichment{Slug: model.String(key)}
		if err := cat.ManualEnriched.MergeAndSave(map[string]model.Enrichment{key: e}); err != nil {
			return eris.Wrap(err, "save manual enrichment")
		}

		zap.L().Info("manual book added", zap.String("slug", key))
		fmt.Println(key)
		return nil
	},
}

// manualSlug picks the key for a manual book: an explicit slug wins, then
// the slugified title, then a synthetic book-<isbn> key.
func manualSlug(title, rawISBN, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if s := slug.Make(title); s != "" {
		return s, nil
	}
	if n := isbn.Normalize(rawISBN); n != "" {
		return "book-" + n, nil
	}
	return "", eris.New("cannot derive a slug: pass --slug, or a title or ISBN it can be built from")
}

func init() {
	addBookCmd.Flags().StringVar(&addTitle, "title", "", "book title")
	addBookCmd.Flags().StringSliceVar(&addAuthors, "authors", nil, "authors, repeatable or comma-separated")
	addBookCmd.Flags().StringVar(&addISBN, "isbn", "", "ISBN-13 or ISBN-10")
	addBookCmd.Flags().StringVar(&addPurchaseDate, "purchase-date", "", "purchase date, YYYY-MM-DD")
	addBookCmd.Flags().StringVar(&addReadDate, "read-date", "", "read date, YYYY-MM-DD")
	addBookCmd.Flags().StringVar(&addSlug, "slug", "", "output directory slug (default: derived from the title)")
	_ = addBookCmd.MarkFlagRequired("title")

	addCmd.AddCommand(addBookCmd)
	rootCmd.AddCommand(addCmd)
}
