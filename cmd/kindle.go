package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bookish/bibliographer/internal/model"
)

var kindleCmd = &cobra.Command{
	Use:   "kindle",
	Short: "Kindle library commands",
}

var kindleIngestCmd = &cobra.Command{
	Use:   "ingest <export.json>",
	Short: "Merge a Kindle library export into the local cache",
	Long: "Reads the JSON array produced by the Kindle library bookmarklet and merges it " +
		"into the kindle cache keyed by ASIN. Items without an ASIN are skipped.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read export %s", args[0])
		}

		books, err := parseKindleExport(data)
		if err != nil {
			return err
		}

		if err := mergeLibrary(openCatalog().KindleLibrary, books); err != nil {
			return eris.Wrap(err, "save kindle library")
		}

		zap.L().Info("kindle export ingested", zap.Int("books", len(books)))
		fmt.Printf("ingested %d kindle books\n", len(books))
		return nil
	},
}

// kindleExportItem is one entry in the bookmarklet's JSON array.
type kindleExportItem struct {
	ASIN         string   `json:"asin"`
	Title        string   `json:"title"`
	Authors      []string `json:"authors"`
	PurchaseDate string   `json:"purchaseDate"`
}

// parseKindleExport converts the export array into keyed library records.
// The export packs every author into the first element as one
// colon-separated string, usually with a trailing colon.
func parseKindleExport(data []byte) (map[string]model.LibraryBook, error) {
	var items []kindleExportItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, eris.Wrap(err, "parse kindle export")
	}

	books := make(map[string]model.LibraryBook, len(items))
	for _, item := range items {
		if item.ASIN == "" {
			continue
		}
		var authors []string
		if len(item.Authors) > 0 {
			authors = strings.Split(strings.TrimRight(item.Authors[0], ":"), ":")
		}
		books[item.ASIN] = model.LibraryBook{
			Title:        item.Title,
			Authors:      authors,
			PurchaseDate: item.PurchaseDate,
			KindleASIN:   item.ASIN,
		}
	}
	return books, nil
}

func init() {
	kindleCmd.AddCommand(kindleIngestCmd)
	rootCmd.AddCommand(kindleCmd)
}
