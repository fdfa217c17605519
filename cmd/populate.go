package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bookish/bibliographer/internal/enrich"
	"github.com/bookish/bibliographer/internal/materialize"
)

var populateCmd = &cobra.Command{
	Use:   "populate",
	Short: "Enrich every cached record and write the book tree",
	Long: "Runs the full pipeline over the local caches: resolves missing identifiers " +
		"for every library record, then writes one directory per book under the slug root. " +
		"Safe to re-run; a second pass with warm caches touches nothing.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cat := openCatalog()
		resolvers, err := initResolvers(cat)
		if err != nil {
			return err
		}

		stats, err := enrich.New(cat, resolvers).All(ctx)
		if err != nil {
			return eris.Wrap(err, "enrich")
		}
		zap.L().Info("enrichment complete",
			zap.Int("records", stats.Records),
			zap.Int("filled", stats.Filled),
			zap.Int("failed", stats.Failed),
		)

		rep, err := materialize.New(cat, resolvers, cfg.BookSlugRoot).All(ctx)
		printReport(rep)
		if err != nil {
			return eris.Wrap(err, "materialize")
		}
		return nil
	},
}

func printReport(rep *materialize.Report) {
	fmt.Printf("books written: %d\n", rep.BooksWritten)
	if len(rep.CoversMissing) > 0 {
		fmt.Printf("covers missing (%d): %s\n", len(rep.CoversMissing), strings.Join(rep.CoversMissing, ", "))
	}
	if len(rep.Collisions) > 0 {
		fmt.Printf("slug collisions (%d): %s\n", len(rep.Collisions), strings.Join(rep.Collisions, ", "))
	}
}

func init() {
	rootCmd.AddCommand(populateCmd)
}
