package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bookish/bibliographer/internal/catalog"
	"github.com/bookish/bibliographer/internal/covers"
	"github.com/bookish/bibliographer/internal/materialize"
	"github.com/bookish/bibliographer/internal/model"
)

var coverConcurrency int

var coverCmd = &cobra.Command{
	Use:   "cover",
	Short: "Manage cover images in the book tree",
}

var coverRetrieveCmd = &cobra.Command{
	Use:   "retrieve",
	Short: "Download covers for every book directory that lacks one",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cat := openCatalog()
		resolvers, err := initResolvers(cat)
		if err != nil {
			return err
		}
		mat := materialize.New(cat, resolvers, cfg.BookSlugRoot)

		targets, err := coverTargets(cat)
		if err != nil {
			return err
		}

		var (
			mu      sync.Mutex
			missing []string
		)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(coverConcurrency)
		for slug, target := range targets {
			g.Go(func() error {
				dir := filepath.Join(cfg.BookSlugRoot, slug)
				stillMissing, err := mat.EnsureCover(gctx, dir, target.record, target.e)
				if err != nil {
					return err
				}
				if stillMissing {
					mu.Lock()
					missing = append(missing, slug)
					mu.Unlock()
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return eris.Wrap(err, "retrieve covers")
		}

		sort.Strings(missing)
		fmt.Printf("covers present: %d\n", len(targets)-len(missing))
		if len(missing) > 0 {
			fmt.Printf("covers missing (%d): %s\n", len(missing), strings.Join(missing, ", "))
		}
		return nil
	},
}

var coverSetCmd = &cobra.Command{
	Use:   "set <slug> <file-or-url>",
	Short: "Replace a book's cover from a local file or URL",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		slug, source := args[0], args[1]
		dir := filepath.Join(cfg.BookSlugRoot, slug)
		if _, err := os.Stat(dir); err != nil {
			return eris.Wrapf(err, "book directory %s", dir)
		}

		var data *covers.Data
		if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d, err := covers.NewFetcher().Download(ctx, source)
			if err != nil {
				return eris.Wrapf(err, "download %s", source)
			}
			data = d
		} else {
			raw, err := os.ReadFile(source)
			if err != nil {
				return eris.Wrapf(err, "read %s", source)
			}
			d, err := covers.FromBytes(raw)
			if err != nil {
				return err
			}
			data = d
		}

		path, err := covers.Write(dir, data)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var coverListMissingCmd = &cobra.Command{
	Use:   "list-missing",
	Short: "Print slugs whose book directory has no cover file",
	RunE: func(cmd *cobra.Command, args []string) error {
		targets, err := coverTargets(openCatalog())
		if err != nil {
			return err
		}

		slugs := make([]string, 0, len(targets))
		for slug := range targets {
			slugs = append(slugs, slug)
		}
		sort.Strings(slugs)

		for _, slug := range slugs {
			existing, err := covers.Find(filepath.Join(cfg.BookSlugRoot, slug))
			if err != nil {
				return err
			}
			if existing == "" {
				fmt.Println(slug)
			}
		}
		return nil
	},
}

// coverTarget pairs the data EnsureCover needs for one slug.
type coverTarget struct {
	record model.LibraryBook
	e      model.Enrichment
}

// coverTargets collects every materializable record keyed by slug. Records
// without an enrichment entry, skipped ones, and slugless ones have no
// book directory and thus no cover to manage.
func coverTargets(cat *catalog.Catalog) (map[string]coverTarget, error) {
	targets := make(map[string]coverTarget)
	for _, src := range model.AllSources {
		library, err := cat.LoadLibrary(src)
		if err != nil {
			return nil, err
		}
		enriched, err := cat.EnrichedFor(src).Load()
		if err != nil {
			return nil, err
		}
		for key, record := range library {
			e, ok := enriched[key]
			if !ok || e.Skip || model.StringValue(e.Slug) == "" {
				continue
			}
			targets[model.StringValue(e.Slug)] = coverTarget{record: record, e: e}
		}
	}
	return targets, nil
}

func init() {
	coverRetrieveCmd.Flags().IntVar(&coverConcurrency, "concurrency", 4, "parallel cover downloads")

	coverCmd.AddCommand(coverRetrieveCmd)
	coverCmd.AddCommand(coverSetCmd)
	coverCmd.AddCommand(coverListMissingCmd)
	rootCmd.AddCommand(coverCmd)
}
