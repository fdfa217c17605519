package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bookish/bibliographer/internal/catalog"
	"github.com/bookish/bibliographer/internal/model"
	"github.com/bookish/bibliographer/internal/slug"
)

var slugCmd = &cobra.Command{
	Use:   "slug",
	Short: "Inspect and change book slugs",
}

var slugKeepSubtitle bool

// makeSlug honors --keep-subtitle, for titles whose subtitle is the only
// thing telling two books apart.
func makeSlug(title string) string {
	if slugKeepSubtitle {
		return slug.MakeKeepSubtitle(title)
	}
	return slug.Make(title)
}

var slugShowCmd = &cobra.Command{
	Use:   "show <title>",
	Short: "Print the slug a title would get",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := makeSlug(args[0])
		if s == "" {
			return eris.Errorf("no slug can be built from %q", args[0])
		}
		fmt.Println(s)
		return nil
	},
}

var slugRenameCmd = &cobra.Command{
	Use:   "rename <old> <new>",
	Short: "Rename a book's slug and move its output directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		oldSlug, newSlug := args[0], args[1]
		if oldSlug == newSlug {
			return eris.New("old and new slug are the same")
		}

		cat := openCatalog()
		src, key, ok, err := slugOwner(cat, oldSlug)
		if err != nil {
			return err
		}
		if !ok {
			return eris.Errorf("no record claims slug %q", oldSlug)
		}
		if _, _, taken, err := slugOwner(cat, newSlug); err != nil {
			return err
		} else if taken {
			return eris.Errorf("slug %q is already claimed", newSlug)
		}

		if err := moveBookDir(cfg.BookSlugRoot, oldSlug, newSlug); err != nil {
			return err
		}

		enriched := cat.EnrichedFor(src)
		records, err := enriched.Load()
		if err != nil {
			return err
		}
		e := records[key]
		e.Slug = model.String(newSlug)
		if err := enriched.MergeAndSave(map[string]model.Enrichment{key: e}); err != nil {
			return eris.Wrap(err, "save renamed slug")
		}

		zap.L().Info("slug renamed",
			zap.String("source", string(src)),
			zap.String("key", key),
			zap.String("old", oldSlug),
			zap.String("new", newSlug),
		)
		fmt.Printf("%s -> %s\n", oldSlug, newSlug)
		return nil
	},
}

var slugRegenerateCmd = &cobra.Command{
	Use:   "regenerate <key>",
	Short: "Rebuild a record's slug from its current title",
	Long: "Looks the key up across all sources, rebuilds the slug from the record's " +
		"title, and moves the output directory. Useful after fixing a title by hand, " +
		"or with --keep-subtitle when two books share a main title.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		cat := openCatalog()
		src, record, e, ok, err := recordForKey(cat, key)
		if err != nil {
			return err
		}
		if !ok {
			return eris.Errorf("no record found for key %q", key)
		}

		newSlug := makeSlug(record.Title)
		if newSlug == "" {
			return eris.Errorf("no slug can be built from title %q", record.Title)
		}
		oldSlug := model.StringValue(e.Slug)
		if newSlug == oldSlug {
			fmt.Printf("%s unchanged\n", newSlug)
			return nil
		}

		if ownerSrc, ownerKey, taken, err := slugOwner(cat, newSlug); err != nil {
			return err
		} else if taken && (ownerSrc != src || ownerKey != key) {
			return eris.Errorf("slug %q is already claimed", newSlug)
		}

		if oldSlug != "" {
			if err := moveBookDir(cfg.BookSlugRoot, oldSlug, newSlug); err != nil {
				return err
			}
		}

		e.Slug = model.String(newSlug)
		if err := cat.EnrichedFor(src).MergeAndSave(map[string]model.Enrichment{key: e}); err != nil {
			return eris.Wrap(err, "save regenerated slug")
		}

		zap.L().Info("slug regenerated",
			zap.String("source", string(src)),
			zap.String("key", key),
			zap.String("old", oldSlug),
			zap.String("new", newSlug),
		)
		fmt.Println(newSlug)
		return nil
	},
}

// slugOwner locates the enrichment record claiming s. Sources and keys are
// walked in deterministic order so repeated calls agree on the owner.
func slugOwner(cat *catalog.Catalog, s string) (model.Source, string, bool, error) {
	for _, src := range model.AllSources {
		enriched, err := cat.EnrichedFor(src).Load()
		if err != nil {
			return "", "", false, err
		}
		keys := make([]string, 0, len(enriched))
		for key := range enriched {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if model.StringValue(enriched[key].Slug) == s {
				return src, key, true, nil
			}
		}
	}
	return "", "", false, nil
}

// recordForKey finds the library record and enrichment for a source-native
// key, searching every source.
func recordForKey(cat *catalog.Catalog, key string) (model.Source, model.LibraryBook, model.Enrichment, bool, error) {
	for _, src := range model.AllSources {
		library, err := cat.LoadLibrary(src)
		if err != nil {
			return "", model.LibraryBook{}, model.Enrichment{}, false, err
		}
		record, ok := library[key]
		if !ok {
			continue
		}
		enriched, err := cat.EnrichedFor(src).Load()
		if err != nil {
			return "", model.LibraryBook{}, model.Enrichment{}, false, err
		}
		return src, record, enriched[key], true, nil
	}
	return "", model.LibraryBook{}, model.Enrichment{}, false, nil
}

// moveBookDir renames the output directory for a slug change. A missing
// source directory is fine; an existing target is not.
func moveBookDir(root, oldSlug, newSlug string) error {
	oldDir := filepath.Join(root, oldSlug)
	if _, err := os.Stat(oldDir); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return eris.Wrapf(err, "stat %s", oldDir)
	}

	newDir := filepath.Join(root, newSlug)
	if _, err := os.Stat(newDir); err == nil {
		return eris.Errorf("output directory %s already exists", newDir)
	}

	if err := os.Rename(oldDir, newDir); err != nil {
		return eris.Wrapf(err, "move %s", oldDir)
	}
	return nil
}

func init() {
	slugShowCmd.Flags().BoolVar(&slugKeepSubtitle, "keep-subtitle", false, "keep the subtitle in the generated slug")
	slugRegenerateCmd.Flags().BoolVar(&slugKeepSubtitle, "keep-subtitle", false, "keep the subtitle in the generated slug")
	slugCmd.AddCommand(slugShowCmd)
	slugCmd.AddCommand(slugRenameCmd)
	slugCmd.AddCommand(slugRegenerateCmd)
	rootCmd.AddCommand(slugCmd)
}
