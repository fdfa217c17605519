package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bookish/bibliographer/internal/config"
)

var (
	cfg         *config.Config
	configPath  string
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "bibliographer",
	Short: "Maintain a reading library's metadata and site output",
	Long: "Retrieves purchase records from Audible, Kindle, Libro.fm, and Raindrop, " +
		"enriches them with identifiers from Google Books, OpenLibrary, Amazon, and Wikipedia, " +
		"and materializes one directory per book for a static site.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		if verboseFlag {
			cfg.Verbose = true
		}

		if err := config.InitLogger(cfg.Verbose); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the TOML config file (default: nearest .bibliographer.toml)")
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "enable debug logging")
}
