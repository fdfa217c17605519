package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bookish/bibliographer/pkg/audible"
)

var audibleCmd = &cobra.Command{
	Use:   "audible",
	Short: "Audible library commands",
}

var audibleRetrieveCmd = &cobra.Command{
	Use:   "retrieve",
	Short: "Fetch the Audible library into the local cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("audible"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		token, err := cfg.AudibleBearerToken()
		if err != nil {
			return err
		}

		books, err := audible.NewClient(token).Library(ctx)
		if err != nil {
			return eris.Wrap(err, "retrieve audible library")
		}

		if err := mergeLibrary(openCatalog().AudibleLibrary, books); err != nil {
			return eris.Wrap(err, "save audible library")
		}

		zap.L().Info("audible library retrieved", zap.Int("books", len(books)))
		fmt.Printf("retrieved %d audible books\n", len(books))
		return nil
	},
}

func init() {
	audibleCmd.AddCommand(audibleRetrieveCmd)
	rootCmd.AddCommand(audibleCmd)
}
