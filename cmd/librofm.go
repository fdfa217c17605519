package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bookish/bibliographer/pkg/librofm"
)

var librofmCmd = &cobra.Command{
	Use:   "librofm",
	Short: "Libro.fm library commands",
}

var librofmRetrieveCmd = &cobra.Command{
	Use:   "retrieve",
	Short: "Fetch the Libro.fm library into the local cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("librofm"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		password, err := cfg.LibrofmLoginPassword()
		if err != nil {
			return err
		}

		client := librofm.NewClient()
		if _, err := client.Login(ctx, cfg.LibrofmUsername, password); err != nil {
			return eris.Wrap(err, "librofm login")
		}

		books, err := client.Library(ctx)
		if err != nil {
			return eris.Wrap(err, "retrieve librofm library")
		}

		if err := mergeLibrary(openCatalog().LibrofmLibrary, books); err != nil {
			return eris.Wrap(err, "save librofm library")
		}

		zap.L().Info("librofm library retrieved", zap.Int("books", len(books)))
		fmt.Printf("retrieved %d librofm books\n", len(books))
		return nil
	},
}

func init() {
	librofmCmd.AddCommand(librofmRetrieveCmd)
	rootCmd.AddCommand(librofmCmd)
}
