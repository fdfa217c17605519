package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bookish/bibliographer/pkg/raindrop"
)

var raindropCmd = &cobra.Command{
	Use:   "raindrop",
	Short: "Raindrop highlight commands",
}

var raindropRetrieveCmd = &cobra.Command{
	Use:   "retrieve",
	Short: "Fetch all Raindrop highlights into the local cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("raindrop"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		token, err := cfg.RaindropBearerToken()
		if err != nil {
			return err
		}

		highlights, err := raindrop.NewClient(token).Highlights(ctx)
		if err != nil {
			return eris.Wrap(err, "retrieve raindrop highlights")
		}

		if err := openCatalog().RaindropHighlights.MergeAndSave(highlights); err != nil {
			return eris.Wrap(err, "save raindrop highlights")
		}

		zap.L().Info("raindrop highlights retrieved", zap.Int("highlights", len(highlights)))
		fmt.Printf("retrieved %d raindrop highlights\n", len(highlights))
		return nil
	},
}

func init() {
	raindropCmd.AddCommand(raindropRetrieveCmd)
	rootCmd.AddCommand(raindropCmd)
}
