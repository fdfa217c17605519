package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var googlebooksCmd = &cobra.Command{
	Use:   "googlebooks",
	Short: "Google Books cache commands",
}

var googlebooksRequeryCmd = &cobra.Command{
	Use:   "requery <volume-id>...",
	Short: "Re-fetch volumes, replacing their cached records",
	Long: "Forces a live lookup for each volume ID and overwrites the cached record, " +
		"for when Google has fixed bad metadata since the first fetch.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cat := openCatalog()
		resolvers, err := initResolvers(cat)
		if err != nil {
			return err
		}

		for _, volumeID := range args {
			vol, err := resolvers.VolumeByID(ctx, volumeID, true)
			if err != nil {
				return eris.Wrapf(err, "requery volume %s", volumeID)
			}
			fmt.Printf("%s: %s (isbn13 %s)\n", vol.ID, vol.Title, vol.ISBN13)
		}
		return nil
	},
}

func init() {
	googlebooksCmd.AddCommand(googlebooksRequeryCmd)
	rootCmd.AddCommand(googlebooksCmd)
}
