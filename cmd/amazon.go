package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var amazonCmd = &cobra.Command{
	Use:   "amazon",
	Short: "Amazon search cache commands",
}

var amazonRequeryCmd = &cobra.Command{
	Use:   "requery <term>...",
	Short: "Re-run searches, replacing their cached ASINs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cat := openCatalog()
		resolvers, err := initResolvers(cat)
		if err != nil {
			return err
		}

		for _, term := range args {
			asin, err := resolvers.ASINBySearch(ctx, term, true)
			if err != nil {
				return eris.Wrapf(err, "requery term %q", term)
			}
			fmt.Printf("%s -> %s\n", term, asin)
		}
		return nil
	},
}

func init() {
	amazonCmd.AddCommand(amazonRequeryCmd)
	rootCmd.AddCommand(amazonCmd)
}
