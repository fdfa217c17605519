package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is stamped by the release build via -ldflags.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the bibliographer version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("bibliographer " + version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
