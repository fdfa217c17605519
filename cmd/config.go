package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/bookish/bibliographer/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example .bibliographer.toml in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		const name = ".bibliographer.toml"
		if _, err := os.Stat(name); err == nil {
			return eris.Errorf("%s already exists", name)
		} else if !os.IsNotExist(err) {
			return eris.Wrapf(err, "stat %s", name)
		}

		example, err := config.Example()
		if err != nil {
			return err
		}
		if err := os.WriteFile(name, []byte(example), 0o644); err != nil {
			return eris.Wrapf(err, "write %s", name)
		}

		fmt.Println(name)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
