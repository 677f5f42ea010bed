package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/prefcanon/internal/schema"
)

// Actual version can be specified in build command.
var version = "unknown"

type versionOutput struct {
	App        string `json:"app"`
	Version    string `json:"version"`
	Categories int    `json:"builtin_categories"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	RunE: func(_ *cobra.Command, _ []string) error {
		if !viper.GetBool("json") {
			fmt.Printf("%s version: %s\n", app, version)
			return nil
		}

		builtin, err := schema.Default()
		if err != nil {
			return err
		}

		return printJSON(versionOutput{
			App:        app,
			Version:    version,
			Categories: len(builtin.Names()),
		})
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
