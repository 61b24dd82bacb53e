package cmd

import (
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:          "plsqlcat",
		Short:        "plsqlcat",
		SilenceUsage: true,
		Long:         `CLI tool that catalogs PL/SQL source trees: packages, procedures, functions, triggers, their signatures and outbound calls, into a queryable SQLite store.`,
	}

	configFile string
)

// Execute executes the root command.
func Execute() error {
	rootCmd.PersistentFlags().StringVar(&configFile, "config-file", "", "path to a TOML config file; explicitly set flags take precedence over its values")
	return rootCmd.Execute()
}

func init() {}
