package main

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "ansilod",
	Short:         "Ansilo data federation node",
	Long:          `ansilod runs an Ansilo node: it federates queries across configured data sources through the Postgres FDW bridge and exposes a REST API for health and stats.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/ansilo.yaml", "path to node configuration file")
}

// Execute runs the CLI, printing a formatted error and exiting non-zero
// on any fatal boot error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}
