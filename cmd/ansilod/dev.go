package main

import "github.com/spf13/cobra"

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Boot the node with interactive status output",
	Long:  `dev behaves exactly like run, but prints a boot spinner, a catalog summary table, the listen addresses and a shutdown notice — for a terminal, not a supervised process.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAndServe(true)
	},
}

func init() {
	rootCmd.AddCommand(devCmd)
}
