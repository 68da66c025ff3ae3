package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/config"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Validate configuration and print the resolved catalog",
	Long:  `build loads the node configuration, resolves entities against their data sources and validates the catalog, without starting any network listener. Use it in CI to catch a broken config before deploy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		cat, err := buildCatalog(cfg)
		if err != nil {
			return fmt.Errorf("building catalog: %w", err)
		}

		printCatalogSummary(cat)
		pterm.Success.Printfln("config %s is valid", configPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func printCatalogSummary(cat *catalog.Catalog) {
	rows := pterm.TableData{{"DATA SOURCE", "TYPE"}}
	for _, ds := range cat.DataSources() {
		rows = append(rows, []string{ds.ID, ds.Type})
	}
	pterm.DefaultTable.WithHasHeader().WithData(rows).Render()

	rows = pterm.TableData{{"ENTITY", "DATA SOURCE", "ATTRIBUTES"}}
	for _, e := range cat.Entities() {
		rows = append(rows, []string{e.ID, e.Source.DataSourceID, fmt.Sprintf("%d", len(e.Attributes))})
	}
	pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}
