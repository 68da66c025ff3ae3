package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot the node and serve until terminated",
	Long:  `run loads the node configuration, starts the FDW bridge and REST API, and blocks until SIGINT/SIGTERM, shutting every component down in reverse start order.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAndServe(false)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runAndServe boots the node and blocks for a termination signal.
// verbose adds pterm spinner/table output for interactive use (the
// "dev" subcommand); "run" stays log-only, the way the teacher's
// dbbouncer binary never prints decorated output on its production path.
func runAndServe(verbose bool) error {
	var spinner *pterm.SpinnerPrinter
	if verbose {
		spinner, _ = pterm.DefaultSpinner.Start("booting ansilo node")
	}

	rn, err := boot(configPath)
	if err != nil {
		if spinner != nil {
			spinner.Fail(err)
		}
		return err
	}

	if verbose {
		spinner.Success("ansilo node ready")
		printCatalogSummary(rn.cat)
		pterm.Info.Printfln("fdw bridge listening on %s", rn.cfg.FDWBridge.SocketPath)
		pterm.Info.Printfln("rest api listening on %s:%d", rn.cfg.Listen.APIBind, rn.cfg.Listen.APIPort)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	if verbose {
		pterm.Info.Println("shutting down")
	}
	rn.shutdown()
	return nil
}
