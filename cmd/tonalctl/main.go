// Command tonalctl is the engine's entry point: run with no subcommand
// (or "serve") it boots the Engine and blocks until signalled; any other
// subcommand dispatches one CLI message (spec.md §6: status, help,
// reload, stop, sniffer) against a freshly built Engine and exits.
//
// A single binary, combining serve-or-CLI dispatch via cobra subcommands
// instead of a hand-rolled os.Args switch.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"tallhat.dev/tonal/internal/obslog"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tonalctl",
	Short: "tonalctl runs or controls a tonal engine instance",
	Long: `tonalctl is the software-PBX engine's entry point.

Run with no subcommand to start the engine in the foreground. The other
subcommands (status, help, reload, stop, sniffer) build the matching
engine.command message and dispatch it against a freshly constructed
engine using the same configuration, printing the result.`,
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the engine config file (optional)")
	rootCmd.AddCommand(statusCmd, helpCmd, reloadCmd, stopCmd, snifferCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	log := obslog.Default()

	eng, _, cleanup, err := buildEngine(configPath, log)
	if err != nil {
		return fmt.Errorf("tonalctl: init: %w", err)
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Infof("tonalctl: shutting down")
		cancel()
	}()

	return eng.Run(ctx)
}
