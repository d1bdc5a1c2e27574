package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tallhat.dev/tonal/internal/obslog"
	"tallhat.dev/tonal/internal/wire"
)

// runCommand builds a throwaway Engine from the same config the serve path
// would use, dispatches one engine.command message built from line, prints
// its retval (or error param) and exits nonzero on an unhandled or failed
// command (spec.md §6: "Exit code 0 on clean shutdown; nonzero on fatal
// init failure").
func runCommand(line string) error {
	log := obslog.NewNop()
	eng, disp, cleanup, err := buildEngine(configPath, log)
	if err != nil {
		return fmt.Errorf("tonalctl: init: %w", err)
	}
	defer cleanup()

	msg := wire.New("", "engine.command", eng.Now())
	msg.SetParam("line", line)
	if !disp.Dispatch(msg) {
		return fmt.Errorf("tonalctl: %q: unhandled command", line)
	}
	if errText := msg.GetValue("error", ""); errText != "" {
		fmt.Fprintln(os.Stderr, errText)
		os.Exit(1)
	}
	fmt.Println(msg.RetVal())
	return nil
}

var statusCmd = &cobra.Command{
	Use:   "status [module]",
	Short: "report engine status, optionally scoped to one module",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(strings.TrimSpace("status " + strings.Join(args, " ")))
	},
}

var helpCmd = &cobra.Command{
	Use:   "help [line]",
	Short: "list built-in and plugin-contributed commands",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(strings.TrimSpace("help " + strings.Join(args, " ")))
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "re-run Initialize on every registered plugin",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand("reload")
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "dispatch \"stop\" against a freshly built engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand("stop")
	},
}

var snifferCmd = &cobra.Command{
	Use:   "sniffer on|off|filter <regex>|timer on|off",
	Short: "control the dispatcher post-hook tracer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand("sniffer " + strings.Join(args, " "))
	},
}
