// Command adw runs the autonomous development workflow orchestrator: a
// polling dispatcher that claims tracker work items and drives each through
// an ordered list of phase scripts inside an isolated git worktree.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adwhq/adw-orchestrator/pkg/constants"
)

// version is set by the release build; "dev" is the default for local builds.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:     constants.CLIName,
	Short:   "Autonomous development workflow orchestrator",
	Version: version,
	Long: `adw — autonomous development workflow orchestrator

Common tasks:
  adw watch                 # poll the tracker and dispatch work items
  adw run <item-id>          # run the phase sequence once, synchronously
  adw phase <name> <executable> <item-id> <run-id>  # invoke a single phase directly
  adw guard pre-tool-use      # orchestrator-guard hook entrypoint
  adw prune                   # remove worktrees whose branch has no commits beyond base

For detailed help on any command, use:
  adw [command] --help`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: "operate", Title: "Operate:"})
	rootCmd.AddGroup(&cobra.Group{ID: "hooks", Title: "Guard hooks:"})

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose debug logging")
	rootCmd.SetOut(os.Stderr)

	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newPhaseCmd())
	rootCmd.AddCommand(newGuardCmd())
	rootCmd.AddCommand(newPruneCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
