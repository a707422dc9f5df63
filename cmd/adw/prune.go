package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adwhq/adw-orchestrator/internal/config"
	"github.com/adwhq/adw-orchestrator/internal/worktree"
	"github.com/adwhq/adw-orchestrator/pkg/console"
)

func newPruneCmd() *cobra.Command {
	var (
		baseBranch string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:     "prune",
		Short:   "Remove worktrees whose feature branch never diverged from base",
		GroupID: "operate",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if baseBranch != "" {
				cfg.BaseBranch = baseBranch
			}

			repoRoot, err := os.Getwd()
			if err != nil {
				return err
			}

			stale, err := worktree.Stale(repoRoot, cfg.BaseBranch)
			if err != nil {
				return err
			}
			if len(stale) == 0 {
				fmt.Fprintln(os.Stderr, console.FormatInfoMessage("no stale worktrees found"))
				return nil
			}

			names := make([]string, len(stale))
			for i, wt := range stale {
				names[i] = fmt.Sprintf("%s (%s)", wt.Path, wt.FeatureBranch)
			}
			fmt.Fprintln(os.Stderr, console.FormatListHeader(fmt.Sprintf("%d stale worktree(s):", len(stale))))
			fmt.Fprintln(os.Stderr, console.RenderList(names, "dash"))

			if !yes {
				confirmed, err := console.ConfirmAction(
					"Remove these worktrees and their feature branches?", "Remove", "Keep")
				if err != nil {
					return err
				}
				if !confirmed {
					fmt.Fprintln(os.Stderr, console.FormatWarningMessage("prune cancelled"))
					return nil
				}
			}

			var failed int
			for _, wt := range stale {
				if err := worktree.Remove(repoRoot, wt); err != nil {
					fmt.Fprintln(os.Stderr, console.FormatErrorMessage(err.Error()))
					failed++
					continue
				}
				fmt.Fprintln(os.Stderr, console.FormatSuccessMessage("removed "+wt.Path))
			}
			if failed > 0 {
				return fmt.Errorf("failed to remove %d of %d worktree(s)", failed, len(stale))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&baseBranch, "base", "", "base branch to compare against (default: configured base branch)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "remove without interactive confirmation")

	return cmd
}
