package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/adwhq/adw-orchestrator/internal/sequencer"
	"github.com/adwhq/adw-orchestrator/internal/worktree"
)

// newPhaseCmd invokes exactly one phase against an existing worktree, for
// operators debugging a stuck run without replaying the whole sequence.
func newPhaseCmd() *cobra.Command {
	var (
		baseBranch      string
		commitsExpected bool
	)

	cmd := &cobra.Command{
		Use:     "phase <name> <executable> <work-item-id> <run-id>",
		Short:   "Invoke a single phase directly, creating its worktree if run-id is new",
		Args:    cobra.ExactArgs(4),
		GroupID: "operate",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, executable, workItemID, runID := args[0], args[1], args[2], args[3]

			repoRoot, err := os.Getwd()
			if err != nil {
				return err
			}

			wt := &worktree.Worktree{
				Path:          filepath.Join(repoRoot, worktree.TreesDirName, runID),
				FeatureBranch: "adw/" + runID,
				BaseBranch:    baseBranch,
			}
			if _, statErr := os.Stat(wt.Path); os.IsNotExist(statErr) {
				wt, err = worktree.EnsureWorktree(repoRoot, runID, baseBranch)
				if err != nil {
					return fmt.Errorf("resolve worktree for run %s: %w", runID, err)
				}
			}

			phase := sequencer.Phase{Name: name, Command: executable, CommitsExpected: commitsExpected}
			rc := sequencer.RunContext{
				WorkItemID:    workItemID,
				RunID:         runID,
				RepoRoot:      repoRoot,
				WorktreePath:  wt.Path,
				FeatureBranch: wt.FeatureBranch,
				BaseBranch:    wt.BaseBranch,
			}

			sink, err := sequencer.NewDefaultSink(filepath.Join(repoRoot, worktree.TreesDirName, "token-events"), runID)
			if err != nil {
				return fmt.Errorf("open token event log for run %s: %w", runID, err)
			}
			defer sink.Close()

			code, err := sequencer.RunSinglePhase(cmd.Context(), phase, rc, sink, nil)
			if err != nil {
				return fmt.Errorf("phase %s: %w", name, err)
			}

			if summary := sink.Summary(); summary != "" {
				fmt.Fprintln(cmd.OutOrStdout(), summary)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "phase %s exited %d\n", name, code)
			if code != 0 {
				os.Exit(int(code))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&baseBranch, "base", "", "base branch to cut the worktree from if it does not already exist")
	cmd.Flags().BoolVar(&commitsExpected, "commits-expected", false, "treat a zero exit with no branch divergence as a failure")

	return cmd
}
