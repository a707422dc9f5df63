package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adwhq/adw-orchestrator/internal/config"
	"github.com/adwhq/adw-orchestrator/internal/exitcode"
	"github.com/adwhq/adw-orchestrator/internal/sequencer"
	"github.com/adwhq/adw-orchestrator/internal/trackeradapter"
	"github.com/adwhq/adw-orchestrator/internal/worktree"
	"github.com/adwhq/adw-orchestrator/pkg/console"
)

func newRunCmd() *cobra.Command {
	var (
		runID      string
		baseBranch string
		phaseCmds  []string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:     "run <work-item-id>",
		Short:   "Run the phase sequence once for a work item, synchronously",
		Args:    cobra.ExactArgs(1),
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

			id := runID
			if id == "" {
				id, err = worktree.NewRunID(repoRoot)
				if err != nil {
					return err
				}
			}

			phases := phasesFromNames(phaseCmds)
			outcome := launchRun(cmd.Context(), cfg, repoRoot, trackeradapter.WorkItem{ID: args[0]}, id, phases)

			if !asJSON && exitcode.IsValidationFailure(outcome.Code) {
				fmt.Fprint(os.Stderr, console.FormatValidationSummary(validationResultsFor(outcome), false))
			}

			if err := console.OutputStructOrJSON(outcome, asJSON); err != nil {
				return err
			}
			if outcome.State != sequencer.StateSucceeded {
				os.Exit(int(outcome.Code))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "run identifier to use (default: generated)")
	cmd.Flags().StringVar(&baseBranch, "base", "", "base branch to cut the worktree from")
	cmd.Flags().StringSliceVar(&phaseCmds, "phase", nil, "phase command in name=executable form, repeatable, in execution order")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the outcome as JSON")

	return cmd
}

// validationCategories maps the review-phase exit-code taxonomy onto the
// category labels console.FormatValidationSummary groups by.
var validationCategories = map[exitcode.Code]string{
	exitcode.ValidationBlockersDetected: "review",
	exitcode.ValidationTestsFailed:      "test",
	exitcode.ValidationLintFailed:       "lint",
	exitcode.ValidationTypecheckFailed:  "typecheck",
	exitcode.ValidationSecurityIssue:    "security",
}

// validationResultsFor renders a failed review-phase outcome as a single
// ValidationError. Phase scripts only report one exit code per run, so this
// is always a one-error summary, but it still exercises the shared category
// grouping and severity formatting console.FormatValidationSummary provides.
func validationResultsFor(outcome sequencer.Outcome) *console.ValidationResults {
	category := validationCategories[outcome.Code]
	if category == "" {
		category = "review"
	}
	return &console.ValidationResults{
		Errors: []console.ValidationError{{
			Category: category,
			Severity: "critical",
			Message:  exitcode.Description(outcome.Code),
			File:     outcome.FailedPhase,
			Hint:     outcome.Message,
		}},
	}
}
