// Package sequencer runs an ordered list of phase scripts for one WorkflowRun,
// stopping at the first non-zero exit code and forwarding that code and the
// failing phase name to the caller.
package sequencer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/adwhq/adw-orchestrator/internal/exitcode"
	"github.com/adwhq/adw-orchestrator/internal/phaseproto"
	"github.com/adwhq/adw-orchestrator/internal/worktree"
	"github.com/adwhq/adw-orchestrator/pkg/logger"
)

var log = logger.New("sequencer")

// Phase names a single externally-invoked step. When CommitsExpected is true
// and the phase exits 0 but the feature branch has not diverged from base,
// the sequencer overrides the outcome to ExecAgentFailed: the agent reported
// success without producing any changes.
type Phase struct {
	Name            string
	Command         string
	Args            []string
	CommitsExpected bool
}

// RunContext carries the identifiers and repository coordinates every phase
// subprocess receives as positional args and environment variables.
type RunContext struct {
	WorkItemID         string
	RunID              string
	RepoRoot           string
	WorktreePath       string
	FeatureBranch      string
	BaseBranch         string
	OrchestratorActive bool
}

// State is the per-run state machine position.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateSucceeded
	StateFailed
)

// Outcome is the terminal result of a run: the final state, the failing phase
// (if any), and the categorised code that ended the run.
type Outcome struct {
	State       State
	FailedPhase string
	Code        exitcode.Code
	Message     string
}

// Run executes phases in order against ctx, stopping at the first non-zero
// exit code. It performs no retries — retry policy belongs to the caller (C5)
// or to the phase script itself.
func Run(pctx context.Context, phases []Phase, rc RunContext, sink phaseproto.EventSink, logOut *os.File) Outcome {
	for _, phase := range phases {
		log.Printf("run %s: starting phase %s", rc.RunID, phase.Name)

		code, err := runPhase(pctx, phase, rc, sink, logOut)
		if err != nil {
			log.Printf("run %s: phase %s errored before producing an exit code: %v", rc.RunID, phase.Name, err)
			return Outcome{State: StateFailed, FailedPhase: phase.Name, Code: exitcode.ExecUnexpectedError, Message: err.Error()}
		}

		if code == exitcode.Success && phase.CommitsExpected && rc.WorktreePath != "" {
			if !worktree.BranchDiffersFromBase(rc.FeatureBranch, rc.BaseBranch, rc.WorktreePath) {
				log.Printf("run %s: phase %s reported success but branch did not diverge from base; overriding to agent-failed", rc.RunID, phase.Name)
				return Outcome{
					State:       StateFailed,
					FailedPhase: phase.Name,
					Code:        exitcode.ExecAgentFailed,
					Message:     exitcode.Description(exitcode.ExecAgentFailed),
				}
			}
		}

		if code != exitcode.Success {
			return Outcome{State: StateFailed, FailedPhase: phase.Name, Code: code, Message: exitcode.Description(code)}
		}
	}

	return Outcome{State: StateSucceeded, Code: exitcode.Success}
}

// RunSinglePhase invokes exactly one phase and returns its exit code, for
// operators debugging a stuck run without replaying the whole sequence.
func RunSinglePhase(pctx context.Context, phase Phase, rc RunContext, sink phaseproto.EventSink, logOut *os.File) (exitcode.Code, error) {
	return runPhase(pctx, phase, rc, sink, logOut)
}

func runPhase(pctx context.Context, phase Phase, rc RunContext, sink phaseproto.EventSink, logOut *os.File) (exitcode.Code, error) {
	args := append(append([]string{}, phase.Args...), rc.WorkItemID, rc.RunID)
	cmd := exec.CommandContext(pctx, phase.Command, args...)
	cmd.Dir = rc.WorktreePath
	if cmd.Dir == "" {
		cmd.Dir = rc.RepoRoot
	}
	cmd.Env = append(os.Environ(),
		"ADW_WORK_ITEM_ID="+rc.WorkItemID,
		"ADW_RUN_ID="+rc.RunID,
		"ADW_REPO_ROOT="+rc.RepoRoot,
		"ADW_WORKTREE_PATH="+rc.WorktreePath,
		"ADW_FEATURE_BRANCH="+rc.FeatureBranch,
		"ADW_BASE_BRANCH="+rc.BaseBranch,
		"ADW_PHASE="+phase.Name,
		"ADW_ORCHESTRATOR_ACTIVE="+strconv.FormatBool(rc.OrchestratorActive),
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("attach stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start phase %s: %w", phase.Name, err)
	}

	var out *os.File
	if logOut != nil {
		out = logOut
	} else {
		out = os.Stdout
	}
	if scanErr := phaseproto.ScanStdout(stdout, sink, out); scanErr != nil {
		log.Printf("run %s: error scanning phase %s stdout: %v", rc.RunID, phase.Name, scanErr)
	}

	waitErr := cmd.Wait()
	if waitErr == nil {
		return exitcode.Success, nil
	}

	var exitErr *exec.ExitError
	if ok := asExitError(waitErr, &exitErr); ok {
		return exitcode.Code(exitErr.ExitCode()), nil
	}

	return 0, fmt.Errorf("wait for phase %s: %w", phase.Name, waitErr)
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}
