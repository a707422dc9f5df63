// Command adw-phase-claude is a reference phase helper: it wraps an
// invocation of the claude CLI in --output-format stream-json mode,
// forwards the agent's own log lines unchanged, and turns each "usage"
// object the stream emits into a TOKEN_EVENT: line the sequencer's
// phaseproto scanner understands. Any phase script in any language can
// follow the same convention; this one exists so the example --phase
// wiring in cmd/adw has something real to point at.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/adwhq/adw-orchestrator/internal/phaseproto"
	"github.com/adwhq/adw-orchestrator/internal/pricing"
)

// streamEntry models the subset of a claude --output-format stream-json
// line this helper cares about: the usage object attached to result and
// assistant-message entries.
type streamEntry struct {
	Usage *struct {
		InputTokens              int64 `json:"input_tokens"`
		OutputTokens             int64 `json:"output_tokens"`
		CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
		CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	} `json:"usage"`
}

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: adw-phase-claude <agent-command> [args...] <work-item-id> <run-id>")
		os.Exit(2)
	}

	// sequencer.runPhase appends work-item-id and run-id as the final two
	// positional args; everything before that is the agent command line.
	agentArgs := os.Args[1 : len(os.Args)-2]
	if len(agentArgs) == 0 {
		fmt.Fprintln(os.Stderr, "adw-phase-claude: missing agent command")
		os.Exit(2)
	}

	runID := os.Getenv("ADW_RUN_ID")
	phaseName := os.Getenv("ADW_PHASE")

	cmd := exec.Command(agentArgs[0], agentArgs[1:]...)
	cmd.Stderr = os.Stderr
	cmd.Dir = os.Getenv("ADW_WORKTREE_PATH")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		fmt.Fprintf(os.Stderr, "adw-phase-claude: attach stdout pipe: %v\n", err)
		os.Exit(1)
	}

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "adw-phase-claude: start %s: %v\n", agentArgs[0], err)
		os.Exit(1)
	}

	rates := pricing.WithDefaults()
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		var entry streamEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil || entry.Usage == nil {
			fmt.Println(line)
			continue
		}

		u := entry.Usage
		event := phaseproto.TokenUsageEvent{
			RunID:               runID,
			Phase:               phaseName,
			Agent:               agentArgs[0],
			InputTokens:         u.InputTokens,
			OutputTokens:        u.OutputTokens,
			CacheReadTokens:     u.CacheReadInputTokens,
			CacheCreationTokens: u.CacheCreationInputTokens,
			CostUSD:             rates.Cost("default", u.InputTokens, u.OutputTokens, u.CacheReadInputTokens, u.CacheCreationInputTokens),
			Timestamp:           time.Now().UTC(),
		}
		payload, err := json.Marshal(event)
		if err != nil {
			fmt.Fprintf(os.Stderr, "adw-phase-claude: marshal token event: %v\n", err)
			continue
		}
		fmt.Println(phaseproto.TokenEventPrefix + string(payload))
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "adw-phase-claude: read agent stdout: %v\n", err)
	}

	if err := cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "adw-phase-claude: wait for %s: %v\n", agentArgs[0], err)
		os.Exit(1)
	}
}
