package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/adwhq/adw-orchestrator/internal/config"
	"github.com/adwhq/adw-orchestrator/internal/depindex"
	"github.com/adwhq/adw-orchestrator/internal/guard"
	"github.com/adwhq/adw-orchestrator/pkg/logger"
)

var guardLog = logger.New("cmd:guard")

func newGuardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "guard",
		Short:   "Orchestrator-guard hook entrypoints",
		GroupID: "hooks",
	}

	cmd.AddCommand(newGuardPreToolUseCmd())
	cmd.AddCommand(newGuardPromptSubmitCmd())
	cmd.AddCommand(newGuardPreSpawnCmd())

	return cmd
}

func guardRepoRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func guardInjector(cfg config.Config) guard.Injector {
	idx := depindex.New(depindex.Config{
		Command: os.Getenv("ADW_DEPINDEX_CMD"),
		BaseURL: os.Getenv("ADW_DEPINDEX_URL"),
		Timeout: cfg.IndexTimeout,
	})
	return guard.Injector{
		Index:            idx,
		DependentFileCap: cfg.ContextInjectorFileCap,
		MemoryHitLimit:   cfg.MemoryHitLimit,
		AgentFileCap:     cfg.AgentContextFileCap,
	}
}

// newGuardPreToolUseCmd gates file-mutating tools while orchestrator context
// is active, and attaches the dependency/memory advisory for the target file
// when the tool is allowed through.
func newGuardPreToolUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pre-tool-use",
		Short: "Block mutating tools in orchestrator context; inject dependency context otherwise",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := guard.ReadHookInput(os.Stdin)
			repoRoot := in.Cwd
			if repoRoot == "" {
				repoRoot = guardRepoRoot()
			}

			cfg := config.FromEnv()
			active, ctxName := guard.ActiveContext(repoRoot)

			decision := guard.ToolDecision(guard.ToolCall{Name: in.ToolName, Params: in.ToolInput}, active, ctxName)
			if decision.Block {
				return guard.WriteHookOutput(os.Stdout, guard.Block(decision.Message))
			}

			path := guard.FilePathFromToolInput(in.ToolInput)
			if path == "" {
				return guard.WriteHookOutput(os.Stdout, guard.Continue(""))
			}

			ctx, cancel := withGuardTimeout(cfg)
			defer cancel()

			alert, advisory := guardInjector(cfg).PreEdit(ctx, path)
			return guard.WriteHookOutput(os.Stdout, guard.Continue(alert.Text()+advisory.Text()))
		},
	}
}

// newGuardPromptSubmitCmd classifies the submitted prompt against the
// pattern table and persists the resulting orchestrator-context state.
func newGuardPromptSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "user-prompt-submit",
		Short: "Classify a submitted prompt and persist orchestrator-context state",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := guard.ReadHookInput(os.Stdin)
			repoRoot := in.Cwd
			if repoRoot == "" {
				repoRoot = guardRepoRoot()
			}

			cfg := config.FromEnv()
			state, err := guard.ClassifyAndPersist(repoRoot, in.Prompt, cfg.Patterns)
			if err != nil {
				guardLog.Printf("persisting orchestrator context failed: %v", err)
			}

			contextText := ""
			if state.Active {
				contextText = fmt.Sprintf("[orchestrator-context] %s", state.ContextName)
			}
			return guard.WriteHookOutput(os.Stdout, guard.Continue(contextText))
		},
	}
}

// newGuardPreSpawnCmd consolidates dependency context across every file path
// mentioned in a subagent's spawn prompt.
func newGuardPreSpawnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pre-spawn",
		Short: "Attach consolidated dependency context ahead of a subagent spawn",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := guard.ReadHookInput(os.Stdin)
			cfg := config.FromEnv()

			ctx, cancel := withGuardTimeout(cfg)
			defer cancel()

			alerts := guardInjector(cfg).AgentContext(ctx, in.Prompt)
			var text string
			for _, a := range alerts {
				text += a.Text()
			}
			return guard.WriteHookOutput(os.Stdout, guard.Continue(text))
		},
	}
}

func withGuardTimeout(cfg config.Config) (context.Context, context.CancelFunc) {
	timeout := cfg.IndexTimeout
	if timeout <= 0 {
		timeout = depindexDefaultTimeout
	}
	return context.WithTimeout(context.Background(), timeout)
}

const depindexDefaultTimeout = 2 * time.Second
