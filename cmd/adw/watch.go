package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adwhq/adw-orchestrator/internal/config"
	"github.com/adwhq/adw-orchestrator/internal/dispatcher"
	"github.com/adwhq/adw-orchestrator/internal/exitcode"
	"github.com/adwhq/adw-orchestrator/internal/guard"
	"github.com/adwhq/adw-orchestrator/internal/health"
	"github.com/adwhq/adw-orchestrator/internal/phaseproto"
	"github.com/adwhq/adw-orchestrator/internal/sequencer"
	"github.com/adwhq/adw-orchestrator/internal/trackeradapter"
	ghtracker "github.com/adwhq/adw-orchestrator/internal/trackeradapter/gh"
	"github.com/adwhq/adw-orchestrator/internal/trackeradapter/fallback"
	"github.com/adwhq/adw-orchestrator/internal/worktree"
	"github.com/adwhq/adw-orchestrator/pkg/console"
	"github.com/adwhq/adw-orchestrator/pkg/logger"
)

var watchLog = logger.New("cmd:watch")

func newWatchCmd() *cobra.Command {
	var (
		pollSeconds  int
		triggerToken string
		repo         string
		workerID     string
		healthPort   int
		phaseCmds    []string
	)

	cmd := &cobra.Command{
		Use:     "watch",
		Short:   "Poll the tracker and dispatch work items",
		GroupID: "operate",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if pollSeconds > 0 {
				cfg.PollInterval = time.Duration(pollSeconds) * time.Second
			}
			if triggerToken != "" {
				cfg.TriggerToken = triggerToken
			}
			if repo != "" {
				cfg.RepoSlug = repo
			}
			if workerID != "" {
				cfg.WorkerID = workerID
			}

			primary := ghtracker.New(cfg.RepoSlug)
			secondary := fallback.New(cfg.RepoSlug)

			repoRoot, err := os.Getwd()
			if err != nil {
				return err
			}

			phases := phasesFromNames(phaseCmds)
			launch := func(ctx context.Context, item trackeradapter.WorkItem, runID string) sequencer.Outcome {
				return launchRun(ctx, cfg, repoRoot, item, runID, phases)
			}

			d := dispatcher.New(dispatcher.Config{
				PollInterval: cfg.PollInterval,
				TriggerToken: cfg.TriggerToken,
				WorkerID:     cfg.WorkerID,
				RetryBound:   cfg.RetryBound,
			}, primary, secondary, launch, func(item trackeradapter.WorkItem) (string, error) {
				return worktree.NewRunID(repoRoot)
			})

			var orchestratorActive atomic.Bool
			active, _ := guard.ActiveContext(repoRoot)
			orchestratorActive.Store(active)
			if w, err := guard.WatchState(repoRoot, func(s guard.State) {
				orchestratorActive.Store(s.Active)
			}); err != nil {
				watchLog.Printf("could not watch orchestrator-context state file, proceeding without pause-on-active: %v", err)
			} else {
				defer w.Close()
			}
			d.PauseCheck = orchestratorActive.Load

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if healthPort > 0 {
				startHealthServer(ctx, healthPort, health.Checker{Tracker: primary, RepoRoot: repoRoot})
			}

			fmt.Fprintln(os.Stderr, console.FormatInfoMessage(fmt.Sprintf("adw watch: polling every %s", cfg.PollInterval)))
			d.Run(ctx)
			return nil
		},
	}

	cmd.Flags().IntVar(&pollSeconds, "poll-seconds", 0, "poll interval in seconds (default from config)")
	cmd.Flags().StringVar(&triggerToken, "trigger-token", "", "comment body that re-arms a work item for dispatch")
	cmd.Flags().StringVar(&repo, "repo", "", "owner/repo the dispatcher operates against")
	cmd.Flags().StringVar(&workerID, "worker-id", "", "identity this orchestrator process claims work items under")
	cmd.Flags().IntVar(&healthPort, "health-port", 0, "serve a /healthz endpoint on this port (0 disables)")
	cmd.Flags().StringSliceVar(&phaseCmds, "phase", nil, "phase command in name=executable form, repeatable, in execution order")

	return cmd
}

func phasesFromNames(specs []string) []sequencer.Phase {
	var phases []sequencer.Phase
	for _, s := range specs {
		name, command, ok := splitOnce(s, '=')
		if !ok {
			watchLog.Printf("ignoring malformed --phase value %q, expected name=executable", s)
			continue
		}
		phases = append(phases, sequencer.Phase{Name: name, Command: command, CommitsExpected: name == "build"})
	}
	return phases
}

func splitOnce(s string, sep byte) (before, after string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

func launchRun(ctx context.Context, cfg config.Config, repoRoot string, item trackeradapter.WorkItem, runID string, phases []sequencer.Phase) sequencer.Outcome {
	wt, err := worktree.EnsureWorktree(repoRoot, runID, cfg.BaseBranch)
	if err != nil {
		watchLog.Printf("worktree creation failed for run %s: %v", runID, err)
		return sequencer.Outcome{State: sequencer.StateFailed, Code: exitcode.BlockerMissingWorktree, Message: err.Error()}
	}

	rc := sequencer.RunContext{
		WorkItemID:         item.ID,
		RunID:              runID,
		RepoRoot:           repoRoot,
		WorktreePath:       wt.Path,
		FeatureBranch:      wt.FeatureBranch,
		BaseBranch:         wt.BaseBranch,
		OrchestratorActive: false,
	}

	sink, err := sequencer.NewDefaultSink(filepath.Join(repoRoot, worktree.TreesDirName, "token-events"), runID)
	if err != nil {
		watchLog.Printf("could not open token event log for run %s, usage events will not be recorded: %v", runID, err)
		sink = nil
	}

	var eventSink phaseproto.EventSink = phaseproto.EventSinkFunc(func(phaseproto.TokenUsageEvent) {})
	if sink != nil {
		eventSink = sink
	}

	outcome := sequencer.Run(ctx, phases, rc, eventSink, nil)
	worktree.ReleaseWorktree(wt.Path)

	if sink != nil {
		if summary := sink.Summary(); summary != "" {
			fmt.Fprintln(os.Stderr, summary)
		}
		if err := sink.Close(); err != nil {
			watchLog.Printf("could not close token event log for run %s: %v", runID, err)
		}
	}

	return outcome
}

func startHealthServer(ctx context.Context, port int, checker health.Checker) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		report := checker.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if !report.OK {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			watchLog.Printf("health server stopped: %v", err)
		}
	}()
}
