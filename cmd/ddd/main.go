// Package main is the orchestrator CLI: session-aware, checkpointed
// execution of an implementation plan.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/recall/internal/config"
	"github.com/thebtf/recall/internal/orchestrator"
	"github.com/thebtf/recall/internal/plan"
)

var cli struct {
	Start         StartCmd      `cmd:"" help:"Start a new implementation session."`
	Resume        ResumeCmd     `cmd:"" help:"Resume from the latest checkpoint."`
	Status        StatusCmd     `cmd:"" help:"Show current session status."`
	CheckpointNow CheckpointCmd `cmd:"" name:"checkpoint-now" help:"Create a manual checkpoint."`
}

// StartCmd starts a new session from a code plan.
type StartCmd struct {
	CodePlan string `name:"code-plan" help:"Path to the code plan." default:""`
}

// ResumeCmd resumes from the latest checkpoint.
type ResumeCmd struct{}

// StatusCmd prints session status, optionally re-rendering on changes.
type StatusCmd struct {
	Follow bool `help:"Watch state files and re-render on change."`
}

// CheckpointCmd creates a manual checkpoint.
type CheckpointCmd struct{}

func newOrchestrator() *orchestrator.Orchestrator {
	cfg := config.Get()
	manager := orchestrator.NewManager(cfg.ManifestPath(), cfg.CheckpointsDir(), cfg.ImplStatusPath())
	return orchestrator.New(manager, cfg.PlanPath, cfg.AgentsDir, cfg.MaxTokens)
}

// Run starts a new session and drives the loop to completion or handoff.
func (c *StartCmd) Run() error {
	return newOrchestrator().Run(c.CodePlan, false)
}

// Run resumes the session from the latest checkpoint.
func (c *ResumeCmd) Run() error {
	return newOrchestrator().Run("", true)
}

// Run prints the status report.
func (c *StatusCmd) Run() error {
	o := newOrchestrator()

	if err := printStatus(o); err != nil {
		return err
	}
	if !c.Follow {
		return nil
	}
	return followStatus(o)
}

func printStatus(o *orchestrator.Orchestrator) error {
	report, err := o.Status()
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("DDD SESSION STATUS")
	if report.SessionID == "" {
		fmt.Println("No active session")
		fmt.Println()
		return nil
	}

	active := "no"
	if report.Active {
		active = "yes"
	}
	fmt.Printf("Active: %s\n", active)
	fmt.Printf("Session ID: %s\n", report.SessionID)
	if report.TotalChunks > 0 {
		fmt.Printf("Progress: %d/%d chunks (%.1f%%)\n",
			report.CompletedChunks, report.TotalChunks,
			float64(report.CompletedChunks)/float64(report.TotalChunks)*100)
	}
	if report.CurrentChunk != "" {
		fmt.Printf("Current chunk: %s\n", report.CurrentChunk)
	}
	fmt.Printf("Budget: %s (%d tokens used)\n", report.BudgetStatus, report.TokensUsed)
	fmt.Println()
	return nil
}

// followStatus re-renders the status whenever the manifest or impl-status
// log changes.
func followStatus(o *orchestrator.Orchestrator) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the state directory: the files themselves are replaced on
	// every save, so per-file watches would go stale.
	stateDir := filepath.Dir(o.Manager.ManifestPath)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return err
	}
	if err := watcher.Add(stateDir); err != nil {
		return fmt.Errorf("watch %s: %w", stateDir, err)
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			if name != filepath.Base(o.Manager.ManifestPath) && name != filepath.Base(o.Manager.ImplStatusPath) {
				continue
			}
			if err := printStatus(o); err != nil {
				log.Warn().Err(err).Msg("Failed to render status")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Watcher error")
		}
	}
}

// Run creates a manual checkpoint for the current session.
func (c *CheckpointCmd) Run() error {
	o := newOrchestrator()

	if !o.Manager.IsSessionActive() {
		return fmt.Errorf("no active DDD session")
	}

	checkpoint, err := o.Manager.ManualCheckpoint()
	if err != nil {
		return err
	}
	fmt.Printf("Manual checkpoint created: %s\n", checkpoint.CheckpointID)
	return nil
}

func main() {
	_ = godotenv.Load()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx := kong.Parse(&cli,
		kong.Name("ddd"),
		kong.Description("Session-aware, checkpointed plan execution."),
		kong.UsageOnError(),
	)

	if err := ctx.Run(); err != nil {
		// Handoff is an orderly exit; operator and validation errors are
		// distinguishable from crashes.
		var depErr *orchestrator.DependencyError
		switch {
		case errors.As(err, &depErr),
			errors.Is(err, plan.ErrNoChunks),
			errors.Is(err, orchestrator.ErrConflicts):
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		default:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
	}
}
