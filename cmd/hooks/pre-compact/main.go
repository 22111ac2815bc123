// Package main provides the PreCompact hook entry point. Before the host
// compacts its context, an emergency checkpoint is written so the session
// can be resumed from the last known state. Compaction always proceeds.
package main

import (
	"fmt"
	"os"

	"github.com/thebtf/recall/internal/config"
	"github.com/thebtf/recall/internal/orchestrator"
	"github.com/thebtf/recall/pkg/hooks"
)

// Input is the PreCompact hook input from the host.
type Input struct {
	hooks.BaseInput
	Trigger string `json:"trigger"`
}

// Output is the hook response: compaction is never blocked.
type Output struct {
	Metadata       map[string]any `json:"metadata"`
	Continue       bool           `json:"continue"`
	SuppressOutput bool           `json:"suppressOutput"`
}

func main() {
	hooks.RunHook("PreCompact", handlePreCompact)
}

func handlePreCompact(_ *hooks.Context, _ *Input) (any, error) {
	cfg := config.Get()
	manager := orchestrator.NewManager(cfg.ManifestPath(), cfg.CheckpointsDir(), cfg.ImplStatusPath())

	result := manager.PreCompact()

	metadata := map[string]any{"checkpoint_created": result.CheckpointCreated}
	if result.CheckpointID != "" {
		metadata["checkpoint_id"] = result.CheckpointID
	}
	if result.Error != "" {
		metadata["error"] = result.Error
		fmt.Fprintf(os.Stderr, "[pre-compact] emergency checkpoint failed: %s\n", result.Error)
	}

	return Output{Continue: true, SuppressOutput: true, Metadata: metadata}, nil
}
