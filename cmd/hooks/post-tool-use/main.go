// Package main provides the PostToolUse hook entry point. Edit and Write
// tool uses are appended to the impl-status log while a DDD session is
// active, feeding conflict detection on resume.
package main

import (
	"fmt"
	"os"

	"github.com/thebtf/recall/internal/config"
	"github.com/thebtf/recall/internal/orchestrator"
	"github.com/thebtf/recall/pkg/hooks"
)

// Input is the PostToolUse hook input from the host.
type Input struct {
	hooks.BaseInput
	Parameters struct {
		FilePath string `json:"file_path"`
	} `json:"parameters"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	ToolName string `json:"tool_name"`
}

func main() {
	hooks.RunHook("PostToolUse", handlePostToolUse)
}

func handlePostToolUse(_ *hooks.Context, input *Input) (any, error) {
	if input.ToolName != "Edit" && input.ToolName != "Write" {
		return nil, nil
	}
	if input.Parameters.FilePath == "" {
		return nil, nil
	}

	cfg := config.Get()
	manager := orchestrator.NewManager(cfg.ManifestPath(), cfg.CheckpointsDir(), cfg.ImplStatusPath())

	// Tracking is best-effort; a failed append must not break the chain.
	if err := manager.TrackEdit(input.Parameters.FilePath); err != nil {
		fmt.Fprintf(os.Stderr, "[post-tool-use] edit tracking failed: %v\n", err)
		return nil, nil
	}

	if manager.IsSessionActive() {
		fmt.Fprintf(os.Stderr, "[post-tool-use] modification logged: %s\n", input.Parameters.FilePath)
	}

	return nil, nil
}
