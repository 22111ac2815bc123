// Package main provides the SessionEnd hook entry point: register the
// session's transcript and kick off extraction if no worker is live.
package main

import (
	"fmt"
	"os"

	"github.com/thebtf/recall/internal/config"
	"github.com/thebtf/recall/internal/registry"
	"github.com/thebtf/recall/internal/sessionend"
	"github.com/thebtf/recall/internal/state"
	"github.com/thebtf/recall/internal/watchdog"
	"github.com/thebtf/recall/pkg/hooks"
)

// Input is the SessionEnd hook input from the host.
type Input struct {
	hooks.BaseInput
	Reason string `json:"reason"`
}

func main() {
	hooks.RunHook("SessionEnd", handleSessionEnd)
}

func handleSessionEnd(_ *hooks.Context, input *Input) (any, error) {
	if input.SessionID == "" || input.TranscriptPath == "" {
		fmt.Fprintln(os.Stderr, "[session-end] missing session_id or transcript_path")
		return nil, nil
	}

	cfg := config.Get()
	reg := registry.New(cfg.TranscriptsPath())
	wd := watchdog.New(reg, state.New(cfg.ExtractionStatePath()))

	result := sessionend.Handle(reg, wd, input.SessionID, input.TranscriptPath)
	fmt.Fprintf(os.Stderr, "[session-end] %s\n", result.Message)

	return result, nil
}
