// Package sessionend handles the host's session-end event: register the
// transcript and start an extraction worker unless one is already live.
package sessionend

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/recall/internal/registry"
	"github.com/thebtf/recall/internal/watchdog"
)

// Result reports what happened for a session-end event.
type Result struct {
	Message           string `json:"message"`
	Success           bool   `json:"success"`
	ExtractionStarted bool   `json:"extraction_started"`
}

// Handle registers the transcript and starts extraction if no worker is
// running. Failures are reported, never raised; the hook chain must
// survive them.
func Handle(reg *registry.Registry, wd *watchdog.Watchdog, sessionID, transcriptPath string) Result {
	log.Info().Str("sessionId", sessionID).Str("transcript", transcriptPath).Msg("Session end")

	if _, err := os.Stat(transcriptPath); err != nil {
		return Result{
			Success: false,
			Message: fmt.Sprintf("Transcript file not found: %s", transcriptPath),
		}
	}

	if err := reg.Add(sessionID, transcriptPath); err != nil {
		return Result{
			Success: false,
			Message: fmt.Sprintf("Failed to register transcript: %v", err),
		}
	}

	status, err := wd.CurrentStatus()
	if err != nil {
		return Result{
			Success: false,
			Message: fmt.Sprintf("Transcript registered but status check failed: %v", err),
		}
	}
	if status.Status == watchdog.StatusRunning {
		return Result{
			Success: true,
			Message: fmt.Sprintf("Transcript registered. Extraction already in progress (PID: %d)", status.Pid),
		}
	}

	started, err := wd.Start(filepath.Dir(transcriptPath))
	if err != nil {
		return Result{
			Success: false,
			Message: fmt.Sprintf("Transcript registered but failed to start extraction: %v", err),
		}
	}
	if started {
		return Result{
			Success:           true,
			Message:           "Transcript registered and extraction started",
			ExtractionStarted: true,
		}
	}

	return Result{Success: true, Message: "Transcript registered"}
}
