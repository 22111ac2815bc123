// Package worker runs the extraction pass over every unprocessed transcript.
// It is spawned by the watchdog as a detached child process and is strictly
// sequential: one transcript at a time, triage then extraction then storage,
// with state persisted after every step so a crash loses at most one
// transcript of progress.
package worker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/thebtf/recall/internal/extract"
	"github.com/thebtf/recall/internal/registry"
	"github.com/thebtf/recall/internal/state"
	"github.com/thebtf/recall/internal/ui"
)

// Stats summarizes a worker run. Printed as the final stdout marker so the
// watchdog can capture results.
type Stats struct {
	DurationSeconds      float64 `json:"duration_seconds"`
	TranscriptsProcessed int     `json:"transcripts_processed"`
	MemoriesExtracted    int     `json:"memories_extracted"`
	Errors               int     `json:"errors"`
}

// Worker processes unprocessed transcripts sequentially.
type Worker struct {
	Registry  *registry.Registry
	State     *state.Tracker
	Processor *extract.Processor
	UI        *ui.UI
	Log       *zerolog.Logger
	now       func() time.Time
}

// New returns a worker wired to the given collaborators.
func New(reg *registry.Registry, tracker *state.Tracker, processor *extract.Processor, progress *ui.UI, logger *zerolog.Logger) *Worker {
	return &Worker{
		Registry:  reg,
		State:     tracker,
		Processor: processor,
		UI:        progress,
		Log:       logger,
		now:       time.Now,
	}
}

// Run executes the extraction loop. A single transcript failure is counted
// and skipped; the run only errors on infrastructure failures (stores).
func (w *Worker) Run(ctx context.Context) (Stats, error) {
	start := w.now()

	unprocessed, err := w.Registry.Unprocessed()
	if err != nil {
		return Stats{}, fmt.Errorf("load unprocessed transcripts: %w", err)
	}
	total := len(unprocessed)

	if total == 0 {
		w.Log.Info().Msg("No unprocessed transcripts found")
		return Stats{}, nil
	}

	w.Log.Info().Int("total", total).Msg("Starting extraction")

	transcripts := make([]state.TranscriptState, 0, total)
	for _, t := range unprocessed {
		transcripts = append(transcripts, state.TranscriptState{ID: t.SessionID, Status: state.TranscriptPending})
	}
	if err := w.State.Save(&state.ExtractionState{
		Status:      state.StatusRunning,
		StartedAt:   w.now().Format(time.RFC3339),
		Pid:         os.Getpid(),
		Transcripts: transcripts,
	}); err != nil {
		return Stats{}, err
	}

	var stats Stats

	w.UI.Start()
	defer w.UI.Stop()

	for idx, record := range unprocessed {
		if ctx.Err() != nil {
			// Cancellation is honored between transcripts.
			w.Log.Warn().Msg("Extraction cancelled")
			break
		}

		sessionID := record.SessionID
		w.Log.Info().
			Int("index", idx+1).
			Int("total", total).
			Str("sessionId", sessionID).
			Msg("Processing transcript")

		if err := w.State.UpdateTranscript(sessionID, state.TranscriptInProgress, 0); err != nil {
			w.Log.Warn().Err(err).Msg("Failed to update transcript state")
		}

		progress := ui.Progress{
			TotalTranscripts:     total,
			CompletedTranscripts: stats.TranscriptsProcessed,
			CurrentSessionID:     sessionID,
			CurrentStage:         ui.StageTriage,
			MemoriesExtracted:    stats.MemoriesExtracted,
		}
		w.UI.Update(progress)

		result := w.Processor.Process(ctx, record.TranscriptPath)

		if !result.Success {
			// Never abort the run for a single transcript.
			w.Log.Error().
				Str("sessionId", sessionID).
				Str("error", result.Error).
				Msg("Transcript extraction failed")
			stats.Errors++
			if err := w.State.UpdateTranscript(sessionID, state.TranscriptFailed, 0); err != nil {
				w.Log.Warn().Err(err).Msg("Failed to mark transcript failed")
			}
			continue
		}

		progress.CurrentStage = ui.StageStorage
		progress.MemoriesExtracted = stats.MemoriesExtracted + result.MemoriesExtracted
		w.UI.Update(progress)

		if err := w.Registry.MarkProcessed(sessionID, result.MemoriesExtracted); err != nil {
			w.Log.Warn().Err(err).Msg("Failed to mark transcript processed in registry")
		}
		if err := w.State.UpdateTranscript(sessionID, state.TranscriptCompleted, result.MemoriesExtracted); err != nil {
			w.Log.Warn().Err(err).Msg("Failed to update transcript state")
		}

		stats.MemoriesExtracted += result.MemoriesExtracted
		stats.TranscriptsProcessed++

		w.Log.Info().
			Str("sessionId", sessionID).
			Int("memories", result.MemoriesExtracted).
			Int("done", stats.TranscriptsProcessed).
			Int("total", total).
			Msg("Transcript complete")
	}

	stats.DurationSeconds = w.now().Sub(start).Seconds()
	w.UI.ShowSummary(stats.TranscriptsProcessed, stats.MemoriesExtracted, FormatDuration(stats.DurationSeconds))

	finalStatus := state.StatusCompleted
	if stats.Errors > 0 {
		finalStatus = state.StatusCompletedWithErrors
	}
	if err := w.State.Finish(finalStatus); err != nil {
		return stats, err
	}

	w.Log.Info().
		Int("transcripts", stats.TranscriptsProcessed).
		Int("memories", stats.MemoriesExtracted).
		Int("errors", stats.Errors).
		Msg("Extraction complete")

	return stats, nil
}

// FormatDuration renders seconds as "2m 15s" or "45s".
func FormatDuration(seconds float64) string {
	total := int(seconds)
	if total >= 60 {
		return fmt.Sprintf("%dm %ds", total/60, total%60)
	}
	return fmt.Sprintf("%ds", total)
}
