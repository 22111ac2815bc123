// Package watchdog supervises the extraction worker process: it spawns the
// worker detached, tracks its liveness by pid, reports status, and handles
// stop and state cleanup. The watchdog never restarts a crashed worker on
// its own; recovery is an operator decision.
package watchdog

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/recall/internal/registry"
	"github.com/thebtf/recall/internal/state"
)

// Reported statuses.
const (
	StatusIdle      = "idle"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCrashed   = "crashed"
)

var (
	// ErrWorkerDiedImmediately reports a worker that exited within the
	// startup grace window.
	ErrWorkerDiedImmediately = errors.New("worker process died immediately after start")

	// ErrWorkerRunning reports an operation refused while a worker is live.
	ErrWorkerRunning = errors.New("extraction worker is running")
)

const (
	// startGrace is the wait before verifying the spawned worker survived.
	startGrace = 500 * time.Millisecond

	// stopTimeout bounds the graceful-stop poll before escalating.
	stopTimeout = 5 * time.Second

	// stopPollInterval is the liveness poll cadence during stop.
	stopPollInterval = 100 * time.Millisecond
)

// Status reports the extraction process state.
type Status struct {
	Status               string `json:"status"`
	StartedAt            string `json:"started_at,omitempty"`
	Pid                  int    `json:"pid,omitempty"`
	TranscriptsTotal     int    `json:"transcripts_total"`
	TranscriptsCompleted int    `json:"transcripts_completed"`
	MemoriesExtracted    int    `json:"memories_extracted"`
}

// Watchdog owns the worker process lifecycle. The process-facing operations
// (spawn, liveness, terminate) are injectable so the lifecycle logic is
// testable without real subprocesses.
type Watchdog struct {
	Registry *registry.Registry
	State    *state.Tracker

	alive     func(pid int) bool
	spawn     func(transcriptsDir string) (int, error)
	terminate func(pid int) error
	kill      func(pid int) error
	sleep     func(d time.Duration)
}

// New returns a watchdog with the default process control implementation.
func New(reg *registry.Registry, tracker *state.Tracker) *Watchdog {
	return &Watchdog{
		Registry:  reg,
		State:     tracker,
		alive:     processAlive,
		spawn:     spawnWorker,
		terminate: terminateProcess,
		kill:      killProcess,
		sleep:     time.Sleep,
	}
}

// CurrentStatus derives the extraction status from persisted state and
// process liveness.
func (w *Watchdog) CurrentStatus() (Status, error) {
	s, err := w.State.Load()
	if err != nil {
		return Status{}, err
	}
	if s == nil {
		return Status{Status: StatusIdle}, nil
	}

	filled := func(status string, pid int) Status {
		return Status{
			Status:               status,
			Pid:                  pid,
			StartedAt:            s.StartedAt,
			TranscriptsTotal:     len(s.Transcripts),
			TranscriptsCompleted: s.CompletedCount(),
			MemoriesExtracted:    s.MemoriesTotal(),
		}
	}

	if s.Pid != 0 {
		if w.alive(s.Pid) {
			return filled(StatusRunning, s.Pid), nil
		}
		if s.Status == state.StatusRunning {
			// Process died while state says running: a crash.
			return filled(StatusCrashed, 0), nil
		}
	}

	switch s.Status {
	case state.StatusCompleted:
		return filled(StatusCompleted, 0), nil
	case state.StatusCompletedWithErrors:
		return filled(StatusFailed, 0), nil
	}

	return Status{Status: StatusIdle}, nil
}

// Start spawns the worker if none is running and there is work. Returns
// false without error when refused (worker live, or nothing to process);
// returns ErrWorkerDiedImmediately when the child does not survive the
// grace window.
func (w *Watchdog) Start(transcriptsDir string) (bool, error) {
	current, err := w.CurrentStatus()
	if err != nil {
		return false, err
	}
	if current.Status == StatusRunning {
		log.Warn().Int("pid", current.Pid).Msg("Extraction already running")
		return false, nil
	}

	unprocessed, err := w.Registry.Unprocessed()
	if err != nil {
		return false, err
	}
	if len(unprocessed) == 0 {
		log.Info().Msg("No unprocessed transcripts to extract")
		return false, nil
	}

	log.Info().Int("transcripts", len(unprocessed)).Msg("Starting extraction worker")

	transcripts := make([]state.TranscriptState, 0, len(unprocessed))
	for _, t := range unprocessed {
		transcripts = append(transcripts, state.TranscriptState{ID: t.SessionID, Status: state.TranscriptPending})
	}
	if err := w.State.Save(&state.ExtractionState{
		Status:      state.StatusRunning,
		StartedAt:   time.Now().Format(time.RFC3339),
		Transcripts: transcripts,
	}); err != nil {
		return false, err
	}

	pid, err := w.spawn(transcriptsDir)
	if err != nil {
		return false, fmt.Errorf("spawn extraction worker: %w", err)
	}

	if err := w.State.SetPid(pid); err != nil {
		return false, err
	}

	log.Info().Int("pid", pid).Msg("Extraction worker started")

	// Grace window: a worker that dies this fast never started properly.
	w.sleep(startGrace)
	if !w.alive(pid) {
		return false, ErrWorkerDiedImmediately
	}

	return true, nil
}

// Stop gracefully terminates a running worker, escalating to a forceful
// kill after the stop timeout. Returns false when no worker is running; a
// process that is already gone counts as stopped.
func (w *Watchdog) Stop() (bool, error) {
	current, err := w.CurrentStatus()
	if err != nil {
		return false, err
	}
	if current.Status != StatusRunning {
		log.Info().Msg("No extraction process running")
		return false, nil
	}
	if current.Pid == 0 {
		log.Warn().Msg("Status says running but no PID found")
		return false, nil
	}

	log.Info().Int("pid", current.Pid).Msg("Stopping extraction process")

	if err := w.terminate(current.Pid); err == nil {
		deadline := int(stopTimeout / stopPollInterval)
		stopped := false
		for i := 0; i < deadline; i++ {
			if !w.alive(current.Pid) {
				stopped = true
				break
			}
			w.sleep(stopPollInterval)
		}
		if !stopped {
			log.Warn().Msg("Process didn't stop gracefully, forcing kill")
			if err := w.kill(current.Pid); err != nil {
				return false, fmt.Errorf("kill worker %d: %w", current.Pid, err)
			}
		}
	}

	if err := w.State.Finish(state.StatusCancelled); err != nil {
		return false, err
	}
	return true, nil
}

// Cleanup removes the state document. Refused (false) while the worker is
// running.
func (w *Watchdog) Cleanup() (bool, error) {
	current, err := w.CurrentStatus()
	if err != nil {
		return false, err
	}
	if current.Status == StatusRunning {
		log.Warn().Msg("Cannot cleanup while extraction is running")
		return false, nil
	}

	if err := w.State.Clear(); err != nil {
		return false, err
	}
	return true, nil
}

// ForceCleanup stops a running worker first, then clears state. Reports
// whether a worker was stopped.
func (w *Watchdog) ForceCleanup() (bool, error) {
	current, err := w.CurrentStatus()
	if err != nil {
		return false, err
	}

	stopped := false
	if current.Status == StatusRunning {
		stopped, err = w.Stop()
		if err != nil {
			return false, err
		}
	}

	if _, err := w.Cleanup(); err != nil {
		return stopped, err
	}
	return stopped, nil
}

// CleanupRecommendations suggests operator actions for the current status.
func (w *Watchdog) CleanupRecommendations() ([]string, error) {
	current, err := w.CurrentStatus()
	if err != nil {
		return nil, err
	}

	switch current.Status {
	case StatusIdle:
		return nil, nil
	case StatusRunning:
		return []string{
			"Wait for extraction to complete",
			"Or force-cleanup to stop and clean up",
		}, nil
	case StatusCompleted:
		return []string{
			"Run cleanup to remove the state file",
			"This allows starting fresh extractions",
		}, nil
	case StatusFailed:
		return []string{
			"Review logs for errors",
			"Run cleanup to remove the state file",
			"Fix any issues before re-running extraction",
		}, nil
	case StatusCrashed:
		return []string{
			"Review logs for crash details",
			"Run cleanup to remove stale state",
			"Investigate crash cause before re-running",
		}, nil
	}
	return []string{"Check extraction logs"}, nil
}
