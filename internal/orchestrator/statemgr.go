// Package orchestrator coordinates checkpointed plan execution: it owns the
// session manifest, checkpoints, and the impl-status audit log, and drives
// the select/estimate/execute/checkpoint loop over plan chunks.
package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/recall/internal/storage"
)

// Session statuses.
const (
	SessionActive    = "active"
	SessionHandoff   = "handoff"
	SessionCompleted = "completed"
)

// Session is one orchestrator run recorded in the manifest.
type Session struct {
	SessionID       string   `json:"session_id"`
	Started         string   `json:"started"`
	Ended           string   `json:"ended,omitempty"`
	Status          string   `json:"status"`
	ChunksCompleted []string `json:"chunks_completed"`
	TokensUsed      int      `json:"tokens_used"`
}

// Manifest tracks all sessions. CurrentSession names the single active or
// handoff session, or is empty.
type Manifest struct {
	CurrentSession  string    `json:"current_session,omitempty"`
	Sessions        []Session `json:"sessions"`
	CompletedChunks []string  `json:"completed_chunks"`
	TotalChunks     int       `json:"total_chunks"`
}

// FindSession returns a pointer into the manifest's session list, or nil.
func (m *Manifest) FindSession(sessionID string) *Session {
	for i := range m.Sessions {
		if m.Sessions[i].SessionID == sessionID {
			return &m.Sessions[i]
		}
	}
	return nil
}

// Checkpoint is a durable record sufficient to resume a session.
type Checkpoint struct {
	Context       map[string]any `json:"context"`
	CheckpointID  string         `json:"checkpoint_id"`
	Timestamp     string         `json:"timestamp"`
	SessionID     string         `json:"session_id"`
	Chunk         string         `json:"chunk"`
	TestStatus    string         `json:"test_status"`
	FilesModified []string       `json:"files_modified"`
	NextActions   []string       `json:"next_actions"`
}

// Manager persists orchestrator state: manifest, checkpoints, impl-status.
type Manager struct {
	now            func() time.Time
	ManifestPath   string
	CheckpointsDir string
	ImplStatusPath string
}

// NewManager returns a state manager rooted at the given paths.
func NewManager(manifestPath, checkpointsDir, implStatusPath string) *Manager {
	return &Manager{
		ManifestPath:   manifestPath,
		CheckpointsDir: checkpointsDir,
		ImplStatusPath: implStatusPath,
		now:            time.Now,
	}
}

// LoadManifest reads the manifest, returning empty defaults when missing.
func (m *Manager) LoadManifest() (*Manifest, error) {
	manifest := &Manifest{Sessions: []Session{}, CompletedChunks: []string{}}
	if _, err := storage.LoadJSON(m.ManifestPath, manifest); err != nil {
		return nil, fmt.Errorf("corrupted session manifest: %w", err)
	}
	return manifest, nil
}

// SaveManifest writes the manifest, creating the state directory if needed.
func (m *Manager) SaveManifest(manifest *Manifest) error {
	if err := storage.SaveJSON(m.ManifestPath, manifest); err != nil {
		return fmt.Errorf("save session manifest: %w", err)
	}
	return nil
}

// SaveCheckpoint persists a checkpoint document under the checkpoint dir.
func (m *Manager) SaveCheckpoint(c *Checkpoint) error {
	path := filepath.Join(m.CheckpointsDir, c.CheckpointID+".json")
	if err := storage.SaveJSON(path, c); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	log.Info().Str("checkpointId", c.CheckpointID).Msg("Checkpoint created")
	return nil
}

// LoadCheckpoint reads one checkpoint by id.
func (m *Manager) LoadCheckpoint(checkpointID string) (*Checkpoint, error) {
	var c Checkpoint
	found, err := storage.LoadJSON(filepath.Join(m.CheckpointsDir, checkpointID+".json"), &c)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", checkpointID, err)
	}
	if !found {
		return nil, nil
	}
	return &c, nil
}

// LatestCheckpoint returns the checkpoint with the newest timestamp, or nil
// when none exist.
func (m *Manager) LatestCheckpoint() (*Checkpoint, error) {
	entries, err := os.ReadDir(m.CheckpointsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoints: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") || strings.HasSuffix(entry.Name(), ".backup") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
	}
	sort.Strings(names)

	var latest *Checkpoint
	for _, name := range names {
		c, err := m.LoadCheckpoint(name)
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		if latest == nil || c.Timestamp > latest.Timestamp {
			latest = c
		}
	}
	return latest, nil
}

var chunkIDPattern = regexp.MustCompile(`^\d+\.\d+$`)

// UpdateImplStatus appends an event line to the impl-status log, starting a
// new "## Session <id>" section when the session changes.
func (m *Manager) UpdateImplStatus(sessionID, chunk, status string) error {
	timestamp := m.nowISO()

	var entry string
	if chunkIDPattern.MatchString(chunk) {
		entry = fmt.Sprintf("- [%s] Chunk %s (%s)", status, chunk, timestamp)
	} else {
		entry = fmt.Sprintf("- [%s] %s (%s)", status, chunk, timestamp)
	}

	content := ""
	if data, err := os.ReadFile(m.ImplStatusPath); err == nil { // #nosec G304
		content = string(data)
	}

	if content == "" {
		content = "# DDD Implementation Status\n"
	}

	if lastSessionHeader(content) != sessionID {
		content = strings.TrimRight(content, "\n") + fmt.Sprintf("\n\n## Session %s\n\n", sessionID)
	} else {
		content = strings.TrimRight(content, "\n") + "\n"
	}
	content += entry + "\n"

	if err := os.MkdirAll(filepath.Dir(m.ImplStatusPath), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(m.ImplStatusPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("update impl status: %w", err)
	}
	return nil
}

// TrackEdit appends a "- [MODIFIED] <path> (<ts>)" line under the most
// recent session header. Used by the PostToolUse hook; silent when no
// session is active.
func (m *Manager) TrackEdit(filePath string) error {
	if !m.IsSessionActive() {
		return nil
	}

	entry := fmt.Sprintf("- [MODIFIED] %s (%s)", filePath, m.nowISO())

	data, err := os.ReadFile(m.ImplStatusPath) // #nosec G304
	if err != nil {
		return os.WriteFile(m.ImplStatusPath, []byte("# DDD Implementation Status\n\n"+entry+"\n"), 0o644)
	}

	content := strings.TrimRight(string(data), "\n") + "\n" + entry + "\n"
	return os.WriteFile(m.ImplStatusPath, []byte(content), 0o644)
}

// IsSessionActive reports whether a DDD session is underway: the
// impl-status log exists and is non-empty.
func (m *Manager) IsSessionActive() bool {
	data, err := os.ReadFile(m.ImplStatusPath) // #nosec G304
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(data))) > 0
}

// SessionInfo is the state recoverable from the impl-status log alone.
type SessionInfo struct {
	SessionID     string
	LastChunk     string
	FilesModified []string
}

// CurrentSessionInfo parses the impl-status log backwards for the most
// recent session header, its last chunk, and the files modified within
// that session.
func (m *Manager) CurrentSessionInfo() *SessionInfo {
	data, err := os.ReadFile(m.ImplStatusPath) // #nosec G304
	if err != nil {
		return nil
	}

	// Everything after the final "## Session" header belongs to the
	// current session; scan backwards and stop at that header.
	lines := strings.Split(string(data), "\n")
	info := &SessionInfo{LastChunk: "unknown"}

	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])

		if strings.HasPrefix(line, "## Session") {
			parts := strings.Fields(line)
			if len(parts) >= 3 {
				info.SessionID = parts[2]
			}
			break
		}

		if !strings.HasPrefix(line, "- [") {
			continue
		}
		if strings.Contains(line, "Chunk") && info.LastChunk == "unknown" {
			after := strings.SplitN(line, "Chunk", 2)[1]
			fields := strings.Fields(after)
			if len(fields) > 0 {
				info.LastChunk = fields[0]
			}
		}
		if strings.Contains(line, "[MODIFIED]") {
			after := strings.SplitN(line, "[MODIFIED]", 2)[1]
			path := strings.TrimSpace(strings.SplitN(after, "(", 2)[0])
			if path != "" {
				info.FilesModified = append(info.FilesModified, path)
			}
		}
	}

	if info.SessionID == "" {
		return nil
	}

	// Restore file order.
	for i, j := 0, len(info.FilesModified)-1; i < j; i, j = i+1, j-1 {
		info.FilesModified[i], info.FilesModified[j] = info.FilesModified[j], info.FilesModified[i]
	}
	return info
}

// lastSessionHeader returns the id of the final "## Session" header.
func lastSessionHeader(content string) string {
	lines := strings.Split(content, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "## Session") {
			parts := strings.Fields(line)
			if len(parts) >= 3 {
				return parts[2]
			}
			return ""
		}
	}
	return ""
}

func (m *Manager) nowISO() string {
	return m.now().UTC().Format("2006-01-02T15:04:05Z")
}
