// Package config provides configuration management for recall.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	// DefaultMaxTokens is the context window budget assumed for a session.
	DefaultMaxTokens = 200_000

	// DefaultPlanPath is the well-known code plan location.
	DefaultPlanPath = "ai_working/ddd/code_plan.md"

	// DefaultAgentsDir is the agent descriptor directory.
	DefaultAgentsDir = ".claude/agents"
)

// Config holds the application configuration.
// Field order optimized for memory alignment (fieldalignment).
type Config struct {
	DataDir      string `json:"data_dir"`
	StateDir     string `json:"state_dir"`
	PlanPath     string `json:"plan_path"`
	AgentsDir    string `json:"agents_dir"`
	WorkerBinary string `json:"worker_binary"`
	MaxTokens    int    `json:"max_tokens"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// Default returns a Config with default values rooted at the workspace.
func Default() *Config {
	return &Config{
		DataDir:   ".data",
		StateDir:  "ai_working/ddd",
		PlanPath:  DefaultPlanPath,
		AgentsDir: DefaultAgentsDir,
		MaxTokens: DefaultMaxTokens,
	}
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(".data", "settings.json")
}

// Load loads configuration from the settings file, merging with defaults.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	var settings map[string]interface{}
	if err := json.Unmarshal(data, &settings); err != nil {
		return cfg, nil // Return defaults on parse error
	}

	if v, ok := settings["RECALL_DATA_DIR"].(string); ok && v != "" {
		cfg.DataDir = v
	}
	if v, ok := settings["RECALL_STATE_DIR"].(string); ok && v != "" {
		cfg.StateDir = v
	}
	if v, ok := settings["RECALL_PLAN_PATH"].(string); ok && v != "" {
		cfg.PlanPath = v
	}
	if v, ok := settings["RECALL_AGENTS_DIR"].(string); ok && v != "" {
		cfg.AgentsDir = v
	}
	if v, ok := settings["RECALL_WORKER_BINARY"].(string); ok && v != "" {
		cfg.WorkerBinary = v
	}
	if v, ok := settings["RECALL_MAX_TOKENS"].(float64); ok && v > 0 {
		cfg.MaxTokens = int(v)
	}

	return cfg, nil
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	configOnce.Do(func() {
		var err error
		globalConfig, err = Load()
		if err != nil {
			globalConfig = Default()
		}
	})
	return globalConfig
}

// TranscriptsPath returns the transcript registry file path.
func (c *Config) TranscriptsPath() string {
	return filepath.Join(c.DataDir, "transcripts.json")
}

// QueuePath returns the extraction queue file path.
func (c *Config) QueuePath() string {
	return filepath.Join(c.DataDir, "extraction_queue.jsonl")
}

// BreakerPath returns the circuit breaker state file path.
func (c *Config) BreakerPath() string {
	return filepath.Join(c.DataDir, "circuit_breaker_state.json")
}

// MemoriesDir returns the memory storage directory.
func (c *Config) MemoriesDir() string {
	return filepath.Join(c.DataDir, "memories")
}

// ExtractionStatePath returns the worker state file path.
func (c *Config) ExtractionStatePath() string {
	return filepath.Join(c.MemoriesDir(), ".extraction_state.json")
}

// LogsDir returns the extraction log directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.MemoriesDir(), "logs")
}

// ManifestPath returns the session manifest file path.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.StateDir, "session_manifest.json")
}

// CheckpointsDir returns the checkpoint directory.
func (c *Config) CheckpointsDir() string {
	return filepath.Join(c.StateDir, "checkpoints")
}

// ImplStatusPath returns the implementation status log path.
func (c *Config) ImplStatusPath() string {
	return filepath.Join(c.StateDir, "impl_status.md")
}

// MemoryEnabled reports whether the memory hook pipeline is enabled.
// Recognizes true|1|yes (case-insensitive); anything else disables.
func MemoryEnabled() bool {
	v := strings.ToLower(os.Getenv("MEMORY_SYSTEM_ENABLED"))
	return v == "true" || v == "1" || v == "yes"
}
