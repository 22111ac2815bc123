// Package claudecli implements the extraction LLM client on top of the
// Claude Code CLI. The pipeline only depends on extract.Client; this is the
// default implementation when no other client is wired in.
package claudecli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/recall/internal/extract"
)

// MaxPromptSize bounds prompt size passed to the CLI.
const MaxPromptSize = 200 * 1024

// Client shells out to the claude CLI for completions.
type Client struct {
	Path  string
	Model string
}

var _ extract.Client = (*Client)(nil)

// New locates the claude CLI and returns a client. Model may be empty; the
// CLI default then applies.
func New(model string) (*Client, error) {
	path, err := exec.LookPath("claude")
	if err != nil {
		return nil, fmt.Errorf("claude CLI not found in PATH")
	}
	return &Client{Path: path, Model: model}, nil
}

// Complete sends a prompt through the CLI in non-interactive mode. The
// context deadline bounds the call; triage deadlines propagate here.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if len(prompt) > MaxPromptSize {
		return "", fmt.Errorf("prompt exceeds maximum size of %d bytes", MaxPromptSize)
	}
	prompt = sanitizePrompt(prompt)

	args := []string{"--print", "--tools", "", "--strict-mcp-config"}
	if c.Model != "" {
		args = append(args, "--model", c.Model)
	}
	args = append(args, "-p", prompt)

	cmd := exec.CommandContext(ctx, c.Path, args...) // #nosec G204 -- path from LookPath, prompt is internal

	// Run from a neutral directory so the extraction call cannot trigger
	// this project's own hooks.
	cmd.Dir = os.TempDir()
	cmd.Env = append(os.Environ(), "MEMORY_SYSTEM_ENABLED=false")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Error().Err(err).Str("stderr", stderr.String()).Msg("Claude CLI execution failed")
		return "", fmt.Errorf("claude CLI failed: %w", err)
	}

	return stdout.String(), nil
}

// sanitizePrompt removes null bytes and control characters, keeping
// newlines, tabs and carriage returns.
func sanitizePrompt(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 32 || r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		return -1
	}, s)
}
