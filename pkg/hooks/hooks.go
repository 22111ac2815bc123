// Package hooks provides shared plumbing for recall's hook binaries: stdin
// JSON in, stdout JSON out, and a defensive posture throughout. A hook must
// never break the host's hook chain, so every failure path degrades to an
// empty response on stdout with details on stderr.
package hooks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/thebtf/recall/internal/config"
)

// BaseInput carries the fields common to every hook event.
type BaseInput struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	HookEventName  string `json:"hook_event_name"`
	CWD            string `json:"cwd"`
}

// Context is passed to hook handlers alongside the decoded input.
type Context struct {
	Event    string
	RawInput []byte
	Payload  map[string]any
}

// Warning is the non-empty wrapper output carrying contradiction warnings.
type Warning struct {
	Warning  string          `json:"warning"`
	Metadata WarningMetadata `json:"metadata"`
}

// WarningMetadata describes a claim-validation result.
type WarningMetadata struct {
	Source              string `json:"source"`
	ContradictionsFound int    `json:"contradictionsFound"`
	ClaimsChecked       int    `json:"claimsChecked"`
}

// RunHook reads a hook event from stdin, invokes the handler, and writes
// the handler's result as JSON to stdout. A nil result, a handler error, a
// panic, or a disabled memory system all emit {} and exit 0.
func RunHook[T any](event string, handler func(ctx *Context, input *T) (any, error)) {
	// Hook processes are short-lived; .env keeps them configurable the
	// same way the host is.
	_ = godotenv.Load()

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "[%s] panic: %v\n", event, r)
			emitEmpty()
		}
	}()

	if !config.MemoryEnabled() {
		emitEmpty()
		return
	}

	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[%s] read stdin: %v\n", event, err)
		emitEmpty()
		return
	}

	var input T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &input); err != nil {
			fmt.Fprintf(os.Stderr, "[%s] decode input: %v\n", event, err)
			emitEmpty()
			return
		}
	}

	var payload map[string]any
	_ = json.Unmarshal(raw, &payload)

	ctx := &Context{Event: event, RawInput: raw, Payload: payload}

	result, err := handler(ctx, &input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[%s] handler: %v\n", event, err)
		emitEmpty()
		return
	}
	if result == nil {
		emitEmpty()
		return
	}

	out, err := json.Marshal(result)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[%s] encode output: %v\n", event, err)
		emitEmpty()
		return
	}
	fmt.Fprintln(os.Stdout, string(out))
}

func emitEmpty() {
	fmt.Fprintln(os.Stdout, "{}")
}
