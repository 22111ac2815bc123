// Package main provides the Stop hook entry point. Stop events are routed
// through the circuit breaker and, when admitted, queued for asynchronous
// extraction with the worker started if none is live.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/thebtf/recall/internal/breaker"
	"github.com/thebtf/recall/internal/config"
	"github.com/thebtf/recall/internal/queue"
	"github.com/thebtf/recall/internal/registry"
	"github.com/thebtf/recall/internal/router"
	"github.com/thebtf/recall/internal/state"
	"github.com/thebtf/recall/internal/watchdog"
	"github.com/thebtf/recall/pkg/hooks"
)

// Input is the Stop hook input from the host.
type Input struct {
	hooks.BaseInput
	StopHookActive bool `json:"stop_hook_active"`
}

func main() {
	hooks.RunHook("Stop", handleStop)
}

func handleStop(ctx *hooks.Context, input *Input) (any, error) {
	cfg := config.Get()

	r := router.New(breaker.New(cfg.BreakerPath()))
	result := r.Route(ctx.Event, ctx.Payload)

	fmt.Fprintf(os.Stderr, "[stop] route: %s (%s)\n", result.Action, result.Reason)

	if result.Action != router.Queue {
		return nil, nil
	}
	if input.SessionID == "" || input.TranscriptPath == "" {
		fmt.Fprintln(os.Stderr, "[stop] missing session_id or transcript_path")
		return nil, nil
	}

	q := queue.New(cfg.QueuePath())
	if err := q.Push(queue.Item{
		SessionID:      input.SessionID,
		TranscriptPath: input.TranscriptPath,
		Timestamp:      time.Now().Format(time.RFC3339),
		HookEvent:      ctx.Event,
	}); err != nil {
		return nil, err
	}

	reg := registry.New(cfg.TranscriptsPath())
	if err := reg.Add(input.SessionID, input.TranscriptPath); err != nil {
		return nil, err
	}

	wd := watchdog.New(reg, state.New(cfg.ExtractionStatePath()))
	started, err := wd.Start(filepath.Dir(input.TranscriptPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "[stop] failed to start extraction: %v\n", err)
		return nil, nil
	}
	if started {
		fmt.Fprintln(os.Stderr, "[stop] extraction worker started")
	}

	return nil, nil
}
