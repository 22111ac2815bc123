// Package main provides the SubagentStop hook entry point. Subagent stops
// carry incomplete context and are always skipped; routing them here keeps
// the decision (and its logging) in one place without consuming circuit
// breaker budget.
package main

import (
	"fmt"
	"os"

	"github.com/thebtf/recall/internal/breaker"
	"github.com/thebtf/recall/internal/config"
	"github.com/thebtf/recall/internal/router"
	"github.com/thebtf/recall/pkg/hooks"
)

// Input is the SubagentStop hook input from the host.
type Input struct {
	hooks.BaseInput
}

func main() {
	hooks.RunHook("SubagentStop", handleSubagentStop)
}

func handleSubagentStop(ctx *hooks.Context, _ *Input) (any, error) {
	r := router.New(breaker.New(config.Get().BreakerPath()))
	result := r.Route(ctx.Event, ctx.Payload)
	fmt.Fprintf(os.Stderr, "[subagent-stop] route: %s (%s)\n", result.Action, result.Reason)
	return nil, nil
}
