// Package router classifies incoming hook events into actions. It is the
// first decision point of the extraction pipeline: internal events are
// dropped before they can consume circuit breaker budget.
package router

import (
	"fmt"

	"github.com/thebtf/recall/internal/breaker"
)

// Action is what the hook wrapper should do with an event.
type Action string

const (
	// Skip drops the event with a reason.
	Skip Action = "skip"
	// Queue defers the event for asynchronous extraction.
	Queue Action = "queue"
	// Error reports a routing failure.
	Error Action = "error"
)

// Result pairs an action with its explanation.
type Result struct {
	Action Action
	Reason string
}

// Router routes hook events using breaker state.
type Router struct {
	breaker *breaker.Breaker
}

// New returns a router backed by the given circuit breaker.
func New(b *breaker.Breaker) *Router {
	return &Router{breaker: b}
}

// Route determines the action for a hook event.
//
// Rules, in order:
//  1. SubagentStop events are skipped (incomplete context) before the
//     breaker, so internal traffic never consumes admission budget.
//  2. Breaker denial skips with the breaker's reason.
//  3. Stop events queue for extraction.
//  4. Anything else is skipped as unknown.
func (r *Router) Route(eventName string, payload map[string]any) Result {
	if eventName == "SubagentStop" {
		return Result{Action: Skip, Reason: "SubagentStop events are skipped (incomplete context)"}
	}

	if d := r.breaker.Admit(); !d.Allowed {
		return Result{Action: Skip, Reason: fmt.Sprintf("Circuit breaker active: %s", d.Reason)}
	}

	if eventName == "Stop" {
		return Result{Action: Queue, Reason: "Stop event queued for extraction"}
	}

	return Result{Action: Skip, Reason: fmt.Sprintf("Unknown event type: %s", eventName)}
}
