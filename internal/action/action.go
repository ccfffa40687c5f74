// Package action implements the response action machinery: a generated
// draft may carry an action tag, which resolves to a registered action,
// gets validated, and executes a handler that can replace or extend the
// response.
package action

import (
	"context"

	"github.com/nidhogg/ravenmoor/internal/cache"
	"github.com/nidhogg/ravenmoor/internal/memory"
)

// Response is one message emitted toward the user.
type Response struct {
	Text string
	// Action labels the response with the action that produced it; the
	// runtime persists it so later validations can inspect action history.
	Action string
}

// Request carries everything a validation predicate or handler may need.
type Request struct {
	AgentID string
	RoomID  string
	UserID  string
	// Message is the inbound user message this turn responds to.
	Message string
	// Draft is the generated response text, action tag stripped.
	Draft string
	// Tag is the raw action tag detected in the draft.
	Tag string
	// Store gives handlers memory access, including enqueueing follow-up
	// records for action chaining.
	Store memory.Store
	// Cache is scoped per (room, user, action); see Scope.
	Cache cache.Cache
	Scope cache.Scope
}

// ValidateFunc decides whether a matched action applies right now.
type ValidateFunc func(ctx context.Context, req *Request) bool

// HandlerFunc executes the action, returning a lazy sequence of
// replacement or follow-up responses. The channel must be closed by the
// producer; an empty closed channel means "keep the draft".
type HandlerFunc func(ctx context.Context, req *Request) (<-chan Response, error)

// Action is a named, validated, handler-backed operation the agent may
// trigger instead of or alongside plain text.
type Action struct {
	Name              string
	AlternateTriggers []string
	Description       string
	// Examples are model guidance only; never consulted at runtime.
	Examples []string
	// SuppressInitialMessage drops the draft even when the handler emits
	// nothing.
	SuppressInitialMessage bool
	Validate               ValidateFunc
	Handler                HandlerFunc
}

// Respond wraps fixed responses in the closed-channel form handlers return.
func Respond(responses ...Response) <-chan Response {
	ch := make(chan Response, len(responses))
	for _, r := range responses {
		ch <- r
	}
	close(ch)
	return ch
}
