package action

import (
	"context"
	"fmt"

	"github.com/nidhogg/ravenmoor/internal/cache"
	"github.com/nidhogg/ravenmoor/internal/memory"
	"go.uber.org/zap"
)

// State tracks a single dispatch through its lifecycle.
type State string

const (
	StateNoAction   State = "no_action"
	StateDetected   State = "detected"
	StateValidating State = "validating"
	StateExecuting  State = "executing"
	StateCompleted  State = "completed"
	StateRejected   State = "rejected"
)

// Result is the outcome of dispatching one generated response.
type Result struct {
	State State
	// Action is the resolved action name, empty when none matched.
	Action string
	// Responses are the final user-visible messages, in emission order.
	Responses []Response
}

// DefaultApology is the in-character fallback when a handler fails.
const DefaultApology = "Forgive me... something in the dark slipped from my grasp. Ask again, and I shall try once more."

// Dispatcher runs the action state machine over generated responses. The
// action list is fixed at construction time and evaluated in registration
// order; at most one action executes per response.
type Dispatcher struct {
	actions []*Action
	matcher Matcher
	store   memory.Store
	cache   cache.Cache
	apology string
	logger  *zap.Logger
}

// NewDispatcher creates a Dispatcher over an immutable action list.
func NewDispatcher(actions []*Action, matcher Matcher, store memory.Store, scoped cache.Cache, logger *zap.Logger) *Dispatcher {
	if matcher == nil {
		matcher = FuzzyMatcher{}
	}
	if scoped == nil {
		scoped = cache.NewMemoryCache()
	}
	return &Dispatcher{
		actions: actions,
		matcher: matcher,
		store:   store,
		cache:   scoped,
		apology: DefaultApology,
		logger:  logger,
	}
}

// SetApology overrides the handler-failure fallback text.
func (d *Dispatcher) SetApology(text string) { d.apology = text }

// Dispatch inspects the draft for an action tag and runs the machine.
// An untagged draft, an unresolvable tag, or a failed validation all
// collapse to passing the draft through unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) *Result {
	if req.Tag == "" {
		return &Result{State: StateNoAction, Responses: passthrough(req)}
	}

	// Detected → Validating
	act := d.matcher.Match(req.Tag, d.actions)
	if act == nil {
		d.logger.Debug("action tag did not resolve", zap.String("tag", req.Tag))
		return &Result{State: StateRejected, Responses: passthrough(req)}
	}

	// Validating → Executing | Rejected
	req.Store = d.store
	req.Cache = d.cache
	req.Scope = cache.Scope{RoomID: req.RoomID, UserID: req.UserID, Action: act.Name}
	if act.Validate != nil && !act.Validate(ctx, req) {
		d.logger.Debug("action validation rejected",
			zap.String("action", act.Name),
			zap.String("room", req.RoomID))
		return &Result{State: StateRejected, Action: act.Name, Responses: passthrough(req)}
	}

	// Executing → Completed, errors contained. No retry at this layer;
	// retries are the handler's own business.
	responses, err := d.execute(ctx, act, req)
	if err != nil {
		d.logger.Error("action execution failed",
			zap.String("action", act.Name),
			zap.String("room", req.RoomID),
			zap.Error(err))
		return &Result{
			State:     StateCompleted,
			Action:    act.Name,
			Responses: []Response{{Text: d.apology, Action: act.Name}},
		}
	}

	if len(responses) == 0 && !act.SuppressInitialMessage {
		responses = []Response{{Text: req.Draft, Action: act.Name}}
	}
	return &Result{State: StateCompleted, Action: act.Name, Responses: responses}
}

// execute runs the handler with panic containment and drains its stream.
func (d *Dispatcher) execute(ctx context.Context, act *Action, req *Request) (responses []Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	stream, err := act.Handler(ctx, req)
	if err != nil {
		return nil, err
	}
	for r := range stream {
		if r.Action == "" {
			r.Action = act.Name
		}
		responses = append(responses, r)
	}
	return responses, nil
}

func passthrough(req *Request) []Response {
	if req.Draft == "" {
		return nil
	}
	return []Response{{Text: req.Draft}}
}
