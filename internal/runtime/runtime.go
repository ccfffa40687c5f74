// Package runtime wires the full message pipeline: persist the inbound
// message, compose context, generate a draft, dispatch any action, and
// persist the final responses.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nidhogg/ravenmoor/internal/action"
	"github.com/nidhogg/ravenmoor/internal/composer"
	"github.com/nidhogg/ravenmoor/internal/memory"
	"github.com/nidhogg/ravenmoor/internal/persona"
	"github.com/nidhogg/ravenmoor/internal/provider"
	"github.com/nidhogg/ravenmoor/internal/retrieval"
	"go.uber.org/zap"
)

// Generator is the generation boundary consumed by the runtime; satisfied
// by *provider.Router.
type Generator interface {
	Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error)
}

// Runtime executes the pipeline for one persona.
type Runtime struct {
	store      memory.Store
	composer   *composer.Composer
	generator  Generator
	dispatcher *action.Dispatcher
	actions    []*action.Action
	persona    *persona.Persona
	logger     *zap.Logger

	mu       sync.Mutex
	sessions map[string]*retrieval.Session // per room
}

// New creates a Runtime. The action list must be the same one the
// dispatcher was built with; it feeds the model's action guidance.
func New(store memory.Store, comp *composer.Composer, gen Generator, disp *action.Dispatcher, actions []*action.Action, p *persona.Persona, logger *zap.Logger) *Runtime {
	return &Runtime{
		store:      store,
		composer:   comp,
		generator:  gen,
		dispatcher: disp,
		actions:    actions,
		persona:    p,
		logger:     logger,
		sessions:   make(map[string]*retrieval.Session),
	}
}

// SeedLore stores the persona's lore lines as unique records, keyed to the
// agent's own lore room. Safe to call on every startup.
func (rt *Runtime) SeedLore(ctx context.Context) error {
	for _, line := range rt.persona.Lore {
		_, err := rt.store.Create(ctx, &memory.Record{
			Table:   memory.TableLore,
			AgentID: rt.persona.ID,
			RoomID:  rt.persona.ID,
			Content: memory.Content{Text: line},
		}, true)
		var dup *memory.DuplicateError
		if errors.As(err, &dup) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed lore: %w", err)
		}
	}
	return nil
}

// HandleMessage runs one inbound message through the pipeline and returns
// the final responses. Memory store failures propagate; generation and
// action faults degrade per their own layers.
func (rt *Runtime) HandleMessage(ctx context.Context, roomID, userID, text string) ([]action.Response, error) {
	_, err := rt.store.Create(ctx, &memory.Record{
		Table:   memory.TableConversation,
		AgentID: rt.persona.ID,
		UserID:  userID,
		RoomID:  roomID,
		Content: memory.Content{Text: text},
	}, false)
	if err != nil {
		return nil, fmt.Errorf("persist inbound: %w", err)
	}

	req := &composer.Request{
		AgentID: rt.persona.ID,
		RoomID:  roomID,
		UserID:  userID,
		Message: text,
	}
	bundle, err := rt.composer.Compose(ctx, req, rt.session(roomID))
	if err != nil {
		return nil, fmt.Errorf("compose context: %w", err)
	}

	resp, err := rt.generator.Chat(ctx, &provider.ChatRequest{
		Messages: []provider.Message{
			{Role: "system", Content: rt.systemPrompt()},
			{Role: "user", Content: rt.userPrompt(bundle, text)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	draft := provider.ParseDraft(resp.Content)
	result := rt.dispatcher.Dispatch(ctx, &action.Request{
		AgentID: rt.persona.ID,
		RoomID:  roomID,
		UserID:  userID,
		Message: text,
		Draft:   draft.Text,
		Tag:     draft.ActionTag,
	})

	rt.logger.Debug("message handled",
		zap.String("room", roomID),
		zap.String("state", string(result.State)),
		zap.String("action", result.Action),
		zap.Int("responses", len(result.Responses)))

	for _, r := range result.Responses {
		meta := map[string]string{}
		if r.Action != "" {
			meta["action"] = r.Action
		}
		_, err := rt.store.Create(ctx, &memory.Record{
			Table:   memory.TableConversation,
			AgentID: rt.persona.ID,
			RoomID:  roomID,
			Content: memory.Content{Text: r.Text, Metadata: meta},
		}, false)
		if err != nil {
			return nil, fmt.Errorf("persist response: %w", err)
		}
	}
	return result.Responses, nil
}

func (rt *Runtime) session(roomID string) *retrieval.Session {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	s, ok := rt.sessions[roomID]
	if !ok {
		s = retrieval.NewSession(nil)
		rt.sessions[roomID] = s
	}
	return s
}

func (rt *Runtime) systemPrompt() string {
	var b strings.Builder
	if rt.persona.SystemPrompt != "" {
		b.WriteString(rt.persona.SystemPrompt)
	} else {
		b.WriteString("You are " + rt.persona.Name + ".")
	}
	if guide := rt.actionGuide(); guide != "" {
		b.WriteString("\n\n" + guide)
	}
	return b.String()
}

// actionGuide renders the available actions for the model, examples
// included. Examples are guidance only; nothing checks them at runtime.
func (rt *Runtime) actionGuide() string {
	if len(rt.actions) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("You may end a response with (ACTION: NAME) to trigger one of these actions:\n")
	for _, a := range rt.actions {
		fmt.Fprintf(&b, "- %s: %s\n", a.Name, a.Description)
		for _, ex := range a.Examples {
			fmt.Fprintf(&b, "  e.g. %s\n", ex)
		}
	}
	return b.String()
}

func (rt *Runtime) userPrompt(bundle *composer.Bundle, text string) string {
	if bundle.Text == "" {
		return text
	}
	return bundle.Text + "\n\n## Message\n\n" + text
}
