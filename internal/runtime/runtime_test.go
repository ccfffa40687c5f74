package runtime

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nidhogg/ravenmoor/internal/action"
	"github.com/nidhogg/ravenmoor/internal/composer"
	"github.com/nidhogg/ravenmoor/internal/embedding"
	"github.com/nidhogg/ravenmoor/internal/memory"
	"github.com/nidhogg/ravenmoor/internal/persona"
	"github.com/nidhogg/ravenmoor/internal/provider"
	"github.com/nidhogg/ravenmoor/internal/retrieval"
	"go.uber.org/zap"
)

type stubGenerator struct {
	content string
	err     error
	// lastSystem captures the system prompt for inspection.
	lastSystem string
}

func (g *stubGenerator) Chat(_ context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	for _, m := range req.Messages {
		if m.Role == "system" {
			g.lastSystem = m.Content
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	return &provider.ChatResponse{Content: g.content}, nil
}

func newTestRuntime(t *testing.T, gen Generator, actions []*action.Action) (*Runtime, *memory.MemStore) {
	t.Helper()
	logger := zap.NewNop()

	gateway := embedding.NewGateway(embedding.NewHashProvider(64), logger)
	store := memory.NewMemStore(gateway)
	engine := retrieval.NewEngine(store, gateway, retrieval.DefaultConfig(), logger)
	comp := composer.New(store, engine, nil, composer.DefaultConfig(), logger)
	disp := action.NewDispatcher(actions, nil, store, nil, logger)

	p := &persona.Persona{
		ID:   "raven",
		Name: "Raven",
		Lore: []string{"Born under a black moon.", "Keeper of the old names."},
	}
	return New(store, comp, gen, disp, actions, p, logger), store
}

func TestHandleMessagePersistsBothSides(t *testing.T) {
	gen := &stubGenerator{content: "The night is long."}
	rt, store := newTestRuntime(t, gen, nil)
	ctx := context.Background()

	responses, err := rt.HandleMessage(ctx, "hall", "mira", "speak to me")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(responses) != 1 || responses[0].Text != "The night is long." {
		t.Fatalf("unexpected responses %+v", responses)
	}

	recs, err := store.List(ctx, memory.TableConversation, "hall", 10, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	// Most recent first: the agent reply, then the user turn.
	if recs[0].UserID != "" || recs[0].Content.Text != "The night is long." {
		t.Errorf("reply record = %+v", recs[0])
	}
	if recs[1].UserID != "mira" || recs[1].Content.Text != "speak to me" {
		t.Errorf("inbound record = %+v", recs[1])
	}
}

func TestHandleMessageRunsAction(t *testing.T) {
	fortune := &action.Action{
		Name:        "TELL_FORTUNE",
		Description: "read the cards",
		Handler: func(ctx context.Context, req *action.Request) (<-chan action.Response, error) {
			return action.Respond(action.Response{Text: "I see a long road."}), nil
		},
	}
	gen := &stubGenerator{content: "Let me look. (ACTION: TELL_FORTUNE)"}
	rt, store := newTestRuntime(t, gen, []*action.Action{fortune})
	ctx := context.Background()

	responses, err := rt.HandleMessage(ctx, "hall", "mira", "what do the cards say?")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(responses) != 1 || responses[0].Text != "I see a long road." {
		t.Fatalf("unexpected responses %+v", responses)
	}
	if responses[0].Action != "TELL_FORTUNE" {
		t.Errorf("response action = %q", responses[0].Action)
	}

	// The persisted reply carries the action name in metadata.
	recs, err := store.List(ctx, memory.TableConversation, "hall", 1, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := recs[0].Content.Metadata["action"]; got != "TELL_FORTUNE" {
		t.Errorf("persisted action metadata = %q", got)
	}
}

func TestHandleMessageGeneratorFailure(t *testing.T) {
	gen := &stubGenerator{err: errors.New("provider down")}
	rt, store := newTestRuntime(t, gen, nil)
	ctx := context.Background()

	if _, err := rt.HandleMessage(ctx, "hall", "mira", "hello?"); err == nil {
		t.Fatal("expected error when generation fails")
	}

	// The inbound message is still persisted.
	n, err := store.Count(ctx, memory.TableConversation, "hall")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected inbound record to survive, got %d records", n)
	}
}

func TestSystemPromptListsActions(t *testing.T) {
	dance := &action.Action{
		Name:        "DANCE",
		Description: "a slow waltz",
		Examples:    []string{"The fiddler strikes up. (ACTION: DANCE)"},
		Handler: func(ctx context.Context, req *action.Request) (<-chan action.Response, error) {
			return action.Respond(), nil
		},
	}
	gen := &stubGenerator{content: "very well"}
	rt, _ := newTestRuntime(t, gen, []*action.Action{dance})

	if _, err := rt.HandleMessage(context.Background(), "hall", "mira", "shall we?"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !strings.Contains(gen.lastSystem, "DANCE") || !strings.Contains(gen.lastSystem, "a slow waltz") {
		t.Errorf("system prompt missing action guidance:\n%s", gen.lastSystem)
	}
}

func TestSeedLoreIdempotent(t *testing.T) {
	gen := &stubGenerator{content: "ok"}
	rt, store := newTestRuntime(t, gen, nil)
	ctx := context.Background()

	if err := rt.SeedLore(ctx); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	if err := rt.SeedLore(ctx); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	n, err := store.Count(ctx, memory.TableLore, "raven")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 lore records after reseeding, got %d", n)
	}
}
