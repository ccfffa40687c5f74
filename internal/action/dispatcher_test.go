package action

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nidhogg/ravenmoor/internal/cache"
	"github.com/nidhogg/ravenmoor/internal/embedding"
	"github.com/nidhogg/ravenmoor/internal/memory"
	"go.uber.org/zap"
)

func testStore() *memory.MemStore {
	gw := embedding.NewGateway(embedding.NewHashProvider(32), zap.NewNop())
	return memory.NewMemStore(gw)
}

func newDispatcher(actions ...*Action) *Dispatcher {
	return NewDispatcher(actions, FuzzyMatcher{}, testStore(), cache.NewMemoryCache(), zap.NewNop())
}

func TestDispatchNoTagPassthrough(t *testing.T) {
	d := newDispatcher(&Action{Name: "WEATHER", Handler: func(context.Context, *Request) (<-chan Response, error) {
		return Respond(Response{Text: "never"}), nil
	}})

	res := d.Dispatch(context.Background(), &Request{Draft: "a plain answer"})
	if res.State != StateNoAction {
		t.Errorf("state = %s, want no_action", res.State)
	}
	if len(res.Responses) != 1 || res.Responses[0].Text != "a plain answer" {
		t.Errorf("got %+v, want the draft unchanged", res.Responses)
	}
}

func TestDispatchUnknownTagPassthrough(t *testing.T) {
	d := newDispatcher() // no actions registered

	res := d.Dispatch(context.Background(), &Request{Draft: "it may rain", Tag: "WEATHER"})
	if res.State != StateRejected {
		t.Errorf("state = %s, want rejected", res.State)
	}
	if len(res.Responses) != 1 || res.Responses[0].Text != "it may rain" {
		t.Errorf("got %+v, want the draft unchanged", res.Responses)
	}
}

func TestDispatchValidationRejected(t *testing.T) {
	d := newDispatcher(&Action{
		Name:     "CURSE",
		Validate: func(context.Context, *Request) bool { return false },
		Handler: func(context.Context, *Request) (<-chan Response, error) {
			return Respond(Response{Text: "cursed!"}), nil
		},
	})

	res := d.Dispatch(context.Background(), &Request{Draft: "original words", Tag: "CURSE"})
	if res.State != StateRejected {
		t.Errorf("state = %s, want rejected", res.State)
	}
	if len(res.Responses) != 1 || res.Responses[0].Text != "original words" {
		t.Errorf("got %+v, want original draft", res.Responses)
	}
}

func TestDispatchExecutesAndReplaces(t *testing.T) {
	d := newDispatcher(&Action{
		Name: "TELL_FORTUNE",
		Handler: func(_ context.Context, req *Request) (<-chan Response, error) {
			return Respond(
				Response{Text: "The cards are drawn..."},
				Response{Text: "A long journey awaits."},
			), nil
		},
	})

	res := d.Dispatch(context.Background(), &Request{Draft: "let me see", Tag: "tell fortune"})
	if res.State != StateCompleted {
		t.Fatalf("state = %s, want completed", res.State)
	}
	if len(res.Responses) != 2 {
		t.Fatalf("got %d responses, want 2", len(res.Responses))
	}
	if res.Responses[0].Action != "TELL_FORTUNE" {
		t.Errorf("responses should carry the action name, got %q", res.Responses[0].Action)
	}
}

func TestDispatchHandlerErrorApology(t *testing.T) {
	d := newDispatcher(&Action{
		Name: "SUMMON",
		Handler: func(context.Context, *Request) (<-chan Response, error) {
			return nil, errors.New("the circle is broken")
		},
	})

	res := d.Dispatch(context.Background(), &Request{Draft: "I call forth...", Tag: "SUMMON"})
	if res.State != StateCompleted {
		t.Errorf("state = %s, want completed despite the failure", res.State)
	}
	if len(res.Responses) != 1 || res.Responses[0].Text != DefaultApology {
		t.Errorf("got %+v, want the apology", res.Responses)
	}
}

func TestDispatchHandlerPanicApology(t *testing.T) {
	d := newDispatcher(&Action{
		Name: "SHATTER",
		Handler: func(context.Context, *Request) (<-chan Response, error) {
			panic("mirror broke")
		},
	})

	res := d.Dispatch(context.Background(), &Request{Draft: "careful now", Tag: "SHATTER"})
	if res.State != StateCompleted {
		t.Errorf("state = %s, want completed", res.State)
	}
	if len(res.Responses) != 1 || res.Responses[0].Text != DefaultApology {
		t.Errorf("got %+v, want the apology", res.Responses)
	}
}

func TestDispatchSuppressInitialMessage(t *testing.T) {
	d := newDispatcher(&Action{
		Name:                   "MUTE",
		SuppressInitialMessage: true,
		Handler: func(context.Context, *Request) (<-chan Response, error) {
			return Respond(), nil
		},
	})

	res := d.Dispatch(context.Background(), &Request{Draft: "should vanish", Tag: "MUTE"})
	if res.State != StateCompleted {
		t.Fatalf("state = %s, want completed", res.State)
	}
	if len(res.Responses) != 0 {
		t.Errorf("got %+v, want no responses", res.Responses)
	}
}

func TestDispatchScopedCacheMultiTurn(t *testing.T) {
	scoped := cache.NewMemoryCache()
	act := &Action{
		Name: "RITUAL",
		Handler: func(ctx context.Context, req *Request) (<-chan Response, error) {
			step, ok, err := req.Cache.Get(ctx, req.Scope, "step")
			if err != nil {
				return nil, err
			}
			if !ok {
				if err := req.Cache.Set(ctx, req.Scope, "step", "1"); err != nil {
					return nil, err
				}
				return Respond(Response{Text: "Step 1 of 2: light the candles."}), nil
			}
			if step == "1" {
				if err := req.Cache.Clear(ctx, req.Scope); err != nil {
					return nil, err
				}
				return Respond(Response{Text: "Step 2 of 2: speak the words."}), nil
			}
			return nil, fmt.Errorf("unexpected step %q", step)
		},
	}
	d := NewDispatcher([]*Action{act}, FuzzyMatcher{}, testStore(), scoped, zap.NewNop())

	req := &Request{RoomID: "crypt", UserID: "elvira", Draft: "begin", Tag: "RITUAL"}
	first := d.Dispatch(context.Background(), req)
	if first.Responses[0].Text != "Step 1 of 2: light the candles." {
		t.Fatalf("first turn: %+v", first.Responses)
	}

	second := d.Dispatch(context.Background(), &Request{RoomID: "crypt", UserID: "elvira", Draft: "go on", Tag: "RITUAL"})
	if second.Responses[0].Text != "Step 2 of 2: speak the words." {
		t.Fatalf("second turn: %+v", second.Responses)
	}

	// A different user in the same room starts from step 1: scopes are
	// keyed per (room, user, action).
	other := d.Dispatch(context.Background(), &Request{RoomID: "crypt", UserID: "mortimer", Draft: "begin", Tag: "RITUAL"})
	if other.Responses[0].Text != "Step 1 of 2: light the candles." {
		t.Fatalf("other user: %+v", other.Responses)
	}
}

func TestContinueCapRejectsFourthConsecutive(t *testing.T) {
	store := testStore()
	cont := NewContinueAction()
	d := NewDispatcher([]*Action{cont}, FuzzyMatcher{}, store, cache.NewMemoryCache(), zap.NewNop())
	ctx := context.Background()

	persist := func(res *Result) {
		for _, r := range res.Responses {
			_, err := store.Create(ctx, &memory.Record{
				Table:   memory.TableConversation,
				RoomID:  "tower",
				AgentID: "raven",
				Content: memory.Content{
					Text:     r.Text,
					Metadata: map[string]string{"action": r.Action},
				},
			}, false)
			if err != nil {
				t.Fatalf("persist: %v", err)
			}
		}
	}

	for turn := 1; turn <= 3; turn++ {
		res := d.Dispatch(ctx, &Request{RoomID: "tower", Draft: fmt.Sprintf("and furthermore %d", turn), Tag: "CONTINUE"})
		if res.State != StateCompleted {
			t.Fatalf("turn %d: state = %s, want completed", turn, res.State)
		}
		persist(res)
	}

	fourth := d.Dispatch(ctx, &Request{RoomID: "tower", Draft: "and furthermore 4", Tag: "CONTINUE"})
	if fourth.State != StateRejected {
		t.Fatalf("fourth consecutive continue: state = %s, want rejected", fourth.State)
	}
	if len(fourth.Responses) != 1 || fourth.Responses[0].Text != "and furthermore 4" {
		t.Errorf("rejected continue should pass the draft through, got %+v", fourth.Responses)
	}
}

func TestContinueRunResetByUserTurn(t *testing.T) {
	store := testStore()
	d := NewDispatcher([]*Action{NewContinueAction()}, FuzzyMatcher{}, store, cache.NewMemoryCache(), zap.NewNop())
	ctx := context.Background()

	// Three agent continues, then a user message.
	for i := 0; i < 3; i++ {
		_, err := store.Create(ctx, &memory.Record{
			Table:   memory.TableConversation,
			RoomID:  "tower",
			AgentID: "raven",
			Content: memory.Content{Text: "...", Metadata: map[string]string{"action": "CONTINUE"}},
		}, false)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	_, err := store.Create(ctx, &memory.Record{
		Table:   memory.TableConversation,
		RoomID:  "tower",
		UserID:  "elvira",
		Content: memory.Content{Text: "go on then"},
	}, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	res := d.Dispatch(ctx, &Request{RoomID: "tower", Draft: "gladly", Tag: "CONTINUE"})
	if res.State != StateCompleted {
		t.Errorf("state = %s, want completed after a user turn reset the run", res.State)
	}
}
