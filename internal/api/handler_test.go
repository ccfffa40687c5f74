package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nidhogg/ravenmoor/internal/action"
	"github.com/nidhogg/ravenmoor/internal/composer"
	"github.com/nidhogg/ravenmoor/internal/embedding"
	"github.com/nidhogg/ravenmoor/internal/knowledge"
	"github.com/nidhogg/ravenmoor/internal/memory"
	"github.com/nidhogg/ravenmoor/internal/persona"
	"github.com/nidhogg/ravenmoor/internal/provider"
	"github.com/nidhogg/ravenmoor/internal/retrieval"
	"github.com/nidhogg/ravenmoor/internal/runtime"
	"go.uber.org/zap"
)

// scriptedGenerator returns canned drafts in order, repeating the last one.
type scriptedGenerator struct {
	drafts []string
	calls  int
}

func (g *scriptedGenerator) Chat(_ context.Context, _ *provider.ChatRequest) (*provider.ChatResponse, error) {
	i := g.calls
	if i >= len(g.drafts) {
		i = len(g.drafts) - 1
	}
	g.calls++
	return &provider.ChatResponse{Content: g.drafts[i]}, nil
}

// newTestHandler wires a Handler over in-memory deps and a scripted model.
func newTestHandler(t *testing.T, drafts ...string) (http.Handler, memory.Store) {
	t.Helper()
	logger := zap.NewNop()

	gateway := embedding.NewGateway(embedding.NewHashProvider(64), logger)
	store := memory.NewMemStore(gateway)
	engine := retrieval.NewEngine(store, gateway, retrieval.DefaultConfig(), logger)
	comp := composer.New(store, engine, nil, composer.DefaultConfig(), logger)

	p := &persona.Persona{ID: "raven", Name: "Raven"}
	disp := action.NewDispatcher(nil, nil, store, nil, logger)
	rt := runtime.New(store, comp, &scriptedGenerator{drafts: drafts}, disp, nil, p, logger)

	ingestor := knowledge.NewIngestor(store, knowledge.DefaultChunkConfig(), logger)
	router := provider.NewRouter(logger)

	h := NewHandler(rt, store, ingestor, router, p, logger)
	return h.Router(), store
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func deleteReq(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest("DELETE", ts.URL+path, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE %s: %v", path, err)
	}
	return resp
}

// --- Tests ---

func TestHealthCheck(t *testing.T) {
	router, _ := newTestHandler(t, "hello")
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/health")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
	if body["persona"] != "raven" {
		t.Errorf("expected persona raven, got %q", body["persona"])
	}
}

func TestPostMessage(t *testing.T) {
	router, store := newTestHandler(t, "The mists part, traveler.")
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/rooms/hall/messages", map[string]string{
		"user_id": "mira",
		"message": "who are you?",
	})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Responses []struct {
			Text   string `json:"text"`
			Action string `json:"action"`
		} `json:"responses"`
	}
	decodeJSON(t, resp, &body)
	if len(body.Responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(body.Responses))
	}
	if body.Responses[0].Text != "The mists part, traveler." {
		t.Errorf("unexpected text %q", body.Responses[0].Text)
	}

	// Both the inbound message and the reply are persisted.
	n, err := store.Count(context.Background(), memory.TableConversation, "hall")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 conversation records, got %d", n)
	}
}

func TestPostMessageValidation(t *testing.T) {
	router, _ := newTestHandler(t, "hello")
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/rooms/hall/messages", map[string]string{"user_id": "mira"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing message, got %d", resp.StatusCode)
	}
}

func TestIngestAndListKnowledge(t *testing.T) {
	router, _ := newTestHandler(t, "hello")
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/knowledge", map[string]any{
		"source":  "founding.txt",
		"text":    "Ravenmoor was founded on the bones of an older town.",
		"room_id": "hall",
	})
	if resp.StatusCode != 201 {
		t.Fatalf("ingest: expected 201, got %d", resp.StatusCode)
	}
	var ingested struct {
		Created int `json:"created"`
	}
	decodeJSON(t, resp, &ingested)
	if ingested.Created != 1 {
		t.Errorf("expected 1 chunk created, got %d", ingested.Created)
	}

	resp = getJSON(t, ts, "/api/rooms/hall/memories?table=knowledge")
	if resp.StatusCode != 200 {
		t.Fatalf("list: expected 200, got %d", resp.StatusCode)
	}
	var records []*memory.Record
	decodeJSON(t, resp, &records)
	if len(records) != 1 {
		t.Fatalf("expected 1 knowledge record, got %d", len(records))
	}
	if records[0].Content.Metadata["source"] != "founding.txt" {
		t.Errorf("missing source metadata: %+v", records[0].Content.Metadata)
	}
}

func TestUnknownTableRejected(t *testing.T) {
	router, _ := newTestHandler(t, "hello")
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/rooms/hall/memories?table=grimoire")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown table, got %d", resp.StatusCode)
	}
}

func TestPurgeMemories(t *testing.T) {
	router, store := newTestHandler(t, "hello")
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/rooms/hall/messages", map[string]string{
		"user_id": "mira",
		"message": "remember this",
	})
	resp.Body.Close()

	resp = deleteReq(t, ts, "/api/rooms/hall/memories?table=conversation")
	if resp.StatusCode != 200 {
		t.Fatalf("purge: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	n, err := store.Count(context.Background(), memory.TableConversation, "hall")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("expected empty room after purge, got %d records", n)
	}
}
