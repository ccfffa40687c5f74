package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/ravenmoor/internal/knowledge"
	"github.com/nidhogg/ravenmoor/internal/memory"
	"github.com/nidhogg/ravenmoor/internal/persona"
	"github.com/nidhogg/ravenmoor/internal/provider"
	"github.com/nidhogg/ravenmoor/internal/runtime"
	"go.uber.org/zap"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	runtime  *runtime.Runtime
	store    memory.Store
	ingestor *knowledge.Ingestor
	router   *provider.Router
	persona  *persona.Persona
	logger   *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	rt *runtime.Runtime,
	store memory.Store,
	ingestor *knowledge.Ingestor,
	router *provider.Router,
	p *persona.Persona,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		runtime:  rt,
		store:    store,
		ingestor: ingestor,
		router:   router,
		persona:  p,
		logger:   logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/persona", h.getPersona)
		r.Get("/providers", h.listProviders)

		r.Post("/rooms/{roomID}/messages", h.postMessage)
		r.Get("/rooms/{roomID}/memories", h.listMemories)
		r.Get("/rooms/{roomID}/memories/count", h.countMemories)
		r.Delete("/rooms/{roomID}/memories", h.purgeMemories)

		r.Post("/knowledge", h.ingestKnowledge)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "persona": h.persona.ID})
}

func (h *Handler) getPersona(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.persona)
}

func (h *Handler) listProviders(w http.ResponseWriter, r *http.Request) {
	type providerInfo struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	var out []providerInfo
	for _, c := range h.router.List() {
		out = append(out, providerInfo{ID: c.ID(), Name: c.Name()})
	}
	writeJSON(w, http.StatusOK, out)
}

type messageRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type messageResponse struct {
	Text   string `json:"text"`
	Action string `json:"action,omitempty"`
}

func (h *Handler) postMessage(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.UserID == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id and message are required"})
		return
	}

	responses, err := h.runtime.HandleMessage(r.Context(), roomID, req.UserID, req.Message)
	if err != nil {
		h.logger.Error("message pipeline failed", zap.String("room", roomID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	out := make([]messageResponse, 0, len(responses))
	for _, resp := range responses {
		out = append(out, messageResponse{Text: resp.Text, Action: resp.Action})
	}
	writeJSON(w, http.StatusOK, map[string]any{"responses": out})
}

func (h *Handler) listMemories(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	table, ok := parseTable(w, r)
	if !ok {
		return
	}

	count := 20
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "count must be a positive integer"})
			return
		}
		count = n
	}
	unique := r.URL.Query().Get("unique") == "true"

	records, err := h.store.List(r.Context(), table, roomID, count, unique)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if records == nil {
		records = []*memory.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) countMemories(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	table, ok := parseTable(w, r)
	if !ok {
		return
	}

	n, err := h.store.Count(r.Context(), table, roomID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"table": table, "room_id": roomID, "count": n})
}

func (h *Handler) purgeMemories(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	table, ok := parseTable(w, r)
	if !ok {
		return
	}

	if err := h.store.PurgeRoom(r.Context(), table, roomID); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "purged"})
}

type ingestRequest struct {
	Source string `json:"source"`
	Text   string `json:"text"`
	RoomID string `json:"room_id"`
	Shared bool   `json:"shared,omitempty"`
}

func (h *Handler) ingestKnowledge(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Source == "" || req.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "source and text are required"})
		return
	}

	created, err := h.ingestor.Ingest(r.Context(), knowledge.Document{
		Source:  req.Source,
		Text:    req.Text,
		AgentID: h.persona.ID,
		RoomID:  req.RoomID,
		Shared:  req.Shared,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"source": req.Source, "created": created})
}

// parseTable resolves the table query parameter, defaulting to conversation.
// Writes the error response itself when the name is unknown.
func parseTable(w http.ResponseWriter, r *http.Request) (memory.Table, bool) {
	name := r.URL.Query().Get("table")
	if name == "" {
		return memory.TableConversation, true
	}
	for _, t := range memory.Tables() {
		if string(t) == name {
			return t, true
		}
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown table " + name})
	return "", false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
