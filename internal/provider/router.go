package provider

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Router holds the registered generation clients and routes requests to
// the default, falling back through the configured chain on failure.
type Router struct {
	clients   map[string]Client
	fallbacks []string
	defaults  string
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewRouter creates a new client router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		clients: make(map[string]Client),
		logger:  logger,
	}
}

// Register adds a client to the router. The first registered becomes the
// default.
func (r *Router) Register(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID()] = c
	if r.defaults == "" {
		r.defaults = c.ID()
	}
	r.logger.Info("registered generation client", zap.String("id", c.ID()), zap.String("name", c.Name()))
}

// SetDefault sets the default client.
func (r *Router) SetDefault(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = id
}

// SetFallbacks configures the fallback chain tried after the default.
func (r *Router) SetFallbacks(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks = ids
}

// Chat sends a request through the default client, then the fallbacks.
func (r *Router) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	primary, ok := r.clients[r.defaults]
	if !ok {
		return nil, fmt.Errorf("no generation client registered")
	}

	resp, err := primary.Chat(ctx, req)
	if err == nil {
		return resp, nil
	}
	r.logger.Warn("primary generation client failed, trying fallbacks",
		zap.String("client", primary.ID()), zap.Error(err))

	for _, id := range r.fallbacks {
		fb, ok := r.clients[id]
		if !ok {
			continue
		}
		resp, err = fb.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		r.logger.Warn("fallback client failed", zap.String("client", id), zap.Error(err))
	}

	return nil, fmt.Errorf("all generation clients failed: %w", err)
}

// Get returns a client by ID.
func (r *Router) Get(id string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// List returns all registered clients.
func (r *Router) List() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}
