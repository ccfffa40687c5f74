package provider

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// Client is the generation boundary: an opaque collaborator that turns an
// assembled context into a draft response.
type Client interface {
	ID() string
	Name() string
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	HealthCheck(ctx context.Context) error
}

// Config holds one generation provider's settings.
type Config struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"` // "openai" or "anthropic"
	Name     string        `json:"name"`
	Endpoint string        `json:"endpoint"`
	APIKey   string        `json:"api_key"`
	Model    string        `json:"model"`
	Timeout  time.Duration `json:"-"`
}

// ChatRequest represents a generation request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse represents a provider response.
type ChatResponse struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Draft is a generated response with its embedded action tag, if any.
type Draft struct {
	Text      string
	ActionTag string
}

// actionTagRe matches a trailing "(ACTION: NAME)" marker the model appends
// when it elects an action.
var actionTagRe = regexp.MustCompile(`(?i)\(\s*action\s*:\s*([^)]+)\)\s*$`)

// ParseDraft splits a raw completion into its text and action tag.
func ParseDraft(content string) Draft {
	content = strings.TrimSpace(content)
	if m := actionTagRe.FindStringSubmatch(content); m != nil {
		return Draft{
			Text:      strings.TrimSpace(strings.TrimSuffix(content, m[0])),
			ActionTag: strings.TrimSpace(m[1]),
		}
	}
	return Draft{Text: content}
}
