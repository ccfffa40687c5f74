package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/nidhogg/ravenmoor/internal/composer"
	"github.com/nidhogg/ravenmoor/internal/embedding"
	"github.com/nidhogg/ravenmoor/internal/provider"
	"github.com/nidhogg/ravenmoor/internal/retrieval"
)

// Config is the top-level configuration structure.
type Config struct {
	Server      ServerConfig      `json:"server"`
	Store       StoreConfig       `json:"store"`
	Embedding   embedding.Config  `json:"embedding"`
	Generation  GenerationConfig  `json:"generation"`
	PersonaPath string            `json:"persona_path"`
	Retrieval   RetrievalConfig   `json:"retrieval"`
	Composer    ComposerConfig    `json:"composer"`
	Action      ActionConfig      `json:"action"`
	Knowledge   []KnowledgeSource `json:"knowledge,omitempty"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type StoreConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Qdrant   QdrantConfig   `json:"qdrant"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type QdrantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type GenerationConfig struct {
	Providers []provider.Config `json:"providers"`
	// Default selects the provider used first; empty means the first
	// registered one.
	Default string `json:"default,omitempty"`
	// Fallbacks are tried in order when the default fails.
	Fallbacks      []string `json:"fallbacks,omitempty"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"`
}

type ActionConfig struct {
	// CacheTTLSeconds bounds scoped action state in the cache. Zero uses
	// the cache default.
	CacheTTLSeconds int `json:"cache_ttl_seconds,omitempty"`
	// Apology overrides the fallback line sent when a handler fails.
	Apology string `json:"apology,omitempty"`
}

// KnowledgeSource names a document to ingest at startup.
type KnowledgeSource struct {
	Path   string `json:"path"`
	RoomID string `json:"room_id,omitempty"`
	Shared bool   `json:"shared,omitempty"`
}

// RetrievalConfig wraps the retrieval tuning with a JSON-friendly
// half-life field.
type RetrievalConfig struct {
	retrieval.Config
	RecencyHalfLifeHours float64 `json:"recency_half_life_hours,omitempty"`
}

// Engine resolves the wrapped config, converting the half-life.
func (c RetrievalConfig) Engine() retrieval.Config {
	out := c.Config
	if c.RecencyHalfLifeHours > 0 {
		out.RecencyHalfLife = time.Duration(c.RecencyHalfLifeHours * float64(time.Hour))
	}
	return out
}

// ComposerConfig wraps the composer tuning with a JSON-friendly
// deadline field.
type ComposerConfig struct {
	composer.Config
	DeadlineSeconds int `json:"deadline_seconds,omitempty"`
}

// Composer resolves the wrapped config, converting the deadline.
func (c ComposerConfig) Composer() composer.Config {
	out := c.Config
	if c.DeadlineSeconds > 0 {
		out.Deadline = time.Duration(c.DeadlineSeconds) * time.Second
	}
	return out
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
