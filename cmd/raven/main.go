package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nidhogg/ravenmoor/internal/action"
	"github.com/nidhogg/ravenmoor/internal/api"
	"github.com/nidhogg/ravenmoor/internal/cache"
	"github.com/nidhogg/ravenmoor/internal/composer"
	"github.com/nidhogg/ravenmoor/internal/config"
	"github.com/nidhogg/ravenmoor/internal/embedding"
	"github.com/nidhogg/ravenmoor/internal/knowledge"
	"github.com/nidhogg/ravenmoor/internal/memory"
	"github.com/nidhogg/ravenmoor/internal/persona"
	"github.com/nidhogg/ravenmoor/internal/provider"
	"github.com/nidhogg/ravenmoor/internal/providers"
	"github.com/nidhogg/ravenmoor/internal/retrieval"
	"github.com/nidhogg/ravenmoor/internal/runtime"
	"github.com/nidhogg/ravenmoor/internal/vectorstore"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Ravenmoor...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/raven.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Load the persona
	personaPath := cfg.PersonaPath
	if personaPath == "" {
		personaPath = "configs/persona.json"
	}
	p, err := persona.Load(personaPath)
	if err != nil {
		logger.Fatal("failed to load persona", zap.String("path", personaPath), zap.Error(err))
	}
	logger.Info("Persona loaded", zap.String("id", p.ID), zap.String("name", p.Name))

	// Initialize the embedding gateway
	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		logger.Fatal("failed to initialize embedding provider", zap.Error(err))
	}
	gateway := embedding.NewGateway(embedder, logger)

	// Initialize the memory store. Without Postgres the server runs on the
	// in-process store, which loses everything on restart.
	ctx := context.Background()
	var store memory.Store
	var sqlStore *memory.SQLStore
	if cfg.Store.Postgres.DSN != "" {
		var vectors *vectorstore.Client
		if cfg.Store.Qdrant.Host != "" {
			vc, vErr := vectorstore.NewClient(vectorstore.Config{
				Host: cfg.Store.Qdrant.Host,
				Port: cfg.Store.Qdrant.Port,
			})
			if vErr != nil {
				logger.Warn("Qdrant unavailable, similarity search disabled", zap.Error(vErr))
			} else {
				vectors = vc
			}
		}

		ss, sErr := memory.NewSQLStore(cfg.Store.Postgres.DSN, vectors, gateway, logger)
		if sErr != nil {
			logger.Fatal("PostgreSQL unavailable", zap.Error(sErr))
		}
		if mErr := ss.Migrate(ctx, "migrations"); mErr != nil {
			logger.Fatal("migration failed", zap.Error(mErr))
		}
		if cErr := ss.InitCollections(ctx); cErr != nil {
			logger.Warn("vector collection init failed", zap.Error(cErr))
		}
		store = ss
		sqlStore = ss
	} else {
		logger.Warn("no Postgres DSN configured, using in-process memory store")
		store = memory.NewMemStore(gateway)
	}

	// Initialize the scoped action cache
	var scoped cache.Cache
	if cfg.Store.Redis.URL != "" {
		ttl := time.Duration(cfg.Action.CacheTTLSeconds) * time.Second
		rc, rErr := cache.NewRedisCache(cfg.Store.Redis.URL, ttl)
		if rErr != nil {
			logger.Warn("Redis unavailable, using in-process action cache", zap.Error(rErr))
		} else {
			scoped = rc
			defer rc.Close()
		}
	}
	if scoped == nil {
		scoped = cache.NewMemoryCache()
	}

	// Initialize the provider router
	router := provider.NewRouter(logger)
	timeout := time.Duration(cfg.Generation.TimeoutSeconds) * time.Second
	for _, pc := range cfg.Generation.Providers {
		pc.Timeout = timeout
		switch pc.Type {
		case "openai":
			router.Register(provider.NewOpenAIClient(pc, logger))
		case "anthropic":
			router.Register(provider.NewAnthropicClient(pc, logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}
	if cfg.Generation.Default != "" {
		router.SetDefault(cfg.Generation.Default)
	}
	router.SetFallbacks(cfg.Generation.Fallbacks)

	// Assemble the pipeline
	engine := retrieval.NewEngine(store, gateway, cfg.Retrieval.Engine(), logger)
	contextProviders := []composer.Provider{
		&providers.Clock{},
		&providers.Facts{Persona: p},
		&providers.Lore{Store: store, AgentID: p.ID},
		&providers.Profile{Store: store},
	}
	comp := composer.New(store, engine, contextProviders, cfg.Composer.Composer(), logger)

	actions := []*action.Action{action.NewContinueAction()}
	dispatcher := action.NewDispatcher(actions, action.FuzzyMatcher{}, store, scoped, logger)
	if cfg.Action.Apology != "" {
		dispatcher.SetApology(cfg.Action.Apology)
	}

	rt := runtime.New(store, comp, router, dispatcher, actions, p, logger)
	if err := rt.SeedLore(ctx); err != nil {
		logger.Warn("lore seeding failed", zap.Error(err))
	}

	// Ingest configured knowledge sources
	ingestor := knowledge.NewIngestor(store, knowledge.DefaultChunkConfig(), logger)
	for _, src := range cfg.Knowledge {
		text, rErr := os.ReadFile(src.Path)
		if rErr != nil {
			logger.Warn("knowledge source unreadable", zap.String("path", src.Path), zap.Error(rErr))
			continue
		}
		if _, iErr := ingestor.Ingest(ctx, knowledge.Document{
			Source:  src.Path,
			Text:    string(text),
			AgentID: p.ID,
			RoomID:  src.RoomID,
			Shared:  src.Shared,
		}); iErr != nil {
			logger.Warn("knowledge ingestion failed", zap.String("path", src.Path), zap.Error(iErr))
		}
	}

	// Build HTTP handler
	handler := api.NewHandler(rt, store, ingestor, router, p, logger)

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	if port == "0" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Ravenmoor listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Ravenmoor...")
	srv.Shutdown(context.Background())
	if sqlStore != nil {
		sqlStore.Close()
	}
}
