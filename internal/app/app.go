package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ryandmonk/knowledge-graph-brain/internal/graph"
	"github.com/ryandmonk/knowledge-graph-brain/internal/handlers"
	"github.com/ryandmonk/knowledge-graph-brain/internal/middleware"
	"github.com/ryandmonk/knowledge-graph-brain/internal/observability"
	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/logger"
	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/neo4jdb"
	"github.com/ryandmonk/knowledge-graph-brain/internal/repos"
	"github.com/ryandmonk/knowledge-graph-brain/internal/runs"
	"github.com/ryandmonk/knowledge-graph-brain/internal/server"
	"github.com/ryandmonk/knowledge-graph-brain/internal/services"
)

type Repos struct {
	KnowledgeBase repos.KnowledgeBaseRepo
	APIKey        repos.APIKeyRepo
}

type Services struct {
	Schema services.SchemaService
	Ingest services.IngestService
	Status services.StatusService
	Auth   services.AuthService
}

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Store    graph.Store
	RunStore runs.Store
	Router   *gin.Engine
	Repos    Repos
	Services Services

	neo4jClient  *neo4jdb.Client
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg := LoadConfig()
	observability.Init()
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "knowledge-graph-brain",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	client, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init neo4j: %w", err)
	}
	store := graph.NewNeo4jStore(client, log)

	log.Info("Applying pending migrations...")
	applied, err := graph.NewMigrator(store, log).ApplyPending(ctx)
	if err != nil {
		_ = client.Close(ctx)
		log.Sync()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	for range applied {
		observability.Current().IncMigrationsApplied()
	}
	if len(applied) > 0 {
		log.Info("Migrations applied", "count", len(applied), "ids", strings.Join(applied, ","))
	}

	runStore, err := wireRunStore(cfg, log)
	if err != nil {
		_ = client.Close(ctx)
		log.Sync()
		return nil, err
	}

	log.Info("Wiring repos...")
	reposet := Repos{
		KnowledgeBase: repos.NewKnowledgeBaseRepo(store, log),
		APIKey:        repos.NewAPIKeyRepo(store, log),
	}

	log.Info("Wiring services...")
	merger := graph.NewMerger(store, log)
	serviceset := Services{
		Schema: services.NewSchemaService(store, reposet.KnowledgeBase, log),
		Ingest: services.NewIngestService(reposet.KnowledgeBase, merger, runStore, log),
		Status: services.NewStatusService(reposet.KnowledgeBase, runStore, log),
		Auth:   services.NewAuthService(reposet.APIKey, log),
	}

	log.Info("Wiring handlers...")
	authMW := middleware.NewAuthMiddleware(log, serviceset.Auth)
	router := server.NewRouter(server.RouterConfig{
		AuthMiddleware: authMW,
		SchemaHandler:  handlers.NewSchemaHandler(serviceset.Schema, serviceset.Auth),
		IngestHandler:  handlers.NewIngestHandler(serviceset.Ingest, serviceset.Auth),
		StatusHandler:  handlers.NewStatusHandler(serviceset.Status),
		AuthHandler:    handlers.NewAuthHandler(serviceset.Auth),
		AllowOrigins:   cfg.AllowOrigins,
	})

	return &App{
		Log:          log,
		Cfg:          cfg,
		Store:        store,
		RunStore:     runStore,
		Router:       router,
		Repos:        reposet,
		Services:     serviceset,
		neo4jClient:  client,
		otelShutdown: otelShutdown,
	}, nil
}

func wireRunStore(cfg Config, log *logger.Logger) (runs.Store, error) {
	switch strings.ToLower(cfg.RunStoreKind) {
	case "", "memory":
		return runs.NewMemoryStore(log), nil
	case "redis":
		store, err := runs.NewRedisStoreFromEnv(log)
		if err != nil {
			return nil, fmt.Errorf("init redis run store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown RUN_STORE %q (want memory or redis)", cfg.RunStoreKind)
	}
}

// Start launches background work: the stale-run reaper that reconciles runs
// abandoned by a dead process to failed.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go a.reapLoop(ctx)
}

func (a *App) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(a.Cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reaped, err := a.RunStore.ReapStale(ctx, a.Cfg.RunStaleAfter)
			if err != nil {
				a.Log.Warn("stale run reap failed", "error", err)
				continue
			}
			if reaped > 0 {
				a.Log.Warn("stale runs reconciled to failed", "count", reaped, "older_than", a.Cfg.RunStaleAfter.String())
				observability.Current().AddRunsReaped(reaped)
			}
		}
	}
}

func (a *App) Run() error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("Listening", "addr", a.Cfg.Addr)
	return a.Router.Run(a.Cfg.Addr)
}

func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if closer, ok := a.RunStore.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.Log.Warn("run store close failed", "error", err)
		}
	}
	if a.neo4jClient != nil {
		if err := a.neo4jClient.Close(ctx); err != nil {
			a.Log.Warn("neo4j close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
