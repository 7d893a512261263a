package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/STRATINT/newsdesk/internal/api"
	"github.com/STRATINT/newsdesk/internal/auth"
	"github.com/STRATINT/newsdesk/internal/config"
	"github.com/STRATINT/newsdesk/internal/database"
	"github.com/STRATINT/newsdesk/internal/delivery"
	"github.com/STRATINT/newsdesk/internal/enrichment"
	"github.com/STRATINT/newsdesk/internal/ingestion"
	"github.com/STRATINT/newsdesk/internal/ledger"
	"github.com/STRATINT/newsdesk/internal/logging"
	"github.com/STRATINT/newsdesk/internal/metrics"
	"github.com/STRATINT/newsdesk/internal/scheduler"
	"github.com/STRATINT/newsdesk/internal/server"
)

// backend is the persistence surface shared by PostgresStore and MemoryStore.
type backend interface {
	ingestion.ArticleStore
	ingestion.SourceRepository
	ledger.RunReader
	Ping(ctx context.Context) error
}

func main() {
	once := flag.Bool("once", false, "run a single collection pass and exit")
	cleanup := flag.Bool("cleanup", false, "delete expired articles and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *once, *cleanup); err != nil {
		logger.Error("newsdesk exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, once, cleanupOnly bool) error {
	logger.Info("starting newsdesk", "once", once, "cleanup", cleanupOnly)

	store, db, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	httpMetrics, err := metrics.NewHTTPCollector()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	pipelineMetrics, err := metrics.NewPipelineCollector(httpMetrics.Registry())
	if err != nil {
		return fmt.Errorf("init pipeline metrics: %w", err)
	}
	if db != nil {
		if err := database.RegisterPoolMetrics(httpMetrics.Registry(), db); err != nil {
			return err
		}
	}

	retention := scheduler.NewRetentionScheduler(store, cfg.Retention.Days, cfg.Retention.Interval, pipelineMetrics, logger)
	if cleanupOnly {
		_, err := retention.Cleanup(ctx, cfg.Retention.Days)
		return err
	}

	if err := syncSources(ctx, cfg.SourcesFile, store, logger); err != nil {
		return err
	}

	publisher := delivery.New(cfg.Delivery, logger)
	defer publisher.Close()

	var enricher enrichment.Enricher
	if cfg.Enrichment.APIKey != "" {
		logger.Info("using OpenAI enricher", "model", cfg.Enrichment.Model)
		enricher = enrichment.NewOpenAIClient(cfg.Enrichment, logger)
	} else {
		logger.Warn("OPENAI_API_KEY not set, using rule-based enricher")
		enricher = enrichment.NewMockEnricher()
	}

	orchestrator := ingestion.NewOrchestrator(
		ingestion.NewOrchestratorConfig(cfg.Collection),
		ingestion.DefaultRegistry(ingestion.NewHTTPFetcher(nil)),
		store,
		store,
		enricher,
		logger,
		ingestion.WithObserver(pipelineMetrics),
		ingestion.WithPublisher(publisher),
	)

	if once {
		result, err := orchestrator.RunOnce(ctx, ingestion.SourceFilter{})
		if err != nil {
			return err
		}
		if result.DeliveryError != nil {
			return fmt.Errorf("deliver articles: %w", result.DeliveryError)
		}
		return nil
	}

	var collectOpts []scheduler.CollectionOption
	if cfg.Redis.URL != "" {
		client, err := scheduler.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		// The lock must outlive the longest possible pass.
		ttl := max(cfg.Redis.LockTTL, cfg.Collection.PassTimeout+time.Minute)
		collectOpts = append(collectOpts, scheduler.WithLock(scheduler.NewRedisLock(client, scheduler.DefaultLockKey, ttl)))
		logger.Info("collection lock enabled", "key", scheduler.DefaultLockKey, "ttl", ttl)
	}
	collection := scheduler.NewCollectionScheduler(orchestrator, cfg.Collection.Interval, logger, collectOpts...)

	authn := auth.New(cfg.Auth)
	if !authn.Enabled() {
		logger.Warn("ADMIN_JWT_SECRET or ADMIN_PASSWORD_HASH not set, operator endpoints are disabled")
	}

	handler := api.Router(api.Deps{
		Runner:        orchestrator,
		Cleaner:       retention,
		Ledger:        ledger.New(store),
		Health:        store,
		Auth:          authn,
		Metrics:       httpMetrics,
		RetentionDays: cfg.Retention.Days,
		BaseContext:   ctx,
		Logger:        logger,
	})
	srv := server.New(cfg.Server, logger, handler)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		collection.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		retention.Start(ctx)
	}()

	serveErr := srv.Run(ctx)
	collection.Stop()
	retention.Stop()
	wg.Wait()
	logger.Info("newsdesk stopped")
	return serveErr
}

// openBackend connects to PostgreSQL and applies migrations, or falls back to the
// in-memory store when no database is configured.
func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (backend, *sql.DB, error) {
	if cfg.Database.URL == "" {
		logger.Warn("no database configured, using in-memory store")
		return ingestion.NewMemoryStore(), nil, nil
	}

	logger.Info("connecting to database")
	db, err := database.Connect(ctx, database.ConfigFrom(cfg))
	if err != nil {
		return nil, nil, err
	}
	logger.Info("database connected")

	if err := database.RunMigrations(ctx, db, cfg.Database.MigrationsDir, logger); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	return database.NewPostgresStore(db), db, nil
}

// syncSources upserts the sources declared in the sources file. Sources added through
// other means are left untouched.
func syncSources(ctx context.Context, path string, repo ingestion.SourceRepository, logger *slog.Logger) error {
	sources, err := config.LoadSources(path)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		logger.Warn("no sources declared", "file", path)
		return nil
	}

	for i := range sources {
		if err := repo.UpsertSource(ctx, &sources[i]); err != nil {
			return fmt.Errorf("upsert source %q: %w", sources[i].Name, err)
		}
	}
	logger.Info("sources synchronized", "file", path, "count", len(sources))
	return nil
}
