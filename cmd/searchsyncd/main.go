package main

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"searchsync/internal/articles"
	"searchsync/internal/cache"
	"searchsync/internal/database/postgresql/migrations"
	"searchsync/internal/errors"
	"searchsync/internal/events"
	"searchsync/internal/search"
	"searchsync/internal/syncer"
	"searchsync/internal/telemetry"
)

type Config struct {
	Env  string
	Port string

	DatabaseURL string

	TypesenseURL    string
	TypesenseKey    string
	TypesensePrefix string

	NatsURL      string
	RedisAddr    string
	RedisPass    string
	CollectorURL string

	EventsConfig *events.EventConfig
}

func main() {
	baseHandler := slog.NewJSONHandler(os.Stdout, nil)
	logger := slog.New(telemetry.NewTraceHandler(baseHandler))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("Application terminated with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := loadConfig()
	logger.Info("Starting searchsync daemon", "env", cfg.Env)
	errors.SetDevelopment(cfg.Env == "development")

	if cfg.CollectorURL != "" {
		shutdownTracer, err := telemetry.InitTracer("searchsyncd", cfg.CollectorURL)
		if err != nil {
			return fmt.Errorf("failed to init tracer: %w", err)
		}
		defer shutdownTracer(context.Background())
	}

	if err := runMigrations(ctx, cfg.DatabaseURL); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to db: %w", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping db: %w", err)
	}

	gw := search.NewClient(search.Config{
		URL:    cfg.TypesenseURL,
		APIKey: cfg.TypesenseKey,
		Prefix: cfg.TypesensePrefix,
	})
	if err := gw.HealthCheck(ctx); err != nil {
		return fmt.Errorf("failed to reach search engine: %w", err)
	}

	// Redis is optional; without it Get skips the cache and full reindex
	// runs unlocked.
	var rdb *cache.RedisClient
	if cfg.RedisAddr != "" {
		poolSize, _ := strconv.Atoi(os.Getenv("REDIS_POOL_SIZE"))
		minIdle, _ := strconv.Atoi(os.Getenv("REDIS_MIN_IDLE_CONNS"))
		rdb, err = cache.NewRedisClient(cache.Config{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPass,
			PoolSize:     poolSize,
			MinIdleConns: minIdle,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rdb.Close()
	}

	articlesService := articles.NewService(dbPool, gw, rdb, logger)
	if err := articlesService.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("failed to ensure collections: %w", err)
	}

	registry := newRegistry(articlesService)
	reindexer := syncer.NewReindexer(gw, registry.all(), rdb, logger)

	// NATS is optional too; without it index repair only happens over the
	// admin surface.
	var bus events.Bus
	if cfg.NatsURL != "" {
		bus, err = events.NewNATSBus(cfg.NatsURL, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		if err := subscribe(bus, cfg.EventsConfig, registry, logger); err != nil {
			return fmt.Errorf("failed to subscribe to events: %w", err)
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mount(dbPool, gw, registry, reindexer),
	}

	go func() {
		logger.Info("HTTP surface listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("Shutting down...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
	if bus != nil {
		// Drain so in-flight reindex events finish before we exit.
		if err := bus.Close(); err != nil {
			logger.Error("NATS drain error", "error", err)
		}
	}
	if err := gw.Close(); err != nil {
		logger.Error("Search client close error", "error", err)
	}

	logger.Info("Shutdown complete.")
	return nil
}

// runMigrations applies the embedded goose migrations over a throwaway
// database/sql connection; the pgx pool is opened afterwards.
func runMigrations(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// registry routes event and admin requests to the service owning a type.
type registry struct {
	services map[string]syncer.Indexed
}

func newRegistry(services ...syncer.Indexed) *registry {
	r := &registry{services: make(map[string]syncer.Indexed)}
	for _, svc := range services {
		r.services[svc.TypeName()] = svc
	}
	return r
}

func (r *registry) all() []syncer.Indexed {
	out := make([]syncer.Indexed, 0, len(r.services))
	for _, svc := range r.services {
		out = append(out, svc)
	}
	return out
}

// itemIndexer is the single-item slice of the sync service the event and
// admin surfaces need, beyond what Indexed already carries.
type itemIndexer interface {
	ReindexOne(ctx context.Context, id uuid.UUID) error
	DeindexOne(ctx context.Context, id uuid.UUID) error
}

func (r *registry) lookup(typeName string) (itemIndexer, bool) {
	svc, ok := r.services[typeName]
	if !ok {
		return nil, false
	}
	item, ok := svc.(itemIndexer)
	return item, ok
}

func subscribe(bus events.Bus, cfg *events.EventConfig, reg *registry, logger *slog.Logger) error {
	reader := events.NewEventReader(bus, cfg, logger)

	if _, err := reader.SubscribeToReindexEvents(func(ctx context.Context, evt events.ReindexItemEvent) error {
		svc, ok := reg.lookup(evt.TypeName)
		if !ok {
			// Unroutable events would redeliver forever; ack them away.
			logger.Error("Discarding reindex event for unknown type", "type", evt.TypeName)
			return nil
		}
		id, err := uuid.Parse(evt.ID)
		if err != nil {
			logger.Error("Discarding reindex event with invalid id", "id", evt.ID, "error", err)
			return nil
		}
		return svc.ReindexOne(ctx, id)
	}); err != nil {
		return err
	}

	_, err := reader.SubscribeToDeindexEvents(func(ctx context.Context, evt events.DeindexItemEvent) error {
		svc, ok := reg.lookup(evt.TypeName)
		if !ok {
			logger.Error("Discarding deindex event for unknown type", "type", evt.TypeName)
			return nil
		}
		id, err := uuid.Parse(evt.ID)
		if err != nil {
			logger.Error("Discarding deindex event with invalid id", "id", evt.ID, "error", err)
			return nil
		}
		return svc.DeindexOne(ctx, id)
	})
	return err
}

func mount(db *pgxpool.Pool, gw search.Gateway, reg *registry, reindexer *syncer.Reindexer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			http.Error(w, "Database unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := gw.HealthCheck(ctx); err != nil {
			http.Error(w, "Search engine unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/reindex", func(w http.ResponseWriter, req *http.Request) {
			if err := reindexer.Run(req.Context()); err != nil {
				errors.RespondError(w, req, err)
				return
			}
			errors.RespondJSON(w, http.StatusOK, map[string]string{"status": "reindexed"})
		})

		r.Post("/reindex/{type}/{id}", itemRoute(reg, func(ctx context.Context, svc itemIndexer, id uuid.UUID) error {
			return svc.ReindexOne(ctx, id)
		}))

		r.Delete("/index/{type}/{id}", itemRoute(reg, func(ctx context.Context, svc itemIndexer, id uuid.UUID) error {
			return svc.DeindexOne(ctx, id)
		}))
	})

	return r
}

func itemRoute(reg *registry, op func(ctx context.Context, svc itemIndexer, id uuid.UUID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		svc, ok := reg.lookup(chi.URLParam(req, "type"))
		if !ok {
			errors.RespondError(w, req, errors.New(errors.ErrNotFound, "Unknown type", nil))
			return
		}
		id, err := uuid.Parse(chi.URLParam(req, "id"))
		if err != nil {
			errors.RespondError(w, req, errors.New(errors.ErrInvalidInput, "Invalid id", err))
			return
		}
		if err := op(req.Context(), svc, id); err != nil {
			errors.RespondError(w, req, err)
			return
		}
		errors.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func loadConfig() Config {
	get := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}

	return Config{
		Env:             get("SEARCHSYNC_ENV", "production"),
		Port:            get("SEARCHSYNC_PORT", "8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		TypesenseURL:    os.Getenv("TYPESENSE_URL"),
		TypesenseKey:    os.Getenv("TYPESENSE_API_KEY"),
		TypesensePrefix: get("TYPESENSE_PREFIX", "searchsync"),
		NatsURL:         os.Getenv("NATS_URL"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPass:       os.Getenv("REDIS_PASSWORD"),
		CollectorURL:    os.Getenv("OTEL_COLLECTOR_URL"),
		EventsConfig:    events.NewEventConfig(),
	}
}
