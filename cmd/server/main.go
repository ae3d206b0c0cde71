package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	id "persona/pkg/domain"
	"persona/pkg/platform/httputil"

	"persona/internal/audit"
	"persona/internal/audit/kafka"
	auditmemory "persona/internal/audit/store/memory"
	auditpostgres "persona/internal/audit/store/postgres"
	"persona/internal/identity/cache"
	"persona/internal/identity/handler"
	identitymetrics "persona/internal/identity/metrics"
	"persona/internal/identity/propagation"
	"persona/internal/identity/propagation/adapters"
	"persona/internal/identity/registry"
	memorystore "persona/internal/identity/store/memory"
	postgresstore "persona/internal/identity/store/postgres"
	redisstore "persona/internal/identity/store/redis"
	"persona/internal/identity/switcher"
	"persona/internal/jwtauth"
	"persona/internal/platform/config"
	"persona/internal/platform/httpserver"
	"persona/internal/platform/logger"
	platformmetrics "persona/internal/platform/metrics"
	"persona/internal/platform/middleware"
	platformredis "persona/internal/platform/redis"
)

const auditOutboxSize = 256

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()
	log := logger.New()
	platMetrics := platformmetrics.New()
	idMetrics := identitymetrics.New()

	// Persistent tier: postgres wins over redis, memory is the dev fallback.
	tier2, cleanup, err := newPersistentStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	cacheManager := cache.NewManager(tier2, cfg.Cache.TTL, cfg.Cache.MaxEntries,
		cache.WithLogger(log),
		cache.WithMetrics(idMetrics),
	)

	auditStore, auditCleanup, err := newAuditStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer auditCleanup()

	trailOpts := []audit.Option{audit.WithLogger(log)}
	var outbox chan audit.Entry
	var publisher *kafka.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err = kafka.New(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			return fmt.Errorf("kafka audit publisher: %w", err)
		}
		defer publisher.Close()
		outbox = make(chan audit.Entry, auditOutboxSize)
		trailOpts = append(trailOpts, audit.WithOutbox(outbox))
	}
	trail := audit.NewTrail(auditStore, trailOpts...)

	reg := registry.New(trail,
		registry.WithLogger(log),
		registry.WithMetrics(idMetrics),
		registry.WithCache(cacheManager),
		registry.WithMaxDepth(cfg.Identity.MaxDepth),
	)
	root, err := reg.Bootstrap(ctx, cfg.Identity.RootName)
	if err != nil {
		return fmt.Errorf("bootstrap root identity: %w", err)
	}

	propagator := propagation.New(
		[]propagation.ModuleAdapter{
			adapters.NewConsent(),
			adapters.NewKeyManagement(),
			adapters.NewWallet(),
			adapters.NewAuditSink(auditRecorder{trail}),
			adapters.NewSearchIndex(),
		},
		propagation.WithTimeout(cfg.Switch.AdapterTimeout),
		propagation.WithLogger(log),
		propagation.WithMetrics(idMetrics),
	)

	sw := switcher.New(reg, propagator, trail,
		switcher.WithLogger(log),
		switcher.WithMetrics(idMetrics),
		switcher.WithCache(cacheManager),
	)
	sw.Activate(root.ID)

	jwtService := jwtauth.New(cfg.JWTSigningKey, "persona")
	h := handler.New(reg, sw, cacheManager, trail, log)
	router := newRouter(h, jwtService, log, platMetrics)
	server := httpserver.New(cfg.Addr, router)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return cacheManager.Run(ctx, cfg.Cache.SweepInterval)
	})
	if publisher != nil {
		worker := audit.NewWorker(publisher, outbox, log)
		group.Go(func() error {
			return worker.Run(ctx)
		})
	}
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func newRouter(h *handler.Handler, jwtService *jwtauth.Service, log *slog.Logger, platMetrics *platformmetrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Latency(platMetrics))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(jwtService, log))
		h.Routes(r)
	})
	return r
}

// auditRecorder lets the audit-sink adapter feed propagation notices into
// the trail without the adapters package importing it.
type auditRecorder struct {
	trail *audit.Trail
}

func (a auditRecorder) Record(ctx context.Context, identityID id.IdentityID, actor string) error {
	_, err := a.trail.Append(ctx, identityID, audit.ActionSecurityEvent, actor,
		map[string]string{"event": "context_propagated"})
	return err
}

func newPersistentStore(ctx context.Context, cfg config.Config, log *slog.Logger) (cache.Tier2, func(), error) {
	if cfg.Postgres.DSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres pool: %w", err)
		}
		store := postgresstore.New(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres schema: %w", err)
		}
		log.Info("persistent tier: postgres")
		return store, pool.Close, nil
	}
	if cfg.Redis.URL != "" {
		client, err := platformredis.New(cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("redis client: %w", err)
		}
		log.Info("persistent tier: redis")
		return redisstore.New(client.Client), func() { _ = client.Close() }, nil
	}
	log.Warn("persistent tier: in-memory, snapshots will not survive restarts")
	return memorystore.New(), func() {}, nil
}

func newAuditStore(ctx context.Context, cfg config.Config) (audit.Store, func(), error) {
	if cfg.Postgres.DSN == "" {
		return auditmemory.New(), func() {}, nil
	}
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("audit db: %w", err)
	}
	store := auditpostgres.New(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("audit schema: %w", err)
	}
	return store, func() { _ = db.Close() }, nil
}
