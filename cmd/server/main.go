package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"passq/internal/audit"
	"passq/internal/crypto"
	"passq/internal/mfa"
	"passq/internal/platform/config"
	"passq/internal/platform/database"
	"passq/internal/platform/health"
	"passq/internal/platform/httpserver"
	"passq/internal/platform/logger"
	"passq/internal/platform/metrics"
	"passq/internal/platform/middleware"
	platformRedis "passq/internal/platform/redis"
	"passq/internal/platform/tracer"
	"passq/internal/ratelimit"
	"passq/internal/token"
	"passq/internal/vault/device"
	"passq/internal/vault/handler"
	"passq/internal/vault/service"
	"passq/internal/vault/store/analytics"
	"passq/internal/vault/store/policy"
	"passq/internal/vault/store/revocation"
	"passq/internal/vault/store/rules"
	"passq/internal/vault/store/secret"
	"passq/internal/vault/store/session"
	"passq/internal/vault/store/user"
	"passq/internal/vault/workers/cleanup"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "passq:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New()
	m := metrics.New()

	log.Info("initializing passq", "addr", cfg.Addr, "issuer", cfg.Issuer)

	keyring, err := crypto.NewKeyring(cfg.EncryptionKeys, cfg.CurrentKeyVersion)
	if err != nil {
		return fmt.Errorf("building keyring: %w", err)
	}
	tokens := token.New([]byte(cfg.JWTSigningKey), cfg.Issuer, cfg.Audience,
		cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	// Stores default to in-memory and upgrade to Postgres/Redis when
	// configured. Memory stores are correct for a single instance only.
	var (
		users      user.Store       = user.NewInMemory()
		sessions   session.Store    = session.New()
		secrets    secret.Store     = secret.NewInMemory()
		policies   policy.Store     = policy.NewInMemory()
		events     analytics.Store  = analytics.NewInMemory()
		auditStore audit.Store      = audit.NewInMemoryStore()
		revoked    revocation.Store = revocation.NewInMemory()
		ruleStore  rules.Store      = rules.NewInMemory()
	)

	var pool *database.Pool
	if cfg.DatabaseURL != "" {
		pool, err = database.New(database.DefaultConfig(cfg.DatabaseURL))
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pool.Close()
		db := pool.DB()
		users = user.NewPostgres(db)
		sessions = session.NewPostgres(db)
		secrets = secret.NewPostgres(db)
		policies = policy.NewPostgres(db)
		events = analytics.NewPostgres(db)
		auditStore = audit.NewPostgres(db)
		ruleStore = rules.NewPostgres(db)
		log.Info("postgres storage enabled")
	}

	memLimiter := ratelimit.NewInMemory()
	var limiter ratelimit.Counter = memLimiter

	rdb, err := platformRedis.New(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	usingMemLimiter := true
	if rdb != nil {
		defer rdb.Close()
		revoked = revocation.NewRedis(rdb.Client, cfg.RefreshTokenTTL)
		limiter = ratelimit.NewRedis(rdb.Client)
		usingMemLimiter = false
		log.Info("redis revocation list enabled")
	}

	ledger := audit.NewLedger(auditStore, cfg.AuditKey,
		audit.WithLogger(log), audit.WithMetrics(m))
	// Security changes commit their ledger entry before the operation
	// returns, so the publisher stays synchronous here.
	publisher := audit.NewPublisher(ledger, audit.WithPublisherLogger(log))
	defer publisher.Close()

	mfaService := mfa.New(users, keyring, limiter, events,
		mfa.WithLogger(log), mfa.WithMetrics(m))

	vault := service.New(
		users, sessions, secrets, revoked, policies, tokens, keyring,
		device.NewService(true),
		service.WithAnalytics(events),
		service.WithRules(ruleStore),
		service.WithMFA(mfaService),
		service.WithAuditPublisher(publisher),
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithTracer(tracer.NewOTel()),
		service.WithDefaultLimits(cfg.MaxConcurrentSessions, cfg.MaxSessionsPerDevice),
	)

	cleanupOpts := []cleanup.Option{
		cleanup.WithInterval(cfg.CleanupInterval),
		cleanup.WithLogger(log),
	}
	if usingMemLimiter {
		cleanupOpts = append(cleanupOpts, cleanup.WithPruner(memLimiter))
	}
	cleaner, err := cleanup.New(sessions, revoked, events, cleanupOpts...)
	if err != nil {
		return err
	}

	healthHandler := health.New(envOr("PASSQ_ENV", "production"))
	if pool != nil {
		healthHandler.RegisterCheck("postgres", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(ctx)
		})
	}
	if rdb != nil {
		healthHandler.RegisterCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return rdb.Health(ctx)
		})
	}

	h := handler.New(vault, mfaService, log)
	mounts := []func(chi.Router){
		func(r chi.Router) {
			healthHandler.Register(r)
			r.Handle("/metrics", promhttp.Handler())
		},
	}
	if cfg.AdminToken != "" {
		mounts = append(mounts, func(r chi.Router) {
			r.Group(func(ar chi.Router) {
				ar.Use(middleware.RequireAdminToken(cfg.AdminToken, log))
				h.RegisterAdmin(ar)
			})
		})
	}
	router := handler.NewRouter(h, log, mounts...)

	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return cleaner.Start(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("server stopped")
	return nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
