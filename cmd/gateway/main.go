package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/materna-health/ai-gateway/internal/auth"
	"github.com/materna-health/ai-gateway/internal/config"
	"github.com/materna-health/ai-gateway/internal/gateway"
	"github.com/materna-health/ai-gateway/internal/ratelimit"
	"github.com/materna-health/ai-gateway/internal/router"
	"github.com/materna-health/ai-gateway/internal/safety"
	"github.com/materna-health/ai-gateway/internal/safety/policy"
	"github.com/materna-health/ai-gateway/internal/telemetry"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	cfg := loader.Config()

	// Connect to PostgreSQL (profiles / consent flags)
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable (gateway will start but the consent gate will fail)", "error", err)
	} else {
		logger.Info("database connected")
	}

	// Connect to Redis (rate limit counters). The limiter degrades to an
	// in-process counter when Redis is down, so this is non-fatal.
	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (rate limiting degrades to per-instance counters)", "error", err)
		} else {
			logger.Info("redis connected")
		}
	}

	metrics := telemetry.NewMetrics()

	// Build provider registry and health tracker
	providerRegistry := router.BuildFromConfig(loader.Providers())
	loader.OnReload(func() {
		providerRegistry.ReplaceAll(router.BuildFromConfig(loader.Providers()))
		logger.Info("provider registry reloaded")
	})

	cbCfg := cfg.Routing.CircuitBreaker
	healthTracker := router.NewHealthTracker(
		cbCfg.FailureThreshold,
		cbCfg.Timeout,
		cbCfg.HalfOpenMaxCalls,
		metrics.RecordBreakerTransition,
	)

	// Safety: crisis classifier + guardrail
	safetyCfg := func() *config.SafetyConfig { return loader.Safety() }
	guardrailCfg := func() config.GuardrailConfig { return loader.Safety().Guardrail }

	classifier := safety.NewCrisisClassifier(safetyCfg)
	evaluator := policy.NewEvaluator(guardrailCfg)
	if err := evaluator.Load(); err != nil {
		logger.Error("failed to load guardrail policies", "error", err)
		os.Exit(1)
	}
	loader.OnReload(func() {
		if err := evaluator.Load(); err != nil {
			logger.Error("failed to reload guardrail policies", "error", err)
		}
	})
	guardrail := safety.NewGuardrail(evaluator, guardrailCfg)

	requestRouter := router.New(providerRegistry, healthTracker, classifier, guardrail,
		func() *config.ProvidersConfig { return loader.Providers() },
		safetyCfg,
		metrics,
	)

	// HTTP wiring
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	profileStore := auth.NewPGProfileStore(dbPool)
	limiter := ratelimit.NewLimiter(rdb)
	handler := gateway.NewHandler(requestRouter, metrics)

	rlCfg := func() config.RateLimitConfig { return loader.Config().RateLimit }
	window := func() time.Duration { return rlCfg().Window }

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(gateway.CORS(func() config.CORSConfig { return loader.Config().CORS }))

	// Unauthenticated routes
	r.Get("/materna/v1/health", healthHandler(healthTracker))

	// Authenticated routes. Gate order is fixed: auth + consent, then the
	// per-user rate limit, then the handler (classification and routing).
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier, profileStore))
		r.With(ratelimit.Middleware(limiter, "chat",
			func() int { return rlCfg().ChatPerMinute }, window, metrics)).
			Post("/v1/ai", handler.Chat)
		r.With(ratelimit.Middleware(limiter, "moderation",
			func() int { return rlCfg().ModerationPerMinute }, window, metrics)).
			Post("/v1/moderation", handler.Moderation)
	})

	// Metrics listener on its own port
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics listener starting", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics listener failed", "error", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}

func healthHandler(tracker *router.HealthTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providers := make(map[string]string)
		for name, stats := range tracker.Snapshot() {
			providers[name] = stats.State.String()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "healthy",
			"version":   version,
			"providers": providers,
		})
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = "req_" + uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}
