package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/praxishq/llm-gateway/config"
	"github.com/praxishq/llm-gateway/internal/auth"
	"github.com/praxishq/llm-gateway/internal/budget"
	"github.com/praxishq/llm-gateway/internal/cache"
	"github.com/praxishq/llm-gateway/internal/gateway"
	"github.com/praxishq/llm-gateway/internal/provider"
	"github.com/praxishq/llm-gateway/internal/provider/anthropic"
	"github.com/praxishq/llm-gateway/internal/provider/local"
	"github.com/praxishq/llm-gateway/internal/provider/mock"
	"github.com/praxishq/llm-gateway/internal/provider/openai"
	"github.com/praxishq/llm-gateway/internal/registry"
	"github.com/praxishq/llm-gateway/internal/seeder"
	"github.com/praxishq/llm-gateway/internal/telemetry"
	"github.com/praxishq/llm-gateway/internal/usage"
	"github.com/praxishq/llm-gateway/pkg/ratelimit"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	// 2. Init logger
	log := newLogger(cfg)

	// 3. Init telemetry
	shutdownTracer, err := telemetry.InitTracer("llm-gateway", cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init tracer")
	}
	defer shutdownTracer()

	// 4. Connect PostgreSQL
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping postgres")
	}
	log.Info().Msg("PostgreSQL connected")

	// 5. Connect Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to ping redis")
	}
	log.Info().Msg("Redis connected")

	// 6. Init auth
	authStore := auth.NewPostgresStore(pool)
	authMiddleware := auth.NewMiddleware(authStore, rdb, log)

	// 7. Init budget tracker
	budgetStore := budget.NewPostgresStore(pool)
	budgetTracker := budget.NewTracker(budgetStore,
		cfg.TenantBudgetDayUSD, cfg.TenantBudgetMonthUSD, cfg.UserDailyQuota)

	// 8. Init rate limiter
	limiter := ratelimit.NewRedisLimiter(rdb, cfg.RatePerMinute, cfg.RatePerHour, cfg.RatePerDay)

	// 9. Init response cache
	var respCache cache.Cache
	if cfg.CacheEnabled {
		respCache = cache.NewRedis(rdb)
	}
	cacheTTL := map[provider.TaskType]time.Duration{
		provider.TaskPRD:      cfg.CacheTTLPRD,
		provider.TaskStory:    cfg.CacheTTLStory,
		provider.TaskAnalysis: cfg.CacheTTLAnalysis,
		provider.TaskChat:     cfg.CacheTTLChat,
	}

	// 10. Init provider registry
	routes := map[provider.TaskType][]config.RouteEntry{
		provider.TaskPRD:      cfg.RoutePRD,
		provider.TaskStory:    cfg.RouteStory,
		provider.TaskAnalysis: cfg.RouteAnalysis,
		provider.TaskChat:     cfg.RouteChat,
	}
	reg := registry.New(routes, log)
	if cfg.OpenAIAPIKey != "" {
		reg.Register(openai.New(cfg.OpenAIAPIKey), registry.Profile{MaxTokens: 16384, LatencyHintMs: 1200})
	}
	if cfg.AnthropicAPIKey != "" {
		reg.Register(anthropic.New(cfg.AnthropicAPIKey), registry.Profile{MaxTokens: 8192, LatencyHintMs: 1500})
	}
	if cfg.LocalLLMURL != "" {
		reg.Register(local.New(cfg.LocalLLMURL), registry.Profile{MaxTokens: 8192, LatencyHintMs: 4000})
	}
	if cfg.MockEnabled {
		reg.Register(mock.New(), registry.Profile{MaxTokens: 4096, LatencyHintMs: 1})
	}

	// 11. Init usage recording
	usageStore := usage.NewPostgresStore(pool)
	usageWriter := usage.NewWriter(usageStore, 1024, log)
	defer usageWriter.Close()

	// 12. Init gateway router and handler
	tracer := otel.GetTracerProvider().Tracer("llm-gateway")
	router := gateway.NewRouter(reg, respCache, budgetTracker, limiter, usageWriter,
		cfg.ProviderTimeout, cacheTTL, tracer, log)
	handler := gateway.NewHandler(router, usageStore)

	// 13. Seed test API key if RUN_SEED=true
	if os.Getenv("RUN_SEED") == "true" {
		seeder.SeedTestAPIKey(ctx, authStore, log)
	}

	// 14. Init Chi router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Public routes
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"llm-gateway"}`))
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/v1/generate", handler.HandleGenerate)
		r.Get("/v1/usage", handler.HandleUsage)
	})

	// 15. Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("LLM gateway starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-quit
	log.Info().Msg("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	usageWriter.Close()
	log.Info().Msg("server stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out = zerolog.ConsoleWriter{Out: os.Stderr}
	if !cfg.LogPretty {
		return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
