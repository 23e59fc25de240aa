package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string // default: 8080

	// Database
	PostgresDSN string

	// Cache / shared state
	RedisAddr string

	// Providers
	OpenAIAPIKey    string
	AnthropicAPIKey string
	LocalLLMURL     string // OpenAI-compatible self-hosted endpoint, optional
	MockEnabled     bool
	ProviderTimeout time.Duration // per-adapter call bound, default: 60s

	// Routing: ordered "provider:model" candidate lists per task type
	RoutePRD      []RouteEntry
	RouteStory    []RouteEntry
	RouteAnalysis []RouteEntry
	RouteChat     []RouteEntry

	// Budgets
	TenantBudgetDayUSD   float64
	TenantBudgetMonthUSD float64
	UserDailyQuota       int64 // requests per user per day

	// Rate limiting (requests per tenant per window)
	RatePerMinute int64
	RatePerHour   int64
	RatePerDay    int64

	// Response cache
	CacheEnabled     bool
	CacheTTLPRD      time.Duration
	CacheTTLStory    time.Duration
	CacheTTLAnalysis time.Duration
	CacheTTLChat     time.Duration // default 0: chat is uncached

	// Observability
	OTELExporterType     string // "stdout" or "otlp"
	OTELExporterEndpoint string // default: "localhost:4317"
	LogLevel             string // zerolog level, default: "info"
	LogPretty            bool
}

// RouteEntry is one candidate in a task type's ordered fallback list.
type RouteEntry struct {
	Provider string
	Model    string
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey:      os.Getenv("ANTHROPIC_API_KEY"),
		LocalLLMURL:          os.Getenv("LOCAL_LLM_URL"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "stdout"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.MockEnabled, err = getBool("MOCK_PROVIDER_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.LogPretty, err = getBool("LOG_PRETTY", false); err != nil {
		return nil, err
	}
	if cfg.CacheEnabled, err = getBool("CACHE_ENABLED", true); err != nil {
		return nil, err
	}

	if cfg.ProviderTimeout, err = getDuration("PROVIDER_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.CacheTTLPRD, err = getDuration("CACHE_TTL_PRD", 6*time.Hour); err != nil {
		return nil, err
	}
	if cfg.CacheTTLStory, err = getDuration("CACHE_TTL_STORY", 2*time.Hour); err != nil {
		return nil, err
	}
	if cfg.CacheTTLAnalysis, err = getDuration("CACHE_TTL_ANALYSIS", time.Hour); err != nil {
		return nil, err
	}
	if cfg.CacheTTLChat, err = getDuration("CACHE_TTL_CHAT", 0); err != nil {
		return nil, err
	}

	if cfg.TenantBudgetDayUSD, err = getFloat("TENANT_BUDGET_DAY_USD", 50); err != nil {
		return nil, err
	}
	if cfg.TenantBudgetMonthUSD, err = getFloat("TENANT_BUDGET_MONTH_USD", 500); err != nil {
		return nil, err
	}
	if cfg.UserDailyQuota, err = getInt("USER_DAILY_REQUEST_QUOTA", 500); err != nil {
		return nil, err
	}
	if cfg.RatePerMinute, err = getInt("RATE_LIMIT_PER_MINUTE", 60); err != nil {
		return nil, err
	}
	if cfg.RatePerHour, err = getInt("RATE_LIMIT_PER_HOUR", 1000); err != nil {
		return nil, err
	}
	if cfg.RatePerDay, err = getInt("RATE_LIMIT_PER_DAY", 10000); err != nil {
		return nil, err
	}

	if cfg.RoutePRD, err = getRoute("ROUTE_PRD", "openai:gpt-4o,anthropic:claude-sonnet-4-5,mock:mock-sm"); err != nil {
		return nil, err
	}
	if cfg.RouteStory, err = getRoute("ROUTE_STORY", "openai:gpt-4o-mini,anthropic:claude-haiku-4-5,mock:mock-sm"); err != nil {
		return nil, err
	}
	if cfg.RouteAnalysis, err = getRoute("ROUTE_ANALYSIS", "anthropic:claude-sonnet-4-5,openai:gpt-4o,mock:mock-sm"); err != nil {
		return nil, err
	}
	if cfg.RouteChat, err = getRoute("ROUTE_CHAT", "openai:gpt-4o-mini,mock:mock-sm"); err != nil {
		return nil, err
	}

	// Validation
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getInt(key string, fallback int64) (int64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// getRoute parses an ordered "provider:model,provider:model" candidate list.
func getRoute(key, fallback string) ([]RouteEntry, error) {
	raw := getEnv(key, fallback)
	var entries []RouteEntry
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		prov, model, ok := strings.Cut(part, ":")
		if !ok || prov == "" || model == "" {
			return nil, fmt.Errorf("invalid %s entry %q (want provider:model)", key, part)
		}
		entries = append(entries, RouteEntry{Provider: prov, Model: model})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s must list at least one provider:model entry", key)
	}
	return entries, nil
}
