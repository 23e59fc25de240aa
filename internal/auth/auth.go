// Package auth resolves the calling tenant from an API key and attaches
// tenant, user, and request identity to the context. Key lookups are a redis
// read-through over the persistent store; raw keys are hashed before any
// lookup or cache write and never logged.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var ErrKeyNotFound = errors.New("api key not found")

const keyCacheTTL = 5 * time.Minute

type APIKey struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	KeyHash   string    `json:"key_hash"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// MarshalBinary implements encoding.BinaryMarshaler for Redis
func (a *APIKey) MarshalBinary() ([]byte, error) {
	return json.Marshal(a)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for Redis
func (a *APIKey) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, a)
}

type Store interface {
	GetByKey(ctx context.Context, key string) (*APIKey, error)
	Create(ctx context.Context, apiKey *APIKey) error
	Revoke(ctx context.Context, keyID string) error
}

type Middleware func(next http.Handler) http.Handler

type contextKey string

const (
	tenantIDKey  contextKey = "tenant_id"
	userIDKey    contextKey = "user_id"
	apiKeyIDKey  contextKey = "api_key_id"
	requestIDKey contextKey = "request_id"
)

// NewMiddleware authenticates the calling tenant by Bearer API key. The acting
// user arrives via the X-User-ID header; the surrounding product owns user
// auth, the gateway only needs the id for quota accounting.
func NewMiddleware(store Store, rdb *redis.Client, log zerolog.Logger) Middleware {
	log = log.With().Str("component", "auth").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			requestID := uuid.New().String()
			ctx = context.WithValue(ctx, requestIDKey, requestID)
			w.Header().Set("X-Request-ID", requestID)

			if userID := r.Header.Get("X-User-ID"); userID != "" {
				ctx = context.WithValue(ctx, userIDKey, userID)
			}

			key, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "missing or invalid Authorization header")
				return
			}

			apiKey, err := lookupKey(ctx, store, rdb, key, log)
			if err != nil {
				if errors.Is(err, ErrKeyNotFound) {
					unauthorized(w, "invalid API key")
					return
				}
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			ctx = context.WithValue(ctx, tenantIDKey, apiKey.TenantID)
			ctx = context.WithValue(ctx, apiKeyIDKey, apiKey.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// lookupKey tries the redis cache first, then the store, caching the result.
// A broken cache degrades to store lookups.
func lookupKey(ctx context.Context, store Store, rdb *redis.Client, key string, log zerolog.Logger) (*APIKey, error) {
	cacheKey := "auth:" + hashKey(key)

	var cached APIKey
	err := rdb.Get(ctx, cacheKey).Scan(&cached)
	if err == nil {
		return &cached, nil
	}
	if err != redis.Nil {
		log.Warn().Err(err).Msg("redis key lookup failed, falling back to store")
	}

	apiKey, err := store.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := rdb.Set(ctx, cacheKey, apiKey, keyCacheTTL).Err(); err != nil {
		log.Warn().Err(err).Msg("failed to cache api key")
	}
	return apiKey, nil
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func GetTenantID(ctx context.Context) string {
	if id, ok := ctx.Value(tenantIDKey).(string); ok {
		return id
	}
	return ""
}

func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

func GetAPIKeyID(ctx context.Context) string {
	if id, ok := ctx.Value(apiKeyIDKey).(string); ok {
		return id
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Context builders, used by handlers under test.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func WithAPIKeyID(ctx context.Context, apiKeyID string) context.Context {
	return context.WithValue(ctx, apiKeyIDKey, apiKeyID)
}
