package seeder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/rs/zerolog"

	"github.com/praxishq/llm-gateway/internal/auth"
)

const (
	TestAPIKey   = "test-api-key-12345"
	TestTenantID = "00000000-0000-0000-0000-000000000001"
)

// SeedTestAPIKey creates a known API key for local development.
func SeedTestAPIKey(ctx context.Context, store auth.Store, log zerolog.Logger) {
	h := sha256.New()
	h.Write([]byte(TestAPIKey))
	keyHash := hex.EncodeToString(h.Sum(nil))

	apiKey := &auth.APIKey{
		TenantID: TestTenantID,
		KeyHash:  keyHash,
		Active:   true,
	}

	if err := store.Create(ctx, apiKey); err != nil {
		log.Info().Err(err).Msg("seeder: api key may already exist, skipping")
		return
	}
	log.Info().
		Str("key", TestAPIKey).
		Str("tenant_id", TestTenantID).
		Msg("seeder: test api key created")
}
