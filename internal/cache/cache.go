// Package cache is the content-addressed response cache. Keys fingerprint
// every input that affects output equivalence, so two requests that share a
// fingerprint are interchangeable. Hits are free: they bypass rate and budget
// checks entirely.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/praxishq/llm-gateway/internal/provider"
)

// Entry is an immutable cached generation result. Entries expire by TTL or
// explicit invalidation and are never partially updated.
type Entry struct {
	Content      string    `json:"content"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
}

// MarshalBinary implements encoding.BinaryMarshaler for Redis
func (e *Entry) MarshalBinary() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for Redis
func (e *Entry) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, e)
}

// Cache stores generation results keyed by request fingerprint.
//
// Write policy: first successful write wins. Concurrent identical misses may
// both compute (duplicate work is acceptable, double accounting is prevented
// elsewhere); whichever Put lands first sticks, later Puts for the same key
// within TTL are no-ops.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, entry *Entry, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Key computes the deterministic fingerprint for a request. The model id is
// part of the fingerprint, so a model upgrade naturally bypasses stale entries.
func Key(task provider.TaskType, prompt, model string, temperature float64, maxTokens int) string {
	h := sha256.New()
	h.Write([]byte(string(task)))
	h.Write([]byte{0})
	h.Write([]byte(normalizePrompt(prompt)))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	b := h.Sum(nil)

	// temperature and max_tokens fold in via a second pass to keep the
	// fingerprint stable across float formatting quirks
	h2 := sha256.New()
	h2.Write(b)
	h2.Write([]byte{byte(int(temperature * 100))})
	h2.Write([]byte{byte(maxTokens >> 24), byte(maxTokens >> 16), byte(maxTokens >> 8), byte(maxTokens)})
	return hex.EncodeToString(h2.Sum(nil))
}

func normalizePrompt(prompt string) string {
	return strings.Join(strings.Fields(prompt), " ")
}
