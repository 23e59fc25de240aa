// Package mock is the deterministic last-resort backend. It appears in a task
// type's candidate list like any other provider; it is only reached when the
// routing table says so, never as an implicit catch-all.
package mock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/praxishq/llm-gateway/internal/provider"
)

type MockProvider struct{}

func New() provider.Provider {
	return &MockProvider{}
}

// Generate returns a deterministic response: identical inputs always produce
// identical content and token counts, which keeps audit and cache behavior
// reproducible in tests and degraded operation.
func (p *MockProvider) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sum := sha256.Sum256([]byte(string(req.TaskType) + "\x00" + req.Prompt + "\x00" + req.Model))
	fingerprint := hex.EncodeToString(sum[:8])

	content := fmt.Sprintf(
		"[mock:%s] Placeholder %s output. The configured providers were unavailable; regenerate once service is restored.",
		fingerprint, req.TaskType,
	)

	return &provider.Response{
		ID:            "mock-" + fingerprint,
		Content:       content,
		InputTokens:   len(strings.Fields(req.Prompt)) + 1,
		OutputTokens:  len(strings.Fields(content)),
		UsageReported: true,
		Model:         req.Model,
		Provider:      p.Name(),
		LatencyMs:     0,
	}, nil
}

func (p *MockProvider) Name() string {
	return "mock"
}
