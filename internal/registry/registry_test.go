package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxishq/llm-gateway/config"
	"github.com/praxishq/llm-gateway/internal/provider"
)

type stubProvider struct {
	name string
	err  error
}

func (s *stubProvider) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &provider.Response{Content: "ok", Provider: s.name, UsageReported: true}, nil
}

func (s *stubProvider) Name() string { return s.name }

func testRoutes() map[provider.TaskType][]config.RouteEntry {
	return map[provider.TaskType][]config.RouteEntry{
		provider.TaskPRD: {
			{Provider: "openai", Model: "gpt-4o"},
			{Provider: "anthropic", Model: "claude-sonnet-4-5"},
			{Provider: "mock", Model: "mock-sm"},
		},
		provider.TaskChat: {
			{Provider: "openai", Model: "gpt-4o-mini"},
		},
	}
}

func newTestRegistry(providers ...provider.Provider) *Registry {
	r := New(testRoutes(), zerolog.Nop())
	for _, p := range providers {
		r.Register(p, Profile{MaxTokens: 8192, LatencyHintMs: 100})
	}
	return r
}

func TestResolve_KeepsConfiguredOrder(t *testing.T) {
	r := newTestRegistry(
		&stubProvider{name: "openai"},
		&stubProvider{name: "anthropic"},
		&stubProvider{name: "mock"},
	)

	candidates := r.Resolve(provider.TaskPRD, "")
	require.Len(t, candidates, 3)
	assert.Equal(t, "openai", candidates[0].ProviderID)
	assert.Equal(t, "anthropic", candidates[1].ProviderID)
	assert.Equal(t, "mock", candidates[2].ProviderID)
}

func TestResolve_SkipsUnregisteredProviders(t *testing.T) {
	r := newTestRegistry(&stubProvider{name: "anthropic"})

	candidates := r.Resolve(provider.TaskPRD, "")
	require.Len(t, candidates, 1)
	assert.Equal(t, "anthropic", candidates[0].ProviderID)
}

func TestResolve_TaskFiltering(t *testing.T) {
	r := newTestRegistry(&stubProvider{name: "openai"}, &stubProvider{name: "anthropic"})

	candidates := r.Resolve(provider.TaskChat, "")
	require.Len(t, candidates, 1)
	assert.Equal(t, "openai", candidates[0].ProviderID)
	assert.Equal(t, "gpt-4o-mini", candidates[0].Model)
}

func TestResolve_HealthyOverridePromoted(t *testing.T) {
	r := newTestRegistry(
		&stubProvider{name: "openai"},
		&stubProvider{name: "anthropic"},
	)

	candidates := r.Resolve(provider.TaskPRD, "anthropic")
	require.NotEmpty(t, candidates)
	assert.Equal(t, "anthropic", candidates[0].ProviderID)
}

func TestResolve_UnhealthyOverrideIgnored(t *testing.T) {
	bad := &stubProvider{name: "anthropic", err: errors.New("fail")}
	r := newTestRegistry(&stubProvider{name: "openai"}, bad)

	ctx := context.Background()
	for i := 0; i < degradeThreshold; i++ {
		_, _ = r.Execute(ctx, Candidate{ProviderID: "anthropic"}, &provider.Request{})
	}
	require.Equal(t, StateDegraded, r.State("anthropic"))

	// a degraded provider is still routable, but loses override priority
	candidates := r.Resolve(provider.TaskPRD, "anthropic")
	require.NotEmpty(t, candidates)
	assert.Equal(t, "openai", candidates[0].ProviderID)
}

func TestHealthTransitions(t *testing.T) {
	bad := &stubProvider{name: "openai", err: errors.New("fail")}
	r := newTestRegistry(bad)
	ctx := context.Background()

	assert.Equal(t, StateHealthy, r.State("openai"))

	for i := 0; i < degradeThreshold; i++ {
		_, _ = r.Execute(ctx, Candidate{ProviderID: "openai"}, &provider.Request{})
	}
	assert.Equal(t, StateDegraded, r.State("openai"))

	for i := degradeThreshold; i < disableThreshold; i++ {
		_, _ = r.Execute(ctx, Candidate{ProviderID: "openai"}, &provider.Request{})
	}
	assert.Equal(t, StateDisabled, r.State("openai"))

	// disabled providers drop out of candidate lists
	for _, c := range r.Resolve(provider.TaskPRD, "") {
		assert.NotEqual(t, "openai", c.ProviderID)
	}
}

func TestExecute_SuccessResetsFailureCount(t *testing.T) {
	p := &stubProvider{name: "openai", err: errors.New("fail")}
	r := newTestRegistry(p)
	ctx := context.Background()

	_, _ = r.Execute(ctx, Candidate{ProviderID: "openai"}, &provider.Request{})
	_, _ = r.Execute(ctx, Candidate{ProviderID: "openai"}, &provider.Request{})

	p.err = nil
	resp, err := r.Execute(ctx, Candidate{ProviderID: "openai"}, &provider.Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, StateHealthy, r.State("openai"))
}

func TestState_UnknownProviderIsDisabled(t *testing.T) {
	r := newTestRegistry()
	assert.Equal(t, StateDisabled, r.State("nope"))
}

func TestPrimaryModel(t *testing.T) {
	r := newTestRegistry(&stubProvider{name: "openai"}, &stubProvider{name: "anthropic"})

	assert.Equal(t, "gpt-4o", r.PrimaryModel(provider.TaskPRD, ""))
	assert.Equal(t, "claude-sonnet-4-5", r.PrimaryModel(provider.TaskPRD, "anthropic"))
	assert.Equal(t, "gpt-4o", r.PrimaryModel(provider.TaskPRD, "unknown"))
}
