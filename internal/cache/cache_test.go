package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxishq/llm-gateway/internal/provider"
)

func TestKey_Deterministic(t *testing.T) {
	k1 := Key(provider.TaskPRD, "write a PRD", "gpt-4o", 0.7, 500)
	k2 := Key(provider.TaskPRD, "write a PRD", "gpt-4o", 0.7, 500)
	assert.Equal(t, k1, k2)
}

func TestKey_NormalizesWhitespace(t *testing.T) {
	k1 := Key(provider.TaskPRD, "write  a\n PRD ", "gpt-4o", 0.7, 500)
	k2 := Key(provider.TaskPRD, "write a PRD", "gpt-4o", 0.7, 500)
	assert.Equal(t, k1, k2)
}

func TestKey_SensitiveToEveryInput(t *testing.T) {
	base := Key(provider.TaskPRD, "write a PRD", "gpt-4o", 0.7, 500)

	assert.NotEqual(t, base, Key(provider.TaskStory, "write a PRD", "gpt-4o", 0.7, 500))
	assert.NotEqual(t, base, Key(provider.TaskPRD, "write a story", "gpt-4o", 0.7, 500))
	// model is part of the fingerprint so a model upgrade bypasses stale entries
	assert.NotEqual(t, base, Key(provider.TaskPRD, "write a PRD", "gpt-4o-mini", 0.7, 500))
	assert.NotEqual(t, base, Key(provider.TaskPRD, "write a PRD", "gpt-4o", 0.2, 500))
	assert.NotEqual(t, base, Key(provider.TaskPRD, "write a PRD", "gpt-4o", 0.7, 600))
}

func TestMemory_FirstWriteWins(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	first := &Entry{Content: "first", Provider: "openai", CreatedAt: time.Now()}
	second := &Entry{Content: "second", Provider: "anthropic", CreatedAt: time.Now()}

	require.NoError(t, c.Put(ctx, "k", first, time.Hour))
	require.NoError(t, c.Put(ctx, "k", second, time.Hour))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "first", got.Content)
}

func TestMemory_TTLExpiry(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k", &Entry{Content: "v"}, 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemory_ZeroTTLSkipsWrite(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k", &Entry{Content: "v"}, 0))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemory_Invalidate(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k", &Entry{Content: "v"}, time.Hour))
	require.NoError(t, c.Invalidate(ctx, "k"))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEntry_BinaryRoundTrip(t *testing.T) {
	e := &Entry{Content: "text", InputTokens: 10, OutputTokens: 20, Provider: "openai", Model: "gpt-4o", CreatedAt: time.Now().UTC()}
	data, err := e.MarshalBinary()
	require.NoError(t, err)

	var out Entry
	require.NoError(t, out.UnmarshalBinary(data))
	assert.Equal(t, e.Content, out.Content)
	assert.Equal(t, e.Provider, out.Provider)
}
