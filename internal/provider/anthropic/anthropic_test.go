package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/praxishq/llm-gateway/internal/provider"
)

func TestGenerate_Mock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("Expected x-api-key header, got %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got == "" {
			t.Error("Expected anthropic-version header")
		}

		var req anthropicRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.MaxTokens <= 0 {
			t.Errorf("Expected positive max_tokens, got %d", req.MaxTokens)
		}

		resp := anthropicResponse{
			ID: "msg-1",
			Content: []anthropicContent{
				{Type: "text", Text: "Hello from "},
				{Type: "text", Text: "Claude mock!"},
			},
			Model: "claude-sonnet-4-5",
			Usage: anthropicUsage{InputTokens: 10, OutputTokens: 20},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := &AnthropicProvider{
		apiKey:  "test-key",
		baseURL: server.URL,
		client:  http.DefaultClient,
	}

	resp, err := p.Generate(context.Background(), &provider.Request{
		Model:  "claude-sonnet-4-5",
		Prompt: "hi",
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if resp.Content != "Hello from Claude mock!" {
		t.Errorf("Expected concatenated text blocks, got %s", resp.Content)
	}
	if resp.InputTokens != 10 || resp.OutputTokens != 20 {
		t.Errorf("Expected 10/20 tokens, got %d/%d", resp.InputTokens, resp.OutputTokens)
	}
	if !resp.UsageReported {
		t.Error("Expected usage to be reported")
	}
}

func TestGenerate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": {"message": "overloaded"}}`))
	}))
	defer server.Close()

	p := &AnthropicProvider{
		apiKey:  "test-key",
		baseURL: server.URL,
		client:  http.DefaultClient,
	}

	_, err := p.Generate(context.Background(), &provider.Request{Model: "claude-sonnet-4-5", Prompt: "hi"})
	if err == nil {
		t.Fatal("Expected error from non-200 response")
	}
}

func TestGenerate_NoTextContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(anthropicResponse{ID: "msg-2"})
	}))
	defer server.Close()

	p := &AnthropicProvider{
		apiKey:  "test-key",
		baseURL: server.URL,
		client:  http.DefaultClient,
	}

	_, err := p.Generate(context.Background(), &provider.Request{Model: "claude-sonnet-4-5", Prompt: "hi"})
	if err == nil {
		t.Fatal("Expected error for empty content")
	}
}

func TestName(t *testing.T) {
	p := New("key")
	if p.Name() != "anthropic" {
		t.Errorf("Expected 'anthropic', got %s", p.Name())
	}
}
