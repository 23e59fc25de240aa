// Package local adapts an OpenAI-compatible self-hosted endpoint (Ollama,
// vLLM, llama.cpp server). These servers frequently omit the usage block, so
// responses are flagged for downstream token estimation when counts are absent.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/praxishq/llm-gateway/internal/provider"
)

type LocalProvider struct {
	baseURL string
	client  *http.Client
}

type localRequest struct {
	Model       string         `json:"model"`
	Messages    []localMessage `json:"messages"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Temperature float64        `json:"temperature,omitempty"`
	Stream      bool           `json:"stream"`
}

type localMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type localResponse struct {
	ID      string        `json:"id"`
	Model   string        `json:"model"`
	Choices []localChoice `json:"choices"`
	Usage   *localUsage   `json:"usage,omitempty"`
	// Ollama-native counters, returned by some server versions
	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

type localChoice struct {
	Message localMessage `json:"message"`
}

type localUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

func New(baseURL string) provider.Provider {
	return &LocalProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
	}
}

func (p *LocalProvider) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	localReq := localRequest{
		Model:       req.Model,
		Messages:    []localMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      false,
	}
	body, err := json.Marshal(localReq)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/chat/completions", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("local llm api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var localResp localResponse
	if err := json.NewDecoder(resp.Body).Decode(&localResp); err != nil {
		return nil, err
	}

	if len(localResp.Choices) == 0 {
		return nil, fmt.Errorf("local llm api returned no choices")
	}

	out := &provider.Response{
		ID:        localResp.ID,
		Content:   localResp.Choices[0].Message.Content,
		Model:     localResp.Model,
		Provider:  p.Name(),
		LatencyMs: time.Since(start).Milliseconds(),
	}

	switch {
	case localResp.Usage != nil && (localResp.Usage.PromptTokens > 0 || localResp.Usage.CompletionTokens > 0):
		out.InputTokens = localResp.Usage.PromptTokens
		out.OutputTokens = localResp.Usage.CompletionTokens
		out.UsageReported = true
	case localResp.PromptEvalCount > 0 || localResp.EvalCount > 0:
		out.InputTokens = localResp.PromptEvalCount
		out.OutputTokens = localResp.EvalCount
		out.UsageReported = true
	}

	return out, nil
}

func (p *LocalProvider) Name() string {
	return "local"
}
