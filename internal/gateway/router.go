// Package gateway is the control plane around a single generate-text call:
// provider selection with ordered fallback, content-addressed caching, budget
// and rate admission, response normalization, and usage audit.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/praxishq/llm-gateway/internal/budget"
	"github.com/praxishq/llm-gateway/internal/cache"
	"github.com/praxishq/llm-gateway/internal/provider"
	"github.com/praxishq/llm-gateway/internal/registry"
	"github.com/praxishq/llm-gateway/internal/usage"
	"github.com/praxishq/llm-gateway/pkg/ratelimit"
)

// assumed output size for cost pre-authorization when the caller sets no cap
const defaultEstimatedOutputTokens = 1000

// GenerationRequest is the inbound call shape consumed from the CRUD layer.
// Immutable once created.
type GenerationRequest struct {
	TaskType    string  `json:"task_type"`
	Prompt      string  `json:"prompt"`
	TenantID    string  `json:"-"`
	UserID      string  `json:"-"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Provider    string  `json:"provider,omitempty"` // optional override
	RequestID   string  `json:"-"`
}

type GenerationResult struct {
	Content      string  `json:"content"`
	Provider     string  `json:"provider_used"`
	Model        string  `json:"model_used"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	CacheHit     bool    `json:"cache_hit"`
	LatencyMs    int64   `json:"latency_ms"`
	RequestID    string  `json:"request_id"`
}

type recorder interface {
	Record(rec *usage.Record)
}

type Router struct {
	registry   *registry.Registry
	cache      cache.Cache
	budget     *budget.Tracker
	limiter    ratelimit.Limiter
	usage      recorder
	normalizer *Normalizer
	timeout    time.Duration
	cacheTTL   map[provider.TaskType]time.Duration
	tracer     trace.Tracer
	log        zerolog.Logger
	now        func() time.Time
}

func NewRouter(
	reg *registry.Registry,
	c cache.Cache,
	bt *budget.Tracker,
	limiter ratelimit.Limiter,
	rec recorder,
	timeout time.Duration,
	cacheTTL map[provider.TaskType]time.Duration,
	tracer trace.Tracer,
	log zerolog.Logger,
) *Router {
	return &Router{
		registry:   reg,
		cache:      c,
		budget:     bt,
		limiter:    limiter,
		usage:      rec,
		normalizer: NewNormalizer(),
		timeout:    timeout,
		cacheTTL:   cacheTTL,
		tracer:     tracer,
		log:        log.With().Str("component", "gateway").Logger(),
		now:        time.Now,
	}
}

func (r *Router) validate(req *GenerationRequest) (provider.TaskType, error) {
	task, err := provider.ParseTaskType(req.TaskType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.Prompt == "" {
		return "", fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	if req.TenantID == "" {
		return "", fmt.Errorf("%w: tenant id is required", ErrInvalidRequest)
	}
	if req.UserID == "" {
		return "", fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	if req.MaxTokens < 0 {
		return "", fmt.Errorf("%w: max_tokens must not be negative", ErrInvalidRequest)
	}
	if req.Temperature < 0 || req.Temperature > 2 {
		return "", fmt.Errorf("%w: temperature must be in [0, 2]", ErrInvalidRequest)
	}
	return task, nil
}

// Generate routes one request through the full control plane. An invalid
// request fails fast with no side effects; every other terminal outcome,
// including pure denials, leaves an audit record.
func (r *Router) Generate(ctx context.Context, req *GenerationRequest) (*GenerationResult, error) {
	task, err := r.validate(req)
	if err != nil {
		return nil, err
	}
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	ctx, span := r.tracer.Start(ctx, "gateway.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", req.TenantID),
		attribute.String("request_id", req.RequestID),
		attribute.String("task_type", string(task)),
	)

	start := r.now()

	// Cache hits are free: they bypass rate and budget checks to encourage reuse.
	ttl := r.cacheTTL[task]
	cacheKey := ""
	if r.cache != nil && ttl > 0 {
		cacheKey = cache.Key(task, req.Prompt, r.registry.PrimaryModel(task, req.Provider), req.Temperature, req.MaxTokens)
		entry, err := r.cache.Get(ctx, cacheKey)
		if err != nil {
			// a broken cache degrades to a miss
			r.log.Warn().Err(err).Str("request_id", req.RequestID).Msg("cache lookup failed")
		}
		if entry != nil {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			result := &GenerationResult{
				Content:      entry.Content,
				Provider:     entry.Provider,
				Model:        entry.Model,
				InputTokens:  entry.InputTokens,
				OutputTokens: entry.OutputTokens,
				CacheHit:     true,
				LatencyMs:    time.Since(start).Milliseconds(),
				RequestID:    req.RequestID,
			}
			r.usage.Record(&usage.Record{
				RequestID:    req.RequestID,
				TenantID:     req.TenantID,
				UserID:       req.UserID,
				Provider:     entry.Provider,
				Model:        entry.Model,
				InputTokens:  entry.InputTokens,
				OutputTokens: entry.OutputTokens,
				CacheHit:     true,
				LatencyMs:    result.LatencyMs,
				Outcome:      usage.OutcomeSuccess,
			})
			return result, nil
		}
	}

	dec, err := r.limiter.Allow(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	if !dec.Allowed {
		r.usage.Record(r.denialRecord(req, usage.OutcomeRateDenied))
		return nil, &RateLimitError{Scope: string(dec.Scope), RetryAfter: dec.RetryAfter}
	}

	if err := r.budget.CheckUserQuota(ctx, req.TenantID, req.UserID, r.now()); err != nil {
		if errors.Is(err, budget.ErrUserQuotaExceeded) {
			r.usage.Record(r.denialRecord(req, usage.OutcomeBudgetDenied))
			return nil, &BudgetError{Scope: "user"}
		}
		return nil, fmt.Errorf("user quota: %w", err)
	}

	candidates := r.registry.Resolve(task, req.Provider)
	if len(candidates) == 0 {
		r.usage.Record(r.denialRecord(req, usage.OutcomeError))
		return nil, ErrAllProvidersFailed
	}

	estIn := r.normalizer.CountTokens(req.Prompt)
	estOut := req.MaxTokens
	if estOut <= 0 {
		estOut = defaultEstimatedOutputTokens
	}

	var attempted, budgetDenied int
	for _, c := range candidates {
		result, err := r.tryCandidate(ctx, req, task, c, estIn, estOut, cacheKey, ttl, start)
		switch {
		case err == nil:
			span.SetAttributes(attribute.String("provider", result.Provider))
			return result, nil
		case errors.Is(err, budget.ErrDenied):
			// a cheaper candidate further down may still fit
			budgetDenied++
		default:
			attempted++
		}
	}

	if attempted == 0 && budgetDenied > 0 {
		r.usage.Record(r.denialRecord(req, usage.OutcomeBudgetDenied))
		return nil, &BudgetError{Scope: "tenant"}
	}

	// one final failure record on top of the per-attempt records
	r.usage.Record(r.denialRecord(req, usage.OutcomeError))
	return nil, ErrAllProvidersFailed
}

// tryCandidate runs the pre-authorize / invoke / reconcile protocol for one
// candidate. The pre-debit is fully committed before the adapter call starts
// and fully released if the call fails or is cancelled.
func (r *Router) tryCandidate(
	ctx context.Context,
	req *GenerationRequest,
	task provider.TaskType,
	c registry.Candidate,
	estIn, estOut int,
	cacheKey string,
	ttl time.Duration,
	start time.Time,
) (*GenerationResult, error) {
	estCost := c.Pricing.Cost(estIn, estOut)
	resv, err := r.budget.Authorize(ctx, req.TenantID, estCost, r.now())
	if err != nil {
		return nil, err
	}

	provReq := &provider.Request{
		TaskType:    task,
		Prompt:      req.Prompt,
		Model:       c.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TenantID:    req.TenantID,
		UserID:      req.UserID,
		RequestID:   req.RequestID,
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	resp, callErr := r.registry.Execute(callCtx, c, provReq)
	cancel()

	if callErr != nil {
		// the roll-back must land even when the caller's context is gone
		if relErr := r.budget.Release(context.WithoutCancel(ctx), resv); relErr != nil {
			r.log.Error().Err(relErr).Str("request_id", req.RequestID).Msg("failed to release budget pre-debit")
		}

		wrapped := fmt.Errorf("%w: %s: %v", ErrProvider, c.ProviderID, callErr)
		if errors.Is(callErr, context.DeadlineExceeded) {
			wrapped = fmt.Errorf("%w: %s", ErrProviderTimeout, c.ProviderID)
		}
		r.log.Warn().
			Err(callErr).
			Str("request_id", req.RequestID).
			Str("provider", c.ProviderID).
			Str("model", c.Model).
			Msg("provider attempt failed")

		r.usage.Record(&usage.Record{
			RequestID: req.RequestID,
			TenantID:  req.TenantID,
			UserID:    req.UserID,
			Provider:  c.ProviderID,
			Model:     c.Model,
			LatencyMs: time.Since(start).Milliseconds(),
			Outcome:   usage.OutcomeError,
		})
		return nil, wrapped
	}

	norm, estimated := r.normalizer.Normalize(provReq, resp)
	actualCost := c.Pricing.Cost(norm.InputTokens, norm.OutputTokens)
	if err := r.budget.Reconcile(context.WithoutCancel(ctx), resv, actualCost); err != nil {
		r.log.Error().Err(err).Str("request_id", req.RequestID).Msg("failed to reconcile budget")
	}

	result := &GenerationResult{
		Content:      norm.Content,
		Provider:     c.ProviderID,
		Model:        norm.Model,
		InputTokens:  norm.InputTokens,
		OutputTokens: norm.OutputTokens,
		CostUSD:      actualCost,
		LatencyMs:    time.Since(start).Milliseconds(),
		RequestID:    req.RequestID,
	}
	if result.Model == "" {
		result.Model = c.Model
	}

	r.usage.Record(&usage.Record{
		RequestID:       req.RequestID,
		TenantID:        req.TenantID,
		UserID:          req.UserID,
		Provider:        c.ProviderID,
		Model:           result.Model,
		InputTokens:     norm.InputTokens,
		OutputTokens:    norm.OutputTokens,
		CostUSD:         actualCost,
		TokensEstimated: estimated,
		LatencyMs:       result.LatencyMs,
		Outcome:         usage.OutcomeSuccess,
	})

	if cacheKey != "" {
		putErr := r.cache.Put(context.WithoutCancel(ctx), cacheKey, &cache.Entry{
			Content:      norm.Content,
			InputTokens:  norm.InputTokens,
			OutputTokens: norm.OutputTokens,
			Provider:     c.ProviderID,
			Model:        result.Model,
			CreatedAt:    r.now(),
		}, ttl)
		if putErr != nil {
			r.log.Warn().Err(putErr).Str("request_id", req.RequestID).Msg("cache store failed")
		}
	}

	return result, nil
}

func (r *Router) denialRecord(req *GenerationRequest, outcome usage.Outcome) *usage.Record {
	return &usage.Record{
		RequestID: req.RequestID,
		TenantID:  req.TenantID,
		UserID:    req.UserID,
		Outcome:   outcome,
	}
}
