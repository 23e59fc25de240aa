// Package usage is the append-only audit log. Every terminal outcome of a
// generation attempt produces exactly one record: success, provider error,
// budget denial, or rate denial. Records are write-once and back billing
// reconciliation, so they are never mutated after creation.
package usage

import (
	"context"
	"time"
)

type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeError        Outcome = "error"
	OutcomeBudgetDenied Outcome = "budget_denied"
	OutcomeRateDenied   Outcome = "rate_denied"
)

type Record struct {
	ID           string
	RequestID    string
	TenantID     string
	UserID       string
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	CacheHit     bool
	// TokensEstimated marks counts derived from the tokenizer approximation
	// rather than reported by the backend.
	TokensEstimated bool
	LatencyMs       int64
	Outcome         Outcome
	CreatedAt       time.Time
}

type Store interface {
	Append(ctx context.Context, rec *Record) error
	ListByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*Record, error)
	TotalCostByTenant(ctx context.Context, tenantID string, from, to time.Time) (float64, error)
}
