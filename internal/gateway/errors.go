package gateway

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the gateway's terminal outcomes. Callers branch with
// errors.Is; typed errors below carry denial details.
var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrBudgetExceeded     = errors.New("budget exceeded")
	ErrProviderTimeout    = errors.New("provider timeout")
	ErrProvider           = errors.New("provider error")
	ErrAllProvidersFailed = errors.New("all providers failed")
)

// RateLimitError is a rate denial with retry guidance. Rate denials are final:
// they are never retried internally.
type RateLimitError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (%s window), retry after %s", e.Scope, e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// BudgetError is a budget denial. Scope is "tenant" for period-ledger
// denials and "user" for per-user quota denials.
type BudgetError struct {
	Scope string
}

func (e *BudgetError) Error() string {
	if e.Scope == "user" {
		return "user request quota exceeded; contact your workspace admin"
	}
	return "tenant budget exceeded; raise the budget ceiling or wait for the period to roll over"
}

func (e *BudgetError) Is(target error) bool {
	return target == ErrBudgetExceeded
}
