// Package budget enforces per-tenant spend ceilings and per-user request
// quotas. Debits are atomic compare-and-increment operations against a
// (tenant, period) ledger row; concurrent requests cannot both pass a check
// that only one of them should have passed.
package budget

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDenied means the tenant's period ledger cannot absorb the debit.
	ErrDenied = errors.New("budget exceeded")
	// ErrUserQuotaExceeded means the user's daily request quota is spent.
	ErrUserQuotaExceeded = errors.New("user quota exceeded")
)

type Period string

const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// PeriodKey returns the UTC ledger key for an instant: one row per tenant per
// period, with rollover happening lazily on first touch of a new key.
func PeriodKey(t time.Time, p Period) string {
	t = t.UTC()
	if p == PeriodMonth {
		return t.Format("2006-01")
	}
	return t.Format("2006-01-02")
}

// Ledger is a snapshot of one (tenant, period) row. spent_usd only grows
// within a period; a fresh row starts each period.
type Ledger struct {
	TenantID     string
	PeriodKey    string
	SpentUSD     float64
	RequestCount int64
	BudgetUSD    float64
	Exceeded     bool
}

type Store interface {
	// TryDebit atomically adds amount to the tenant's period ledger if the
	// result stays within ceiling and the exceeded flag is not set. The row is
	// created on first touch. Returns false with nil error on denial.
	TryDebit(ctx context.Context, tenantID, periodKey string, amount, ceiling float64) (bool, error)

	// Release rolls back a pre-authorized debit whose provider call never
	// completed.
	Release(ctx context.Context, tenantID, periodKey string, amount float64) error

	// Reconcile replaces an estimated debit with the actual cost. The delta is
	// applied unconditionally (the call already happened); if it pushes the
	// ledger past its ceiling the exceeded flag is raised, which fails all
	// future pre-checks for the period.
	Reconcile(ctx context.Context, tenantID, periodKey string, estimated, actual float64) error

	// TryIncrUserQuota counts one request against the user's daily quota,
	// atomically. Returns false with nil error when the quota is spent.
	TryIncrUserQuota(ctx context.Context, tenantID, userID, dayKey string, limit int64) (bool, error)

	// GetLedger returns the current row, or nil if the period is untouched.
	GetLedger(ctx context.Context, tenantID, periodKey string) (*Ledger, error)
}

// Reservation is a committed pre-authorization covering both the daily and
// monthly ledgers. It is either reconciled with the actual cost or released;
// never both, never neither.
type Reservation struct {
	TenantID  string
	DayKey    string
	MonthKey  string
	Estimated float64
}

// Tracker applies the two-period ceiling policy on top of a Store.
type Tracker struct {
	store        Store
	dayCeiling   float64
	monthCeiling float64
	userQuota    int64
}

func NewTracker(store Store, dayCeiling, monthCeiling float64, userQuota int64) *Tracker {
	return &Tracker{
		store:        store,
		dayCeiling:   dayCeiling,
		monthCeiling: monthCeiling,
		userQuota:    userQuota,
	}
}

// CheckUserQuota counts the request against the user's daily quota. Called
// once per request, before any candidate is attempted.
func (t *Tracker) CheckUserQuota(ctx context.Context, tenantID, userID string, now time.Time) error {
	if t.userQuota <= 0 {
		return nil
	}
	ok, err := t.store.TryIncrUserQuota(ctx, tenantID, userID, PeriodKey(now, PeriodDay), t.userQuota)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserQuotaExceeded
	}
	return nil
}

// Authorize pre-debits the estimated cost from both period ledgers. If the
// month denies after the day committed, the day debit is rolled back so a
// denial leaves no trace.
func (t *Tracker) Authorize(ctx context.Context, tenantID string, estimated float64, now time.Time) (*Reservation, error) {
	res := &Reservation{
		TenantID:  tenantID,
		DayKey:    PeriodKey(now, PeriodDay),
		MonthKey:  PeriodKey(now, PeriodMonth),
		Estimated: estimated,
	}

	ok, err := t.store.TryDebit(ctx, tenantID, res.DayKey, estimated, t.dayCeiling)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDenied
	}

	ok, err = t.store.TryDebit(ctx, tenantID, res.MonthKey, estimated, t.monthCeiling)
	if err == nil && !ok {
		err = ErrDenied
	}
	if err != nil {
		if relErr := t.store.Release(ctx, tenantID, res.DayKey, estimated); relErr != nil {
			return nil, errors.Join(err, relErr)
		}
		return nil, err
	}

	return res, nil
}

// Release rolls back a reservation whose provider call failed or was
// cancelled before completing.
func (t *Tracker) Release(ctx context.Context, res *Reservation) error {
	dayErr := t.store.Release(ctx, res.TenantID, res.DayKey, res.Estimated)
	monthErr := t.store.Release(ctx, res.TenantID, res.MonthKey, res.Estimated)
	return errors.Join(dayErr, monthErr)
}

// Reconcile settles a reservation against the actual cost once known.
func (t *Tracker) Reconcile(ctx context.Context, res *Reservation, actual float64) error {
	dayErr := t.store.Reconcile(ctx, res.TenantID, res.DayKey, res.Estimated, actual)
	monthErr := t.store.Reconcile(ctx, res.TenantID, res.MonthKey, res.Estimated, actual)
	return errors.Join(dayErr, monthErr)
}
