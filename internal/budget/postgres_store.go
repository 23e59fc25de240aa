package budget

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) TryDebit(ctx context.Context, tenantID, periodKey string, amount, ceiling float64) (bool, error) {
	if amount > ceiling {
		return false, nil
	}

	// Upsert-with-guard: the row is created lazily on first touch of a new
	// period, and the debit only lands when it fits under the ceiling and the
	// exceeded flag is clear. Denial surfaces as zero returned rows.
	query := `
		INSERT INTO budget_ledgers (tenant_id, period_key, spent_usd, request_count, budget_usd, exceeded)
		VALUES ($1, $2, $3, 1, $4, false)
		ON CONFLICT (tenant_id, period_key) DO UPDATE
		SET spent_usd = budget_ledgers.spent_usd + $3,
		    request_count = budget_ledgers.request_count + 1
		WHERE budget_ledgers.spent_usd + $3 <= budget_ledgers.budget_usd
		  AND NOT budget_ledgers.exceeded
		RETURNING spent_usd
	`
	var spent float64
	err := s.db.QueryRow(ctx, query, tenantID, periodKey, amount, ceiling).Scan(&spent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to debit ledger: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) Release(ctx context.Context, tenantID, periodKey string, amount float64) error {
	query := `
		UPDATE budget_ledgers
		SET spent_usd = GREATEST(spent_usd - $3, 0),
		    request_count = GREATEST(request_count - 1, 0)
		WHERE tenant_id = $1 AND period_key = $2
	`
	if _, err := s.db.Exec(ctx, query, tenantID, periodKey, amount); err != nil {
		return fmt.Errorf("failed to release debit: %w", err)
	}
	return nil
}

func (s *PostgresStore) Reconcile(ctx context.Context, tenantID, periodKey string, estimated, actual float64) error {
	delta := actual - estimated
	// The delta is applied unconditionally; going over the ceiling raises the
	// exceeded flag so future pre-checks for the period fail.
	query := `
		UPDATE budget_ledgers
		SET spent_usd = GREATEST(spent_usd + $3, 0),
		    exceeded = exceeded OR (spent_usd + $3 > budget_usd)
		WHERE tenant_id = $1 AND period_key = $2
	`
	if _, err := s.db.Exec(ctx, query, tenantID, periodKey, delta); err != nil {
		return fmt.Errorf("failed to reconcile ledger: %w", err)
	}
	return nil
}

func (s *PostgresStore) TryIncrUserQuota(ctx context.Context, tenantID, userID, dayKey string, limit int64) (bool, error) {
	query := `
		INSERT INTO user_quotas (tenant_id, user_id, day_key, request_count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (tenant_id, user_id, day_key) DO UPDATE
		SET request_count = user_quotas.request_count + 1
		WHERE user_quotas.request_count < $4
		RETURNING request_count
	`
	var count int64
	err := s.db.QueryRow(ctx, query, tenantID, userID, dayKey, limit).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to count user quota: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) GetLedger(ctx context.Context, tenantID, periodKey string) (*Ledger, error) {
	query := `
		SELECT tenant_id, period_key, spent_usd, request_count, budget_usd, exceeded
		FROM budget_ledgers
		WHERE tenant_id = $1 AND period_key = $2
	`
	var l Ledger
	err := s.db.QueryRow(ctx, query, tenantID, periodKey).Scan(
		&l.TenantID, &l.PeriodKey, &l.SpentUSD, &l.RequestCount, &l.BudgetUSD, &l.Exceeded,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}
	return &l, nil
}
