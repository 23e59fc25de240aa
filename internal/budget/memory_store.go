package budget

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is a process-local Store with the same atomicity guarantees as
// the Postgres implementation, used in tests.
type MemoryStore struct {
	mu      sync.Mutex
	ledgers map[string]*Ledger
	quotas  map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ledgers: make(map[string]*Ledger),
		quotas:  make(map[string]int64),
	}
}

func ledgerKey(tenantID, periodKey string) string {
	return tenantID + "/" + periodKey
}

func (s *MemoryStore) TryDebit(ctx context.Context, tenantID, periodKey string, amount, ceiling float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := ledgerKey(tenantID, periodKey)
	l, ok := s.ledgers[k]
	if !ok {
		l = &Ledger{TenantID: tenantID, PeriodKey: periodKey, BudgetUSD: ceiling}
		s.ledgers[k] = l
	}
	if l.Exceeded || l.SpentUSD+amount > l.BudgetUSD {
		return false, nil
	}
	l.SpentUSD += amount
	l.RequestCount++
	return true, nil
}

func (s *MemoryStore) Release(ctx context.Context, tenantID, periodKey string, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.ledgers[ledgerKey(tenantID, periodKey)]
	if !ok {
		return nil
	}
	l.SpentUSD = max(l.SpentUSD-amount, 0)
	l.RequestCount = max(l.RequestCount-1, 0)
	return nil
}

func (s *MemoryStore) Reconcile(ctx context.Context, tenantID, periodKey string, estimated, actual float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.ledgers[ledgerKey(tenantID, periodKey)]
	if !ok {
		return fmt.Errorf("no ledger for %s/%s", tenantID, periodKey)
	}
	l.SpentUSD = max(l.SpentUSD+(actual-estimated), 0)
	if l.SpentUSD > l.BudgetUSD {
		l.Exceeded = true
	}
	return nil
}

func (s *MemoryStore) TryIncrUserQuota(ctx context.Context, tenantID, userID, dayKey string, limit int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := tenantID + "/" + userID + "/" + dayKey
	if s.quotas[k] >= limit {
		return false, nil
	}
	s.quotas[k]++
	return true, nil
}

func (s *MemoryStore) GetLedger(ctx context.Context, tenantID, periodKey string) (*Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.ledgers[ledgerKey(tenantID, periodKey)]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}
