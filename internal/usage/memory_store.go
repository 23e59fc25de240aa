package usage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process append-only Store used in tests.
type MemoryStore struct {
	mu      sync.Mutex
	records []*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.records = append(s.records, &cp)
	return nil
}

func (s *MemoryStore) ListByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Record
	for _, r := range s.records {
		if r.TenantID == tenantID && !r.CreatedAt.Before(from) && !r.CreatedAt.After(to) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) TotalCostByTenant(ctx context.Context, tenantID string, from, to time.Time) (float64, error) {
	records, err := s.ListByTenant(ctx, tenantID, from, to)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, r := range records {
		if r.Outcome == OutcomeSuccess && !r.CacheHit {
			total += r.CostUSD
		}
	}
	return total, nil
}

// All returns every record appended so far, for test assertions.
func (s *MemoryStore) All() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Record, len(s.records))
	for i, r := range s.records {
		cp := *r
		out[i] = &cp
	}
	return out
}
