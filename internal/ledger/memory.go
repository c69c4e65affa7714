package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/davidbz/ember/internal/domain"
)

// MemoryStore is an in-process ledger and usage log for development
// and tests. Atomicity is a mutex instead of the database, but the
// contract is the same as PostgresStore.
type MemoryStore struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	records  []domain.UsageRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]decimal.Decimal),
	}
}

// SetBalance seeds a user's balance.
func (s *MemoryStore) SetBalance(userID string, balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] = balance
}

// GetBalance reads the current balance for a user.
func (s *MemoryStore) GetBalance(_ context.Context, userID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.balances[userID]
	if !ok {
		return decimal.Zero, domain.ErrUserNotFound
	}
	return balance, nil
}

// Decrement atomically subtracts amount from the stored balance.
func (s *MemoryStore) Decrement(_ context.Context, userID string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: negative debit amount", domain.ErrInvalidUsage)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.balances[userID]
	if !ok {
		return domain.ErrUserNotFound
	}

	s.balances[userID] = balance.Sub(amount)
	return nil
}

// AppendUsageRecord records one billing log entry.
func (s *MemoryStore) AppendUsageRecord(_ context.Context, rec *domain.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *rec
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.records = append(s.records, stored)
	return nil
}

// Records returns a copy of all usage records written so far.
func (s *MemoryStore) Records() []domain.UsageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.UsageRecord, len(s.records))
	copy(out, s.records)
	return out
}
