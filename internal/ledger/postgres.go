// Package ledger provides the credit balance and usage log stores.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/davidbz/ember/internal/domain"
)

// PostgresStore implements domain.Ledger and domain.UsageLog against a
// Postgres database via a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store with a connection pool and verifies
// connectivity.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// GetBalance reads the current balance for a user.
func (s *PostgresStore) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	query := `
		SELECT balance
		FROM user_credits
		WHERE user_id = $1
	`

	var balance decimal.Decimal
	err := s.pool.QueryRow(ctx, query, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, domain.ErrUserNotFound
		}
		return decimal.Zero, fmt.Errorf("failed to read balance: %w", err)
	}

	return balance, nil
}

// Decrement atomically subtracts amount from the stored balance. The
// subtraction happens in a single UPDATE so concurrent debits against
// the same row cannot lose updates; the store serializes them. No
// floor is enforced here - the balance may go negative, and gating
// happens at the preflight check.
func (s *PostgresStore) Decrement(ctx context.Context, userID string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: negative debit amount", domain.ErrInvalidUsage)
	}

	query := `
		UPDATE user_credits
		SET balance = balance - $2,
		    updated_at = now()
		WHERE user_id = $1
	`

	tag, err := s.pool.Exec(ctx, query, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to decrement balance: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}

	return nil
}

// AppendUsageRecord writes one billing log entry. Best-effort: callers
// do not retry failures.
func (s *PostgresStore) AppendUsageRecord(ctx context.Context, rec *domain.UsageRecord) error {
	query := `
		INSERT INTO usage_records
			(user_id, request_type, model, tokens_input, tokens_output, cost_usd, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, query,
		rec.UserID,
		rec.RequestType,
		rec.Model,
		rec.TokensInput,
		rec.TokensOutput,
		rec.CostUSD,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append usage record: %w", err)
	}

	return nil
}
