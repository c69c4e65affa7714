package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/davidbz/ember/internal/domain"
	"github.com/davidbz/ember/internal/ledger"
)

const testUser = "8c4a7e58-9a2f-4c1d-9d2e-53a1f4f7b6a0"

func TestMemoryStore_GetBalance(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()

	t.Run("missing user returns ErrUserNotFound", func(t *testing.T) {
		_, err := store.GetBalance(ctx, testUser)
		require.ErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("seeded balance reads back", func(t *testing.T) {
		store.SetBalance(testUser, decimal.RequireFromString("5.000000"))

		balance, err := store.GetBalance(ctx, testUser)
		require.NoError(t, err)
		require.Equal(t, "5.000000", balance.StringFixed(6))
	})
}

func TestMemoryStore_Decrement(t *testing.T) {
	ctx := context.Background()

	t.Run("negative amount is rejected", func(t *testing.T) {
		store := ledger.NewMemoryStore()
		store.SetBalance(testUser, decimal.NewFromInt(1))

		err := store.Decrement(ctx, testUser, decimal.NewFromInt(-1))
		require.ErrorIs(t, err, domain.ErrInvalidUsage)
	})

	t.Run("missing user returns ErrUserNotFound", func(t *testing.T) {
		store := ledger.NewMemoryStore()
		err := store.Decrement(ctx, testUser, decimal.NewFromInt(1))
		require.ErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("balance may go negative", func(t *testing.T) {
		store := ledger.NewMemoryStore()
		store.SetBalance(testUser, decimal.RequireFromString("0.001000"))

		err := store.Decrement(ctx, testUser, decimal.RequireFromString("0.002000"))
		require.NoError(t, err)

		balance, err := store.GetBalance(ctx, testUser)
		require.NoError(t, err)
		require.Equal(t, "-0.001000", balance.StringFixed(6))
	})

	t.Run("concurrent decrements lose no updates", func(t *testing.T) {
		store := ledger.NewMemoryStore()
		store.SetBalance(testUser, decimal.RequireFromString("5.000000"))

		const workers = 100
		amount := decimal.RequireFromString("0.002000")

		var wg sync.WaitGroup
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()
				require.NoError(t, store.Decrement(ctx, testUser, amount))
			}()
		}
		wg.Wait()

		balance, err := store.GetBalance(ctx, testUser)
		require.NoError(t, err)
		// 5.000000 - 100 * 0.002000
		require.Equal(t, "4.800000", balance.StringFixed(6))
	})
}

func TestMemoryStore_AppendUsageRecord(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()

	rec := &domain.UsageRecord{
		UserID:       testUser,
		RequestType:  domain.RequestTypeChat,
		Model:        "test-model",
		TokensInput:  1000,
		TokensOutput: 500,
		CostUSD:      decimal.RequireFromString("0.002000"),
	}
	require.NoError(t, store.AppendUsageRecord(ctx, rec))

	records := store.Records()
	require.Len(t, records, 1)
	require.Equal(t, testUser, records[0].UserID)
	require.False(t, records[0].CreatedAt.IsZero())
}
