package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transfa/financial-service/internal/domain"
)

// runRepositoryContract exercises behavior every AccountRepository must share.
func runRepositoryContract(t *testing.T, repo AccountRepository) {
	t.Helper()
	ctx := context.Background()

	newAccount := func() *domain.Account {
		id := uuid.NewString()
		return &domain.Account{
			Email:         id + "@example.com",
			BVN:           "22334455667",
			AccountNumber: id[:10],
			PhoneNumber:   "+2348000000000",
			Balance:       decimal.Zero,
			Currency:      domain.DefaultCurrency,
		}
	}

	t.Run("create and find", func(t *testing.T) {
		acc := newAccount()
		created, err := repo.CreateAccount(ctx, acc)
		require.NoError(t, err)
		assert.Equal(t, acc.Email, created.Email)
		assert.True(t, created.Balance.IsZero())
		assert.False(t, created.CreatedAt.IsZero())

		found, err := repo.FindAccountByEmail(ctx, acc.Email)
		require.NoError(t, err)
		assert.Equal(t, acc.AccountNumber, found.AccountNumber)
		assert.Equal(t, acc.BVN, found.BVN)
		assert.Equal(t, domain.DefaultCurrency, found.Currency)
	})

	t.Run("duplicate email", func(t *testing.T) {
		acc := newAccount()
		_, err := repo.CreateAccount(ctx, acc)
		require.NoError(t, err)

		again := *acc
		again.AccountNumber = uuid.NewString()[:10]
		_, err = repo.CreateAccount(ctx, &again)
		assert.ErrorIs(t, err, domain.ErrDuplicateAccount)
	})

	t.Run("duplicate account number", func(t *testing.T) {
		acc := newAccount()
		_, err := repo.CreateAccount(ctx, acc)
		require.NoError(t, err)

		other := newAccount()
		other.AccountNumber = acc.AccountNumber
		_, err = repo.CreateAccount(ctx, other)
		assert.ErrorIs(t, err, domain.ErrStore)
		assert.NotErrorIs(t, err, domain.ErrDuplicateAccount)
	})

	t.Run("missing account", func(t *testing.T) {
		ghost := uuid.NewString() + "@example.com"
		_, err := repo.FindAccountByEmail(ctx, ghost)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = repo.CreditBalance(ctx, ghost, decimal.NewFromInt(1))
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = repo.DebitBalance(ctx, ghost, decimal.NewFromInt(1))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("credit and debit", func(t *testing.T) {
		acc := newAccount()
		_, err := repo.CreateAccount(ctx, acc)
		require.NoError(t, err)

		updated, err := repo.CreditBalance(ctx, acc.Email, decimal.RequireFromString("100.25"))
		require.NoError(t, err)
		assert.True(t, updated.Balance.Equal(decimal.RequireFromString("100.25")), updated.Balance.String())

		_, err = repo.DebitBalance(ctx, acc.Email, decimal.RequireFromString("100.26"))
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

		found, err := repo.FindAccountByEmail(ctx, acc.Email)
		require.NoError(t, err)
		assert.True(t, found.Balance.Equal(decimal.RequireFromString("100.25")), "failed debit must not change the balance")

		updated, err = repo.DebitBalance(ctx, acc.Email, decimal.RequireFromString("100.25"))
		require.NoError(t, err)
		assert.True(t, updated.Balance.IsZero(), updated.Balance.String())
	})

	t.Run("credit beyond balance limit", func(t *testing.T) {
		acc := newAccount()
		_, err := repo.CreateAccount(ctx, acc)
		require.NoError(t, err)

		updated, err := repo.CreditBalance(ctx, acc.Email, domain.MaxAmount)
		require.NoError(t, err)
		assert.True(t, updated.Balance.Equal(domain.MaxAmount), updated.Balance.String())

		_, err = repo.CreditBalance(ctx, acc.Email, decimal.RequireFromString("0.01"))
		assert.ErrorIs(t, err, domain.ErrValidation)

		found, err := repo.FindAccountByEmail(ctx, acc.Email)
		require.NoError(t, err)
		assert.True(t, found.Balance.Equal(domain.MaxAmount), found.Balance.String())
	})

	t.Run("negative opening balance", func(t *testing.T) {
		acc := newAccount()
		acc.Balance = decimal.NewFromInt(-1)
		_, err := repo.CreateAccount(ctx, acc)
		assert.ErrorIs(t, err, domain.ErrStore)
		assert.NotErrorIs(t, err, domain.ErrInsufficientFunds)

		_, err = repo.FindAccountByEmail(ctx, acc.Email)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("concurrent debits never overdraw", func(t *testing.T) {
		acc := newAccount()
		_, err := repo.CreateAccount(ctx, acc)
		require.NoError(t, err)
		_, err = repo.CreditBalance(ctx, acc.Email, decimal.NewFromInt(50))
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			succeeded atomic.Int32
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := repo.DebitBalance(ctx, acc.Email, decimal.NewFromInt(10)); err == nil {
					succeeded.Add(1)
				} else {
					assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(5), succeeded.Load())
		found, err := repo.FindAccountByEmail(ctx, acc.Email)
		require.NoError(t, err)
		assert.True(t, found.Balance.IsZero(), found.Balance.String())
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, repo.Ping(ctx))
	})
}
