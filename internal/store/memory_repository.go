package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/transfa/financial-service/internal/domain"
)

// MemoryAccountRepository is an in-process AccountRepository. All operations
// run under one mutex, which gives each call the same per-row atomicity the
// PostgreSQL implementation gets from conditional updates.
type MemoryAccountRepository struct {
	mu             sync.Mutex
	accounts       map[string]domain.Account
	accountNumbers map[string]string
	now            func() time.Time
}

// NewMemoryAccountRepository creates an empty in-memory ledger.
func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{
		accounts:       make(map[string]domain.Account),
		accountNumbers: make(map[string]string),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryAccountRepository) CreateAccount(_ context.Context, account *domain.Account) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[account.Email]; exists {
		return nil, fmt.Errorf("create account %s: %w", account.Email, domain.ErrDuplicateAccount)
	}
	if owner, taken := r.accountNumbers[account.AccountNumber]; taken {
		return nil, fmt.Errorf("create account %s: account number %s already assigned to %s: %w", account.Email, account.AccountNumber, owner, domain.ErrStore)
	}
	if account.Balance.IsNegative() || account.Balance.GreaterThan(domain.MaxAmount) {
		return nil, fmt.Errorf("create account %s: opening balance %s out of range: %w", account.Email, account.Balance, domain.ErrStore)
	}

	now := r.now()
	stored := *account
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.accounts[stored.Email] = stored
	r.accountNumbers[stored.AccountNumber] = stored.Email

	out := stored
	return &out, nil
}

func (r *MemoryAccountRepository) FindAccountByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[email]
	if !ok {
		return nil, fmt.Errorf("find account %s: %w", email, domain.ErrNotFound)
	}
	return &account, nil
}

func (r *MemoryAccountRepository) CreditBalance(_ context.Context, email string, amount decimal.Decimal) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[email]
	if !ok {
		return nil, fmt.Errorf("credit balance %s: %w", email, domain.ErrNotFound)
	}
	updated := account.Balance.Add(amount)
	if updated.GreaterThan(domain.MaxAmount) {
		return nil, errBalanceLimit()
	}
	account.Balance = updated
	account.UpdatedAt = r.now()
	r.accounts[email] = account
	return &account, nil
}

func (r *MemoryAccountRepository) DebitBalance(_ context.Context, email string, amount decimal.Decimal) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[email]
	if !ok {
		return nil, fmt.Errorf("debit balance %s: %w", email, domain.ErrNotFound)
	}
	if account.Balance.LessThan(amount) {
		return nil, fmt.Errorf("debit balance %s: %w", email, domain.ErrInsufficientFunds)
	}
	account.Balance = account.Balance.Sub(amount)
	account.UpdatedAt = r.now()
	r.accounts[email] = account
	return &account, nil
}

func (r *MemoryAccountRepository) Ping(context.Context) error {
	return nil
}
