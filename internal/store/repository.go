/**
 * @description
 * This file defines the interface for the ledger's data access layer.
 * Defining an interface allows the service to run against PostgreSQL in
 * production and an in-memory store in tests and local runs.
 *
 * @notes
 * - Balance changes are single atomic operations at the store. There is no
 *   read-modify-write in the application layer.
 * - Implementations must enforce identifier uniqueness themselves.
 */
package store

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/transfa/financial-service/internal/domain"
)

// AccountRepository defines the contract for ledger storage.
type AccountRepository interface {
	// CreateAccount inserts a new account. It returns domain.ErrDuplicateAccount
	// when the email is already registered.
	CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error)
	// FindAccountByEmail returns domain.ErrNotFound when no row matches.
	FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	// CreditBalance adds amount to the balance in one statement.
	CreditBalance(ctx context.Context, email string, amount decimal.Decimal) (*domain.Account, error)
	// DebitBalance subtracts amount only if the balance covers it, returning
	// domain.ErrInsufficientFunds otherwise.
	DebitBalance(ctx context.Context, email string, amount decimal.Decimal) (*domain.Account, error)
	Ping(ctx context.Context) error
}
