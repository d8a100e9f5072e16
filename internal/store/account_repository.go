/**
 * @description
 * This file implements the data access layer for the ledger on PostgreSQL.
 * It provides the application logic with atomic operations on the
 * `accounts` table.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5/pgxpool: The PostgreSQL driver and connection pool.
 * - go.uber.org/zap: Structured logging of database failures.
 */
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/transfa/financial-service/internal/domain"
	"go.uber.org/zap"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
	pgNumericOverflow = "22003"

	accountsPrimaryKey = "accounts_pkey"

	accountColumns = `email, bvn, account_number, phone_number, balance::text, currency, created_at, updated_at`
)

// PostgresAccountRepository is the PostgreSQL implementation of the AccountRepository.
type PostgresAccountRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresAccountRepository creates a new instance of PostgresAccountRepository.
func NewPostgresAccountRepository(db *pgxpool.Pool, logger *zap.Logger) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db, logger: logger}
}

// CreateAccount inserts a new account record into the database.
func (r *PostgresAccountRepository) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	query := `
        INSERT INTO accounts (email, bvn, account_number, phone_number, balance, currency)
        VALUES ($1, $2, $3, $4, $5::numeric, $6)
        RETURNING ` + accountColumns

	row := r.db.QueryRow(ctx, query,
		account.Email,
		account.BVN,
		account.AccountNumber,
		account.PhoneNumber,
		account.Balance.String(),
		account.Currency,
	)
	created, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			r.logger.Warn("unique constraint violation creating account",
				zap.String("email", account.Email),
				zap.String("constraint", pgErr.ConstraintName))
			if pgErr.ConstraintName == accountsPrimaryKey {
				return nil, fmt.Errorf("create account %s: %w", account.Email, domain.ErrDuplicateAccount)
			}
			return nil, fmt.Errorf("create account %s: account number %s already assigned: %w", account.Email, account.AccountNumber, domain.ErrStore)
		}
		r.logger.Error("failed to insert account", zap.String("email", account.Email), zap.Error(err))
		return nil, fmt.Errorf("create account %s: %w: %w", account.Email, domain.ErrStore, err)
	}

	r.logger.Info("account created",
		zap.String("email", created.Email),
		zap.String("account_number", created.AccountNumber))
	return created, nil
}

// FindAccountByEmail retrieves a single account by its identifier.
func (r *PostgresAccountRepository) FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	account, err := scanAccount(r.db.QueryRow(ctx, query, email))
	if err != nil {
		return nil, r.classify("find account", email, err)
	}
	return account, nil
}

// CreditBalance atomically increments the balance of an account.
func (r *PostgresAccountRepository) CreditBalance(ctx context.Context, email string, amount decimal.Decimal) (*domain.Account, error) {
	query := `
        UPDATE accounts
        SET balance = balance + $1::numeric, updated_at = NOW()
        WHERE email = $2
        RETURNING ` + accountColumns
	account, err := scanAccount(r.db.QueryRow(ctx, query, amount.String(), email))
	if err != nil {
		return nil, r.classify("credit balance", email, err)
	}
	return account, nil
}

// DebitBalance atomically decrements the balance of an account when it
// covers the amount. The guard lives in the WHERE clause so the check and the
// write cannot interleave with another debit on the same row.
func (r *PostgresAccountRepository) DebitBalance(ctx context.Context, email string, amount decimal.Decimal) (*domain.Account, error) {
	query := `
        UPDATE accounts
        SET balance = balance - $1::numeric, updated_at = NOW()
        WHERE email = $2 AND balance >= $1::numeric
        RETURNING ` + accountColumns
	account, err := scanAccount(r.db.QueryRow(ctx, query, amount.String(), email))
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, r.classify("debit balance", email, err)
	}

	// No row was updated: either the account is missing or the balance is short.
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1)`, email).Scan(&exists); err != nil {
		return nil, r.classify("debit balance", email, err)
	}
	if !exists {
		return nil, fmt.Errorf("debit balance %s: %w", email, domain.ErrNotFound)
	}
	return nil, fmt.Errorf("debit balance %s: %w", email, domain.ErrInsufficientFunds)
}

// Ping verifies that the pool can reach the database.
func (r *PostgresAccountRepository) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w: %w", domain.ErrStore, err)
	}
	return nil
}

func (r *PostgresAccountRepository) classify(op, email string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", op, email, domain.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgCheckViolation:
			return fmt.Errorf("%s %s: %w", op, email, domain.ErrInsufficientFunds)
		case pgNumericOverflow:
			r.logger.Warn("balance limit exceeded", zap.String("op", op), zap.String("email", email))
			return errBalanceLimit()
		}
	}
	r.logger.Error("database error", zap.String("op", op), zap.String("email", email), zap.Error(err))
	return fmt.Errorf("%s %s: %w: %w", op, email, domain.ErrStore, err)
}

func errBalanceLimit() error {
	return fmt.Errorf("%w: balance must not exceed %s", domain.ErrValidation, domain.MaxAmount.StringFixed(domain.MaxAmountScale))
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account domain.Account
		balance string
	)
	if err := row.Scan(
		&account.Email,
		&account.BVN,
		&account.AccountNumber,
		&account.PhoneNumber,
		&balance,
		&account.Currency,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", balance, err)
	}
	account.Balance = parsed
	return &account, nil
}
