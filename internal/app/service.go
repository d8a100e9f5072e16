/**
 * @description
 * This file contains the core business logic for the financial-service, implemented
 * as a `LedgerService`. It orchestrates operations by coordinating the ledger
 * repository, the virtual account issuer, and the event publisher.
 *
 * @notes
 * - Every balance change is delegated to a single atomic store operation.
 * - A store failure after a successful issuer call leaves an orphaned issuer
 *   account. It is logged and announced on the event bus; nothing compensates it.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/transfa/financial-service/internal/domain"
	"github.com/transfa/financial-service/internal/store"
	"github.com/transfa/financial-service/pkg/paystackclient"
	"github.com/transfa/financial-service/pkg/rabbitmq"
	"go.uber.org/zap"
)

// AccountIssuer mints bank account numbers for new customers.
type AccountIssuer interface {
	Issue(ctx context.Context, req paystackclient.IssueRequest) (string, error)
}

// LedgerService provides the create, read, deposit and withdraw operations.
type LedgerService struct {
	repo      store.AccountRepository
	issuer    AccountIssuer
	publisher rabbitmq.Publisher
	currency  string
	logger    *zap.Logger
	now       func() time.Time
}

// NewLedgerService creates a new instance of LedgerService. An empty currency
// falls back to domain.DefaultCurrency.
func NewLedgerService(repo store.AccountRepository, issuer AccountIssuer, publisher rabbitmq.Publisher, currency string, logger *zap.Logger) *LedgerService {
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	return &LedgerService{
		repo:      repo,
		issuer:    issuer,
		publisher: publisher,
		currency:  currency,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateAccountInput defines the required input for registering a customer.
type CreateAccountInput struct {
	Email       string
	BVN         string
	PhoneNumber string
	FirstName   string
	LastName    string
}

func (in CreateAccountInput) normalized() CreateAccountInput {
	return CreateAccountInput{
		Email:       domain.NormalizeEmail(in.Email),
		BVN:         strings.TrimSpace(in.BVN),
		PhoneNumber: strings.TrimSpace(in.PhoneNumber),
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
	}
}

func (in CreateAccountInput) validate() error {
	var missing []string
	if in.Email == "" {
		missing = append(missing, "email")
	}
	if in.BVN == "" {
		missing = append(missing, "bvn")
	}
	if in.PhoneNumber == "" {
		missing = append(missing, "phoneNumber")
	}
	if in.FirstName == "" {
		missing = append(missing, "firstName")
	}
	if in.LastName == "" {
		missing = append(missing, "lastName")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", domain.ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// CreateAccount mints a virtual account number with the issuer and stores a
// new zero-balance account for the customer.
func (s *LedgerService) CreateAccount(ctx context.Context, input CreateAccountInput) (*domain.Account, error) {
	input = input.normalized()
	if err := input.validate(); err != nil {
		return nil, err
	}

	// Known duplicates are rejected before the issuer mints a number nobody will use.
	// Concurrent registrations still race to the store's uniqueness constraint.
	if _, err := s.repo.FindAccountByEmail(ctx, input.Email); err == nil {
		return nil, fmt.Errorf("create account %s: %w", input.Email, domain.ErrDuplicateAccount)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	accountNumber, err := s.issuer.Issue(ctx, paystackclient.IssueRequest{
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Phone:     input.PhoneNumber,
	})
	if err != nil {
		s.logger.Error("virtual account issuance failed", zap.String("email", input.Email), zap.Error(err))
		if !errors.Is(err, domain.ErrIssuerUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrIssuerUnavailable, err)
		}
		return nil, err
	}

	account, err := s.repo.CreateAccount(ctx, &domain.Account{
		Email:         input.Email,
		BVN:           input.BVN,
		AccountNumber: accountNumber,
		PhoneNumber:   input.PhoneNumber,
		Balance:       decimal.Zero,
		Currency:      s.currency,
	})
	if err != nil {
		s.logger.Error("issuer account orphaned: ledger insert failed after issuance",
			zap.String("email", input.Email),
			zap.String("account_number", accountNumber),
			zap.Error(err))
		s.publish(ctx, domain.EventAccountOrphaned, domain.AccountOrphanedEvent{
			Email:         input.Email,
			AccountNumber: accountNumber,
			Reason:        err.Error(),
			Timestamp:     s.now(),
		})
		return nil, err
	}

	s.logger.Info("account registered",
		zap.String("email", account.Email),
		zap.String("account_number", account.AccountNumber))
	s.publish(ctx, domain.EventAccountCreated, domain.AccountCreatedEvent{
		Email:         account.Email,
		AccountNumber: account.AccountNumber,
		Currency:      account.Currency,
		Timestamp:     s.now(),
	})
	return account, nil
}

// GetAccount returns the account registered under email.
func (s *LedgerService) GetAccount(ctx context.Context, email string) (*domain.Account, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", domain.ErrValidation)
	}
	return s.repo.FindAccountByEmail(ctx, email)
}

// Deposit credits amount to the account in a single atomic update.
func (s *LedgerService) Deposit(ctx context.Context, email string, amount decimal.Decimal) (*domain.Account, error) {
	email, err := validateMovement(email, amount)
	if err != nil {
		return nil, err
	}

	account, err := s.repo.CreditBalance(ctx, email, amount)
	if err != nil {
		return nil, err
	}

	s.logger.Info("deposit applied",
		zap.String("email", email),
		zap.String("amount", amount.String()),
		zap.String("balance", account.Balance.String()))
	s.publish(ctx, domain.EventAccountCredited, s.balanceEvent(account, amount))
	return account, nil
}

// Withdraw debits amount from the account if, and only if, the balance covers it.
// On failure the balance is unchanged.
func (s *LedgerService) Withdraw(ctx context.Context, email string, amount decimal.Decimal) (*domain.Account, error) {
	email, err := validateMovement(email, amount)
	if err != nil {
		return nil, err
	}

	account, err := s.repo.DebitBalance(ctx, email, amount)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			s.logger.Info("withdrawal rejected: insufficient funds",
				zap.String("email", email),
				zap.String("amount", amount.String()))
		}
		return nil, err
	}

	s.logger.Info("withdrawal applied",
		zap.String("email", email),
		zap.String("amount", amount.String()),
		zap.String("balance", account.Balance.String()))
	s.publish(ctx, domain.EventAccountDebited, s.balanceEvent(account, amount))
	return account, nil
}

// Ready reports whether the ledger store is reachable.
func (s *LedgerService) Ready(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func validateMovement(email string, amount decimal.Decimal) (string, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", domain.ErrValidation)
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return "", err
	}
	return email, nil
}

func (s *LedgerService) balanceEvent(account *domain.Account, amount decimal.Decimal) domain.BalanceChangedEvent {
	return domain.BalanceChangedEvent{
		Email:         account.Email,
		AccountNumber: account.AccountNumber,
		Amount:        amount,
		Balance:       account.Balance,
		Currency:      account.Currency,
		Timestamp:     s.now(),
	}
}

// publish never fails the calling operation; the ledger row is the source of truth.
func (s *LedgerService) publish(ctx context.Context, routingKey string, event interface{}) {
	if err := s.publisher.Publish(ctx, routingKey, event); err != nil {
		s.logger.Warn("failed to publish ledger event",
			zap.String("routing_key", routingKey),
			zap.Error(err))
	}
}
