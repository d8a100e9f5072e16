/**
 * @description
 * This file defines the core domain model for a customer Account in the ledger.
 * It represents the structure of an account as stored in our own database.
 *
 * @notes
 * - The Email is the external identifier and primary key of the ledger.
 * - AccountNumber is always the value minted by the virtual account issuer;
 *   it is never generated locally.
 * - Balance is mutated only through deposits and withdrawals and can never
 *   drop below zero.
 */
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is the currency assigned to new accounts when none is configured.
const DefaultCurrency = "NGN"

// MaxAmountScale is the number of fractional digits a monetary amount may carry (kobo).
const MaxAmountScale = 2

// MaxAmount is the largest value a NUMERIC(20,2) balance column holds. It bounds
// both single amounts and running balances.
var MaxAmount = decimal.New(1, 18).Sub(decimal.New(1, -MaxAmountScale))

// Account represents a customer's ledger record.
type Account struct {
	Email         string          `json:"email"`
	BVN           string          `json:"bvn"`
	AccountNumber string          `json:"account_number"`
	PhoneNumber   string          `json:"phone_number"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ValidateAmount checks that a deposit or withdrawal amount is strictly positive
// and fits the ledger's kobo precision.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	}
	if !amount.Equal(amount.Truncate(MaxAmountScale)) {
		return fmt.Errorf("%w: amount must have at most %d decimal places", ErrValidation, MaxAmountScale)
	}
	if amount.GreaterThan(MaxAmount) {
		return fmt.Errorf("%w: amount must not exceed %s", ErrValidation, MaxAmount.StringFixed(MaxAmountScale))
	}
	return nil
}

// NormalizeEmail trims surrounding whitespace from an identifier.
// Case is preserved; the ledger treats identifiers as opaque strings.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(email)
}
