/**
 * @description
 * This file defines the domain events published by the financial-service.
 * These structs are the contract for messages sent to the message broker (RabbitMQ).
 */
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Routing keys for ledger events.
const (
	EventAccountCreated  = "account.created"
	EventAccountCredited = "account.credited"
	EventAccountDebited  = "account.debited"
	EventAccountOrphaned = "account.orphaned"
)

// AccountCreatedEvent is published after a new account row is persisted.
type AccountCreatedEvent struct {
	Email         string    `json:"email"`
	AccountNumber string    `json:"account_number"`
	Currency      string    `json:"currency"`
	Timestamp     time.Time `json:"timestamp"`
}

// BalanceChangedEvent is published after a successful deposit or withdrawal.
type BalanceChangedEvent struct {
	Email         string          `json:"email"`
	AccountNumber string          `json:"account_number"`
	Amount        decimal.Decimal `json:"amount"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
	Timestamp     time.Time       `json:"timestamp"`
}

// AccountOrphanedEvent is published when the issuer minted an account number
// but the ledger row could not be stored.
type AccountOrphanedEvent struct {
	Email         string    `json:"email"`
	AccountNumber string    `json:"account_number"`
	Reason        string    `json:"reason"`
	Timestamp     time.Time `json:"timestamp"`
}
