package domain

import "errors"

// Ledger error taxonomy. Callers match with errors.Is; every layer wraps
// these with context using %w.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("account not found")
	ErrDuplicateAccount  = errors.New("account already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrIssuerUnavailable = errors.New("virtual account issuer unavailable")
	ErrStore             = errors.New("store error")
)
