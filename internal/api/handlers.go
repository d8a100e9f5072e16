/**
 * @description
 * This file defines the HTTP handlers for the financial-service's API endpoints.
 * Handlers are responsible for parsing requests, calling the ledger service,
 * and mapping results and errors onto JSON responses.
 */
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/transfa/financial-service/internal/app"
	"github.com/transfa/financial-service/internal/domain"
	"go.uber.org/zap"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	maxRequestBodyBytes = 64 << 10
)

// LedgerHandler holds the dependencies for ledger handlers.
type LedgerHandler struct {
	service *app.LedgerService
	logger  *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(service *app.LedgerService, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{service: service, logger: logger}
}

// SaveFinancialDataRequest defines the expected JSON body for registering a customer.
type SaveFinancialDataRequest struct {
	Email       string `json:"email"`
	BVN         string `json:"bvn"`
	PhoneNumber string `json:"phoneNumber"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
}

// MovementRequest defines the expected JSON body for deposits and withdrawals.
// Amount accepts either a JSON number or a numeric string.
type MovementRequest struct {
	Email  string          `json:"email"`
	Amount decimal.Decimal `json:"amount"`
}

type statusResponse struct {
	Status        string           `json:"status"`
	Message       string           `json:"message"`
	AccountNumber string           `json:"account_number,omitempty"`
	Balance       *decimal.Decimal `json:"balance,omitempty"`
}

// SaveFinancialData handles customer registration.
func (h *LedgerHandler) SaveFinancialData(w http.ResponseWriter, r *http.Request) {
	var req SaveFinancialDataRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: statusError, Message: "Invalid request body"})
		return
	}

	account, err := h.service.CreateAccount(r.Context(), app.CreateAccountInput{
		Email:       req.Email,
		BVN:         req.BVN,
		PhoneNumber: req.PhoneNumber,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:        statusSuccess,
		Message:       "Financial data saved",
		AccountNumber: account.AccountNumber,
	})
}

// GetFinancialData returns the account registered under the email query parameter.
func (h *LedgerHandler) GetFinancialData(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetAccount(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// Deposit credits funds to an account.
func (h *LedgerHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req MovementRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: statusError, Message: "Valid email and amount are required"})
		return
	}

	account, err := h.service.Deposit(r.Context(), req.Email, req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:  statusSuccess,
		Message: "Deposit successful",
		Balance: &account.Balance,
	})
}

// Withdraw debits funds from an account.
func (h *LedgerHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req MovementRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: statusError, Message: "Valid email and amount are required"})
		return
	}

	account, err := h.service.Withdraw(r.Context(), req.Email, req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:  statusSuccess,
		Message: "Withdrawal successful",
		Balance: &account.Balance,
	})
}

// Health reports whether the ledger store is reachable.
func (h *LedgerHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ready(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("healthy"))
}

// writeError maps the ledger error taxonomy onto HTTP statuses. Internal
// details of store and issuer failures are logged, not returned.
func (h *LedgerHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := http.StatusInternalServerError, "Database error"
	switch {
	case errors.Is(err, domain.ErrValidation):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		status, message = http.StatusNotFound, "User not found"
	case errors.Is(err, domain.ErrDuplicateAccount):
		status, message = http.StatusConflict, "Account already exists"
	case errors.Is(err, domain.ErrInsufficientFunds):
		status, message = http.StatusBadRequest, "Insufficient funds"
	case errors.Is(err, domain.ErrIssuerUnavailable):
		status, message = http.StatusBadGateway, "Failed to create virtual account"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, status, statusResponse{Status: statusError, Message: message})
}

// writeJSON is a helper to write JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
