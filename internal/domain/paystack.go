/**
 * @description
 * This file defines the Go structs that map to the Paystack dedicated virtual
 * account endpoint used to mint bank account numbers for new customers.
 *
 * @notes
 * - These structs are used by the Paystack client to serialize requests
 *   and deserialize responses.
 */
package domain

// CreateDedicatedAccountRequest is the payload sent to Paystack to mint a
// dedicated virtual account for a customer.
type CreateDedicatedAccountRequest struct {
	Email         string `json:"email"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Phone         string `json:"phone"`
	PreferredBank string `json:"preferred_bank"`
	Country       string `json:"country"`
}

// DedicatedAccountBank describes the bank that hosts a dedicated account.
type DedicatedAccountBank struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
	Slug string `json:"slug"`
}

// DedicatedAccount is the account resource returned by Paystack.
type DedicatedAccount struct {
	AccountName   string               `json:"account_name"`
	AccountNumber string               `json:"account_number"`
	Currency      string               `json:"currency"`
	Active        bool                 `json:"active"`
	Bank          DedicatedAccountBank `json:"bank"`
}

// CreateDedicatedAccountResponse is the top-level Paystack response envelope.
type CreateDedicatedAccountResponse struct {
	Status  bool             `json:"status"`
	Message string           `json:"message"`
	Data    DedicatedAccount `json:"data"`
}
