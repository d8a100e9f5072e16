/**
 * @description
 * This package provides a client for the Paystack dedicated virtual account API.
 * It mints the bank account number assigned to every new ledger customer.
 *
 * Key features:
 * - Manages the API base URL, secret key, preferred bank and country code.
 * - Bounds each call with a timeout and never retries; the caller decides.
 * - Maps every failure (transport, non-2xx, unsuccessful envelope) onto
 *   domain.ErrIssuerUnavailable.
 *
 * @dependencies
 * - go.uber.org/zap: Structured logging of issuer calls.
 * - The service's internal domain package for Paystack request/response models.
 */
package paystackclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/transfa/financial-service/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL       = "https://api.paystack.co"
	DefaultPreferredBank = "wema-bank"
	DefaultCountry       = "NG"
	DefaultTimeout       = 15 * time.Second

	maxResponseBytes = 1 << 20
)

// Options configures a Client. Zero values fall back to the defaults above.
type Options struct {
	BaseURL       string
	SecretKey     string
	PreferredBank string
	Country       string
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// IssueRequest holds the customer details sent to the issuer.
type IssueRequest struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

// Client is a client for the Paystack API.
type Client struct {
	baseURL       string
	secretKey     string
	preferredBank string
	country       string
	timeout       time.Duration
	httpClient    *http.Client
	logger        *zap.Logger
}

// NewClient creates a new Paystack API client.
func NewClient(opts Options, logger *zap.Logger) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		secretKey:     opts.SecretKey,
		preferredBank: opts.PreferredBank,
		country:       opts.Country,
		timeout:       opts.Timeout,
		httpClient:    opts.HTTPClient,
		logger:        logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.preferredBank == "" {
		c.preferredBank = DefaultPreferredBank
	}
	if c.country == "" {
		c.country = DefaultCountry
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c
}

// Issue mints a dedicated virtual account and returns its account number.
func (c *Client) Issue(ctx context.Context, req IssueRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := domain.CreateDedicatedAccountRequest{
		Email:         req.Email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Phone:         req.Phone,
		PreferredBank: c.preferredBank,
		Country:       c.country,
	}

	var resp domain.CreateDedicatedAccountResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/dedicated_account", payload, &resp); err != nil {
		return "", err
	}

	if !resp.Status {
		c.logger.Warn("paystack rejected dedicated account request",
			zap.String("email", req.Email),
			zap.String("message", resp.Message))
		return "", fmt.Errorf("%w: %s", domain.ErrIssuerUnavailable, resp.Message)
	}
	accountNumber := strings.TrimSpace(resp.Data.AccountNumber)
	if accountNumber == "" {
		return "", fmt.Errorf("%w: response carried no account number", domain.ErrIssuerUnavailable)
	}

	c.logger.Info("paystack dedicated account issued",
		zap.String("email", req.Email),
		zap.String("account_number", accountNumber),
		zap.String("bank", resp.Data.Bank.Name))
	return accountNumber, nil
}

// do is a helper function to make HTTP requests to the Paystack API.
func (c *Client) do(ctx context.Context, method, url string, body, target interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: failed to marshal request body: %v", domain.ErrIssuerUnavailable, err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("%w: failed to create http request: %v", domain.ErrIssuerUnavailable, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	c.logger.Debug("paystack request", zap.String("method", method), zap.String("url", url))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("paystack request failed", zap.String("url", url), zap.Error(err))
		return fmt.Errorf("%w: http request failed: %v", domain.ErrIssuerUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		c.logger.Error("failed to read paystack response", zap.String("url", url), zap.Error(err))
		return fmt.Errorf("%w: failed to read response body: %v", domain.ErrIssuerUnavailable, err)
	}
	if len(respBody) > maxResponseBytes {
		return fmt.Errorf("%w: response body exceeds %d bytes", domain.ErrIssuerUnavailable, maxResponseBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("paystack returned non-success status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody))
		return fmt.Errorf("%w: paystack status %d", domain.ErrIssuerUnavailable, resp.StatusCode)
	}

	if target != nil {
		if err := json.Unmarshal(respBody, target); err != nil {
			return fmt.Errorf("%w: failed to unmarshal response body: %v", domain.ErrIssuerUnavailable, err)
		}
	}

	return nil
}
