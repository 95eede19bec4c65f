// Package payment opens hosted payment sessions for orders and settles them from
// provider webhooks.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Normalised webhook statuses.
const (
	StatusPaid    = "paid"
	StatusFailed  = "failed"
	StatusPending = "pending"
)

// ErrInvalidSignature is returned when a webhook signature does not verify.
var ErrInvalidSignature = errors.New("payment: invalid webhook signature")

// SessionRequest captures what a provider needs to open a checkout session.
type SessionRequest struct {
	OrderID       string
	Reference     string
	Amount        decimal.Decimal
	Currency      string
	CustomerEmail string
	Description   string
	SuccessURL    string
	CancelURL     string
}

// Session is the provider's answer to a SessionRequest.
type Session struct {
	Provider    string    `json:"provider"`
	Token       string    `json:"token"`
	RedirectURL string    `json:"redirectUrl,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt,omitempty"`
}

// WebhookResult is the normalised content of a verified provider callback.
type WebhookResult struct {
	OrderID   string
	Reference string
	Status    string
	Amount    decimal.Decimal
	Currency  string
	Payload   []byte
}

// Provider abstracts an upstream payment provider.
type Provider interface {
	Name() string
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	VerifyWebhook(r *http.Request, body []byte) (WebhookResult, error)
}

// webhookBody is the callback payload shared by the sandbox and hosted providers.
type webhookBody struct {
	OrderID   string `json:"orderId"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
}

func parseWebhookBody(body []byte) (WebhookResult, error) {
	var payload webhookBody
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookResult{}, fmt.Errorf("payment: decode webhook: %w", err)
	}
	if strings.TrimSpace(payload.OrderID) == "" {
		return WebhookResult{}, errors.New("payment: webhook missing orderId")
	}
	res := WebhookResult{
		OrderID:   strings.TrimSpace(payload.OrderID),
		Reference: strings.TrimSpace(payload.Reference),
		Status:    normaliseStatus(payload.Status),
		Currency:  strings.ToUpper(strings.TrimSpace(payload.Currency)),
		Payload:   body,
	}
	if amount := strings.TrimSpace(payload.Amount); amount != "" {
		parsed, err := decimal.NewFromString(amount)
		if err != nil {
			return WebhookResult{}, fmt.Errorf("payment: invalid webhook amount: %w", err)
		}
		res.Amount = parsed
	}
	return res, nil
}

func normaliseStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "paid", "succeeded", "success", "complete", "completed":
		return StatusPaid
	case "failed", "canceled", "cancelled", "expired", "declined":
		return StatusFailed
	default:
		return StatusPending
	}
}

func validateRequest(req SessionRequest) error {
	if strings.TrimSpace(req.OrderID) == "" {
		return errors.New("payment: order id is required")
	}
	if strings.TrimSpace(req.Reference) == "" {
		return errors.New("payment: reference is required")
	}
	if !req.Amount.IsPositive() {
		return errors.New("payment: amount must be positive")
	}
	if len(strings.TrimSpace(req.Currency)) != 3 {
		return errors.New("payment: currency must be an ISO code")
	}
	return nil
}
