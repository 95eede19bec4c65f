package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/foodsafe/storefront/internal/resilience"
)

// HostedSignatureHeader carries the timestamped signature of a hosted webhook.
const HostedSignatureHeader = "X-Signature"

// Hosted talks to a hosted-checkout API over HTTP.
type Hosted struct {
	HTTP          resilience.HTTPClient
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	// Tolerance bounds the webhook timestamp skew. Zero disables the check.
	Tolerance time.Duration
	Now       func() time.Time
}

type hostedSessionRequest struct {
	Reference     string            `json:"reference"`
	Amount        string            `json:"amount"`
	Currency      string            `json:"currency"`
	CustomerEmail string            `json:"customerEmail,omitempty"`
	Description   string            `json:"description,omitempty"`
	SuccessURL    string            `json:"successUrl,omitempty"`
	CancelURL     string            `json:"cancelUrl,omitempty"`
	Metadata      map[string]string `json:"metadata"`
}

type hostedSessionResponse struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Name implements Provider.
func (Hosted) Name() string { return "hosted" }

// CreateSession implements Provider. The order id doubles as the idempotency
// key so a retried POST never opens two sessions.
func (h Hosted) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	if err := validateRequest(req); err != nil {
		return Session{}, err
	}
	base := strings.TrimRight(strings.TrimSpace(h.BaseURL), "/")
	if base == "" {
		return Session{}, errors.New("payment: hosted base url not configured")
	}
	payload := hostedSessionRequest{
		Reference:     req.Reference,
		Amount:        req.Amount.StringFixed(2),
		Currency:      strings.ToUpper(req.Currency),
		CustomerEmail: req.CustomerEmail,
		Description:   req.Description,
		SuccessURL:    req.SuccessURL,
		CancelURL:     req.CancelURL,
		Metadata:      map[string]string{"orderId": req.OrderID},
	}
	headers := map[string]string{
		"Authorization":   "Bearer " + h.SecretKey,
		"Idempotency-Key": req.OrderID,
	}
	var resp hostedSessionResponse
	if err := h.HTTP.DoJSON(ctx, http.MethodPost, base+"/checkout/sessions", headers, payload, &resp); err != nil {
		return Session{}, fmt.Errorf("payment: create hosted session: %w", err)
	}
	if strings.TrimSpace(resp.ID) == "" {
		return Session{}, errors.New("payment: hosted session without id")
	}
	return Session{
		Provider:    h.Name(),
		Token:       resp.ID,
		RedirectURL: resp.URL,
		ExpiresAt:   resp.ExpiresAt,
	}, nil
}

// VerifyWebhook implements Provider.
func (h Hosted) VerifyWebhook(r *http.Request, body []byte) (WebhookResult, error) {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	if !verifyTimestamped(h.WebhookSecret, body, r.Header.Get(HostedSignatureHeader), now(), h.Tolerance) {
		return WebhookResult{}, ErrInvalidSignature
	}
	return parseWebhookBody(body)
}
