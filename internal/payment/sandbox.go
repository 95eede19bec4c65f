package payment

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SandboxSignatureHeader carries the hex HMAC of a sandbox webhook body.
const SandboxSignatureHeader = "X-Sandbox-Signature"

// Sandbox is a network-free provider for development and tests. Tokens are
// derived from the order so repeated submissions of the same order agree.
type Sandbox struct {
	Secret  string
	BaseURL string
	TTL     time.Duration
	Now     func() time.Time
}

// Name implements Provider.
func (Sandbox) Name() string { return "sandbox" }

// CreateSession implements Provider.
func (s Sandbox) CreateSession(_ context.Context, req SessionRequest) (Session, error) {
	if err := validateRequest(req); err != nil {
		return Session{}, err
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	token := "sbx_" + Sign(s.Secret, []byte(req.OrderID+":"+req.Amount.StringFixed(2)))[:24]
	base := strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	if base == "" {
		base = "https://sandbox.payments.invalid"
	}
	redirect := base + "/pay/" + token
	if req.SuccessURL != "" {
		redirect += "?return=" + url.QueryEscape(req.SuccessURL)
	}
	return Session{
		Provider:    s.Name(),
		Token:       token,
		RedirectURL: redirect,
		ExpiresAt:   now().Add(ttl).UTC(),
	}, nil
}

// VerifyWebhook implements Provider.
func (s Sandbox) VerifyWebhook(r *http.Request, body []byte) (WebhookResult, error) {
	if !verifyHex(s.Secret, body, r.Header.Get(SandboxSignatureHeader)) {
		return WebhookResult{}, ErrInvalidSignature
	}
	return parseWebhookBody(body)
}
