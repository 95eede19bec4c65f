package notify

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/foodsafe/storefront/internal/common"
	"github.com/foodsafe/storefront/internal/resilience"
)

// LogSender writes e-mails to the log instead of delivering them.
type LogSender struct {
	Logger zerolog.Logger
	From   string
}

// Send implements common.EmailSender.
func (s LogSender) Send(_ context.Context, msg common.Email) error {
	s.Logger.Info().
		Str("from", s.From).
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Int("html_bytes", len(msg.HTML)).
		Msg("email (log sender)")
	return nil
}

// HTTPSender posts e-mails as JSON to a transactional mail API.
type HTTPSender struct {
	HTTP   resilience.HTTPClient
	URL    string
	APIKey string
	From   string
}

type httpEmail struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text,omitempty"`
}

// Send implements common.EmailSender.
func (s HTTPSender) Send(ctx context.Context, msg common.Email) error {
	if strings.TrimSpace(s.URL) == "" {
		return errors.New("email: api url not configured")
	}
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("email: recipient is required")
	}
	headers := map[string]string{}
	if s.APIKey != "" {
		headers["Authorization"] = "Bearer " + s.APIKey
	}
	return s.HTTP.DoJSON(ctx, http.MethodPost, s.URL, headers, httpEmail{
		From:    s.From,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	}, nil)
}
