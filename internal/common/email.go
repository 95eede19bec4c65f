package common

import (
	"context"
	"sync"
)

// Email is a single outbound message.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text,omitempty"`
}

// EmailSender delivers e-mail.
type EmailSender interface {
	Send(ctx context.Context, msg Email) error
}

// InMemoryEmail records messages instead of sending them.
type InMemoryEmail struct {
	mu     sync.Mutex
	outbox []Email
}

// Send records the email in memory.
func (m *InMemoryEmail) Send(_ context.Context, msg Email) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outbox = append(m.outbox, msg)
	return nil
}

// Outbox returns a copy of the recorded messages.
func (m *InMemoryEmail) Outbox() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Email(nil), m.outbox...)
}

// NopEmailSender implements EmailSender without performing any action.
type NopEmailSender struct{}

// Send implements EmailSender.
func (NopEmailSender) Send(context.Context, Email) error { return nil }
