// Package order holds the records produced by a checkout submission and their
// Postgres persistence.
package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status values.
const (
	StatusPendingPayment = "pending_payment"
	StatusPaid           = "paid"
	StatusCancelled      = "cancelled"
)

var (
	// ErrNotFound is returned when no order matches.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicate is returned when an order reference is already taken.
	ErrDuplicate = errors.New("order reference already exists")
	// ErrInvalidTransition is returned when a settled order is moved to another status.
	ErrInvalidTransition = errors.New("order status transition not allowed")
)

// CanTransition reports whether an order may move from one status to another.
// Only pending orders settle; repeating the current status is a no-op.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	return from == StatusPendingPayment && (to == StatusPaid || to == StatusCancelled)
}

// Address is a postal address.
type Address struct {
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2,omitempty" validate:"max=200"`
	City       string `json:"city" validate:"required,max=100"`
	Region     string `json:"region,omitempty" validate:"max=100"`
	PostalCode string `json:"postalCode" validate:"required,max=20"`
	Country    string `json:"country" validate:"required,len=2,alpha"`
}

// CustomerDetails is the checkout form input.
type CustomerDetails struct {
	FirstName string  `json:"firstName" validate:"required,max=100"`
	LastName  string  `json:"lastName" validate:"required,max=100"`
	Email     string  `json:"email" validate:"required,email,max=254"`
	Phone     string  `json:"phone,omitempty" validate:"omitempty,max=40"`
	Company   string  `json:"company,omitempty" validate:"max=200"`
	VatNumber string  `json:"vatNumber,omitempty" validate:"max=40"`
	Address   Address `json:"address"`
	Notes     string  `json:"notes,omitempty" validate:"max=1000"`
}

// FullName joins first and last name.
func (c CustomerDetails) FullName() string {
	return c.FirstName + " " + c.LastName
}

// SummaryLine is one purchased line frozen at submission time.
type SummaryLine struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	VariantID   string          `json:"variantId"`
	VariantName string          `json:"variantName"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

// Summary is the priced order handed to persistence and payment.
type Summary struct {
	Lines           []SummaryLine   `json:"lines"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	ShippingCost    decimal.Decimal `json:"shippingCost"`
	TaxRate         decimal.Decimal `json:"taxRate"`
	TaxAmount       decimal.Decimal `json:"taxAmount"`
	Total           decimal.Decimal `json:"total"`
	Currency        string          `json:"currency"`
	Country         string          `json:"country"`
	VatNumber       string          `json:"vatNumber,omitempty"`
	IsVatExempt     bool            `json:"isVatExempt"`
	ExemptionReason string          `json:"exemptionReason,omitempty"`
}

// Payment references the hosted payment session for an order.
type Payment struct {
	Provider    string `json:"provider"`
	Token       string `json:"token"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// Order is a persisted checkout submission.
type Order struct {
	ID        uuid.UUID       `json:"id"`
	Reference string          `json:"reference"`
	SessionID string          `json:"-"`
	Status    string          `json:"status"`
	Customer  CustomerDetails `json:"customer"`
	Summary   Summary         `json:"summary"`
	Payment   *Payment        `json:"payment,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Store persists orders.
type Store interface {
	Create(ctx context.Context, o Order) error
	AttachPayment(ctx context.Context, id uuid.UUID, p Payment) error
	Get(ctx context.Context, id uuid.UUID) (Order, error)
	// UpdateStatus moves a pending order to status. changed is false when the
	// order already had that status.
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (changed bool, err error)
}
