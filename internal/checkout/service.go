// Package checkout turns a session cart and the customer's details into a
// persisted order with an open payment session.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/foodsafe/storefront/internal/cart"
	"github.com/foodsafe/storefront/internal/common"
	"github.com/foodsafe/storefront/internal/events"
	"github.com/foodsafe/storefront/internal/lock"
	"github.com/foodsafe/storefront/internal/obs"
	"github.com/foodsafe/storefront/internal/order"
	"github.com/foodsafe/storefront/internal/payment"
	"github.com/foodsafe/storefront/internal/pricing"
	"github.com/foodsafe/storefront/internal/vat"
)

var (
	// ErrEmptyCart is returned when a session submits checkout with no items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrPricingDrift is returned when catalog prices changed since the items
	// were added. The cart has been repriced and saved so the shopper can
	// review the new total before submitting again.
	ErrPricingDrift = errors.New("cart prices changed")
	// ErrInProgress is returned while another submission for the same session
	// is still running.
	ErrInProgress = errors.New("checkout already in progress")
)

const (
	referenceAttempts = 3
	defaultClaimTTL   = 2 * time.Minute
)

// Claimer marks a session's checkout as running; lock.Locker satisfies it.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// PaymentOpener opens a payment session; *payment.Service satisfies it.
type PaymentOpener interface {
	CreateSession(ctx context.Context, req payment.SessionRequest) (payment.Session, error)
}

// Output is returned to the shopper after a successful submission.
type Output struct {
	OrderID   string          `json:"orderId"`
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Payment   payment.Session `json:"payment"`
	Summary   order.Summary   `json:"summary"`
}

// Service runs checkout submissions.
type Service struct {
	Carts     *cart.Service
	Orders    order.Store
	Payments  PaymentOpener
	Events    *events.Bus
	Rules     pricing.Rules
	Validator *validator.Validate
	Logger    zerolog.Logger
	Now       func() time.Time
	InFlight  Claimer
	ClaimTTL  time.Duration
}

// Submit validates details, claims the session's checkout slot, then under the
// cart lock reprices the lines from the catalog and applies the billing country
// and VAT number. It persists the order from that snapshot, opens a payment
// session and clears the cart if it still holds exactly what was ordered.
//
// Country and VAT number stay on the cart once the cart step has run, even if
// the order or payment session later fails; the line items are never removed
// unless an order was placed for them.
func (s *Service) Submit(ctx context.Context, sessionID string, details order.CustomerDetails) (out Output, err error) {
	if s == nil || s.Carts == nil || s.Orders == nil || s.Payments == nil {
		return Output{}, errors.New("checkout service not configured")
	}
	defer func() { s.record(out, err) }()

	details = normalizeDetails(details)
	if err := s.validator().Struct(details); err != nil {
		return Output{}, common.NewAppError("VALIDATION_FAILED", "customer details are invalid", http.StatusUnprocessableEntity, err).
			WithDetails(fieldErrors(err))
	}
	var vatNumber *string
	if details.VatNumber != "" {
		res := vat.Validate(details.VatNumber)
		if !res.IsValid {
			return Output{}, common.NewAppError("INVALID_VAT_NUMBER", res.Error, http.StatusUnprocessableEntity, nil).
				WithDetails(FieldErrors{"vatNumber": res.Error})
		}
		details.VatNumber = res.Normalized
		vatNumber = &res.Normalized
	}
	country := details.Address.Country

	if s.InFlight != nil {
		release, err := s.InFlight.Claim(ctx, "checkout:"+sessionID, s.claimTTL())
		if err != nil {
			if errors.Is(err, lock.ErrHeld) {
				return Output{}, ErrInProgress
			}
			return Output{}, fmt.Errorf("claim checkout: %w", err)
		}
		defer release()
	}

	repriced := false
	state, err := s.Carts.Mutate(ctx, sessionID, "checkout", func(st *cart.Store) error {
		if st.Snapshot().IsEmpty() {
			return ErrEmptyCart
		}
		changed, err := s.reprice(ctx, st)
		if err != nil {
			return err
		}
		repriced = changed
		st.SetCountry(&country)
		st.SetVatNumber(vatNumber)
		return nil
	})
	if err != nil {
		return Output{}, err
	}
	if repriced {
		s.Logger.Info().Str("session_id", sessionID).Str("total", state.Total.StringFixed(2)).Msg("cart repriced at checkout")
		return Output{}, ErrPricingDrift
	}
	summary := s.buildSummary(state)

	created, err := s.createOrder(ctx, sessionID, details, summary)
	if err != nil {
		return Output{}, err
	}
	sess, err := s.Payments.CreateSession(ctx, payment.SessionRequest{
		OrderID:       created.ID.String(),
		Reference:     created.Reference,
		Amount:        summary.Total,
		Currency:      summary.Currency,
		CustomerEmail: details.Email,
		Description:   "Order " + created.Reference,
	})
	if err != nil {
		if _, cancelErr := s.Orders.UpdateStatus(context.WithoutCancel(ctx), created.ID, order.StatusCancelled); cancelErr != nil {
			s.Logger.Warn().Err(cancelErr).Str("order_id", created.ID.String()).Msg("cancel order after payment failure")
		}
		return Output{}, common.NewAppError("PAYMENT_UNAVAILABLE", "payment provider unavailable, please retry", http.StatusBadGateway, err)
	}
	pay := order.Payment{Provider: sess.Provider, Token: sess.Token, RedirectURL: sess.RedirectURL}
	if err := s.Orders.AttachPayment(ctx, created.ID, pay); err != nil {
		return Output{}, fmt.Errorf("attach payment: %w", err)
	}

	if s.Events != nil {
		payload := map[string]any{
			"orderId":   created.ID.String(),
			"reference": created.Reference,
			"email":     details.Email,
			"total":     summary.Total.StringFixed(2),
			"currency":  summary.Currency,
		}
		if _, err := s.Events.Emit(ctx, events.TopicOrderCreated, created.ID.String(), payload); err != nil {
			s.Logger.Warn().Err(err).Str("order_id", created.ID.String()).Msg("order.created emit failed")
		}
	}
	if cleared, err := s.Carts.ClearOrdered(ctx, sessionID, state.Items); err != nil {
		s.Logger.Warn().Err(err).Str("session_id", sessionID).Msg("clear cart after checkout failed")
	} else if !cleared {
		s.Logger.Info().Str("session_id", sessionID).Str("order_id", created.ID.String()).Msg("cart changed during checkout, kept")
	}
	s.Logger.Info().
		Str("order_id", created.ID.String()).
		Str("reference", created.Reference).
		Str("total", summary.Total.StringFixed(2)).
		Str("provider", sess.Provider).
		Msg("checkout submitted")

	return Output{
		OrderID:   created.ID.String(),
		Reference: created.Reference,
		Status:    created.Status,
		Payment:   sess,
		Summary:   summary,
	}, nil
}

// reprice brings each line to the current catalog price and drops lines whose
// variant left the catalog. It reports whether anything changed.
func (s *Service) reprice(ctx context.Context, st *cart.Store) (bool, error) {
	if s.Carts.Catalog == nil {
		return false, nil
	}
	changed := false
	for _, it := range st.Snapshot().Items {
		current, err := s.Carts.Catalog.Variant(ctx, it.VariantID)
		switch {
		case errors.Is(err, cart.ErrVariantNotFound):
			st.RemoveItem(it.VariantID)
			changed = true
		case err != nil:
			return false, err
		case !current.UnitPrice.Equal(it.UnitPrice):
			st.SetUnitPrice(it.VariantID, current.UnitPrice)
			changed = true
		}
	}
	return changed, nil
}

func (s *Service) buildSummary(state cart.State) order.Summary {
	lines := make([]order.SummaryLine, 0, len(state.Items))
	for _, it := range state.Items {
		lines = append(lines, order.SummaryLine{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			VariantID:   it.VariantID,
			VariantName: it.VariantName,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			LineTotal:   it.LineTotal(),
		})
	}
	vatNumber := ""
	if state.VatNumber != nil {
		vatNumber = *state.VatNumber
	}
	return order.Summary{
		Lines:           lines,
		Subtotal:        state.Subtotal,
		ShippingCost:    state.ShippingCost,
		TaxRate:         state.TaxRate,
		TaxAmount:       state.TaxAmount,
		Total:           state.Total,
		Currency:        state.Currency,
		Country:         state.Country(s.Rules),
		VatNumber:       vatNumber,
		IsVatExempt:     state.IsVatExempt,
		ExemptionReason: state.ExemptionReason,
	}
}

func (s *Service) claimTTL() time.Duration {
	if s.ClaimTTL <= 0 {
		return defaultClaimTTL
	}
	return s.ClaimTTL
}

func (s *Service) createOrder(ctx context.Context, sessionID string, details order.CustomerDetails, summary order.Summary) (order.Order, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	var err error
	for attempt := 0; attempt < referenceAttempts; attempt++ {
		o := order.Order{
			ID:        uuid.New(),
			Reference: NewReference(),
			SessionID: sessionID,
			Status:    order.StatusPendingPayment,
			Customer:  details,
			Summary:   summary,
			CreatedAt: now().UTC(),
		}
		if err = s.Orders.Create(ctx, o); err == nil {
			return o, nil
		}
		if !errors.Is(err, order.ErrDuplicate) {
			return order.Order{}, fmt.Errorf("create order: %w", err)
		}
	}
	return order.Order{}, fmt.Errorf("create order: %w", err)
}

// NewReference returns a short human-facing order reference such as FS-3F9A1C07.
func NewReference() string {
	id := uuid.New()
	return fmt.Sprintf("FS-%X", id[:4])
}

func normalizeDetails(d order.CustomerDetails) order.CustomerDetails {
	d.FirstName = strings.TrimSpace(d.FirstName)
	d.LastName = strings.TrimSpace(d.LastName)
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	d.Phone = strings.TrimSpace(d.Phone)
	d.Company = strings.TrimSpace(d.Company)
	d.VatNumber = strings.TrimSpace(d.VatNumber)
	d.Address.Country = pricing.NormalizeCountry(d.Address.Country)
	d.Address.PostalCode = strings.ToUpper(strings.TrimSpace(d.Address.PostalCode))
	return d
}

func (s *Service) validator() *validator.Validate {
	if s.Validator != nil {
		return s.Validator
	}
	return defaultValidator
}

var defaultValidator = NewValidator()

func (s *Service) record(out Output, err error) {
	if obs.CheckoutTotal == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
		if obs.CheckoutOrderValue != nil {
			obs.CheckoutOrderValue.Observe(out.Summary.Total.InexactFloat64())
		}
	case errors.Is(err, ErrEmptyCart):
		result = "empty_cart"
	case errors.Is(err, ErrPricingDrift):
		result = "repriced"
	case errors.Is(err, ErrInProgress):
		result = "in_progress"
	case common.IsAppError(err):
		result = "rejected"
	default:
		result = "error"
	}
	obs.CheckoutTotal.WithLabelValues(result).Inc()
}
