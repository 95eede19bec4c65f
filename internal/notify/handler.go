package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/foodsafe/storefront/internal/common"
	"github.com/foodsafe/storefront/internal/obs"
	"github.com/foodsafe/storefront/internal/order"
)

// Handler renders and sends order e-mails for queued tasks.
type Handler struct {
	Orders order.Store
	Mail   common.EmailSender
	// SalesTo receives the internal new-order notification. Empty disables it.
	SalesTo string
	Logger  zerolog.Logger
}

// Register mounts every e-mail task type on mux.
func (h *Handler) Register(mux *asynq.ServeMux) {
	for _, typ := range []string{TypeOrderConfirmation, TypeSalesNotification, TypePaymentReceived, TypeOrderCancelled} {
		mux.HandleFunc(typ, h.ProcessTask)
	}
}

// ProcessTask implements asynq.HandlerFunc. Malformed payloads and unknown
// orders are not retried.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) (err error) {
	kind := t.Type()
	defer func() { recordDelivery(kind, err) }()

	var payload TaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", kind, err, asynq.SkipRetry)
	}
	id, err := uuid.Parse(payload.OrderID)
	if err != nil {
		return fmt.Errorf("%s: invalid order id %q: %w", kind, payload.OrderID, asynq.SkipRetry)
	}
	o, err := h.Orders.Get(ctx, id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return fmt.Errorf("%s: order %s: %v: %w", kind, id, err, asynq.SkipRetry)
		}
		return fmt.Errorf("%s: load order: %w", kind, err)
	}

	msg, ok := h.compose(kind, o)
	if !ok {
		return nil
	}
	if err := h.Mail.Send(ctx, msg); err != nil {
		h.Logger.Warn().Err(err).Str("kind", kind).Str("order_id", id.String()).Msg("email send failed")
		return fmt.Errorf("%s: send: %w", kind, err)
	}
	h.Logger.Info().Str("kind", kind).Str("order_id", id.String()).Str("reference", o.Reference).Msg("email sent")
	return nil
}

func (h *Handler) compose(kind string, o order.Order) (common.Email, bool) {
	var subject, htmlBody, text string
	to := o.Customer.Email
	switch kind {
	case TypeOrderConfirmation:
		subject, htmlBody, text = renderConfirmation(o)
	case TypeSalesNotification:
		if h.SalesTo == "" {
			return common.Email{}, false
		}
		to = h.SalesTo
		subject, htmlBody, text = renderSales(o)
	case TypePaymentReceived:
		subject, htmlBody, text = renderPaymentReceived(o)
	case TypeOrderCancelled:
		subject, htmlBody, text = renderCancelled(o)
	default:
		return common.Email{}, false
	}
	if to == "" {
		return common.Email{}, false
	}
	return common.Email{To: to, Subject: subject, HTML: htmlBody, Text: text}, true
}

func recordDelivery(kind string, err error) {
	if obs.EmailDeliveriesTotal == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, asynq.SkipRetry):
		result = "dropped"
	default:
		result = "error"
	}
	obs.EmailDeliveriesTotal.WithLabelValues(kind, result).Inc()
}
