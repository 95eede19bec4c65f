package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/foodsafe/storefront/internal/common"
	"github.com/foodsafe/storefront/internal/events"
	"github.com/foodsafe/storefront/internal/order"
)

const maxWebhookBody = 64 << 10

// Webhook handles payment provider callbacks: signature verification, replay
// protection and order settlement.
type Webhook struct {
	Orders    order.Store
	Providers map[string]Provider
	Replay    *redis.Client
	ReplayTTL time.Duration
	Events    *events.Bus
	Logger    zerolog.Logger
}

// Handle processes a callback for the provider named in the {provider} URL param.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Orders == nil || h.Providers == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	providerKey := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	provider, ok := h.Providers[providerKey]
	if !ok {
		common.JSONError(w, http.StatusNotFound, "PROVIDER_NOT_SUPPORTED", "unknown provider", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	result, err := provider.VerifyWebhook(r, body)
	if err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
			return
		}
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", err.Error(), nil)
		return
	}
	ctx := r.Context()
	// A claimed body is released again when settlement fails server side, so
	// the provider's retry of the same callback is processed instead of
	// bouncing off the replay guard.
	unclaim := func() {}
	if h.Replay != nil && h.ReplayTTL > 0 {
		sum := sha256.Sum256(body)
		key := fmt.Sprintf("wh:%s:%s", providerKey, hex.EncodeToString(sum[:]))
		fresh, err := h.Replay.SetNX(ctx, key, "1", h.ReplayTTL).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", "replay store unavailable", nil)
			return
		}
		if !fresh {
			common.JSONError(w, http.StatusConflict, "REPLAY", "duplicate webhook", nil)
			return
		}
		unclaim = func() {
			if err := h.Replay.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
				h.Logger.Warn().Err(err).Str("provider", providerKey).Msg("release webhook replay key")
			}
		}
	}
	orderID, err := uuid.Parse(result.OrderID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_ORDER_ID", "invalid order identifier", nil)
		return
	}
	current, err := h.Orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
			return
		}
		h.Logger.Error().Err(err).Str("order_id", result.OrderID).Msg("webhook order lookup failed")
		unclaim()
		common.JSONError(w, http.StatusInternalServerError, "ORDER_FETCH_ERROR", "order lookup failed", nil)
		return
	}
	if !result.Amount.IsZero() && !result.Amount.Equal(current.Summary.Total) {
		common.JSONError(w, http.StatusBadRequest, "AMOUNT_MISMATCH", "provider amount mismatch", nil)
		return
	}

	var target, topic string
	switch result.Status {
	case StatusPaid:
		target, topic = order.StatusPaid, events.TopicOrderPaid
	case StatusFailed:
		target, topic = order.StatusCancelled, events.TopicOrderCancelled
	default:
		w.WriteHeader(http.StatusNoContent)
		return
	}
	changed, err := h.Orders.UpdateStatus(ctx, orderID, target)
	if err != nil {
		if errors.Is(err, order.ErrInvalidTransition) {
			common.JSONError(w, http.StatusConflict, "ORDER_STATE_CONFLICT", "order already settled", nil)
			return
		}
		h.Logger.Error().Err(err).Str("order_id", result.OrderID).Msg("webhook order update failed")
		unclaim()
		common.JSONError(w, http.StatusInternalServerError, "ORDER_UPDATE_ERROR", "order update failed", nil)
		return
	}
	h.Logger.Info().
		Str("provider", providerKey).
		Str("order_id", result.OrderID).
		Str("status", target).
		Bool("changed", changed).
		Msg("payment webhook settled order")

	if changed && h.Events != nil {
		payload := map[string]any{
			"orderId":   current.ID.String(),
			"reference": current.Reference,
			"status":    target,
			"email":     current.Customer.Email,
		}
		if _, err := h.Events.Emit(ctx, topic, current.ID.String(), payload); err != nil {
			h.Logger.Warn().Err(err).Str("topic", topic).Msg("event emit failed")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
