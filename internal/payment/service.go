package payment

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/foodsafe/storefront/internal/obs"
)

// Service wraps a Provider with tracing and outcome metrics.
type Service struct {
	Provider   Provider
	SuccessURL string
	CancelURL  string
}

// CreateSession opens a payment session, filling redirect URLs from the service
// defaults when the request leaves them empty.
func (s *Service) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	if s == nil || s.Provider == nil {
		return Session{}, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.CreateSession")
	defer span.End()

	start := time.Now()
	providerName := s.Provider.Name()
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("payment.provider", providerName),
			attribute.String("order.reference", req.Reference),
			attribute.Float64("payment.session.duration_ms", obs.DurationMillis(time.Since(start))),
			attribute.String("payment.session.result", result),
		)
		if obs.PaymentSessionTotal != nil {
			obs.PaymentSessionTotal.WithLabelValues(providerName, result).Inc()
		}
	}()

	if req.SuccessURL == "" {
		req.SuccessURL = s.SuccessURL
	}
	if req.CancelURL == "" {
		req.CancelURL = s.CancelURL
	}
	sess, err := s.Provider.CreateSession(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Session{}, err
	}
	result = "ok"
	return sess, nil
}
