package checkout_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/foodsafe/storefront/internal/cart"
	"github.com/foodsafe/storefront/internal/checkout"
	"github.com/foodsafe/storefront/internal/common"
	"github.com/foodsafe/storefront/internal/events"
	"github.com/foodsafe/storefront/internal/lock"
	"github.com/foodsafe/storefront/internal/order"
	"github.com/foodsafe/storefront/internal/payment"
	"github.com/foodsafe/storefront/internal/pricing"
)

type mapCatalog map[string]cart.LineItem

func (m mapCatalog) Variant(_ context.Context, id string) (cart.LineItem, error) {
	li, ok := m[id]
	if !ok {
		return cart.LineItem{}, fmt.Errorf("catalog: %s: %w", id, cart.ErrVariantNotFound)
	}
	return li, nil
}

type failingPayments struct{}

func (failingPayments) CreateSession(context.Context, payment.SessionRequest) (payment.Session, error) {
	return payment.Session{}, errors.New("provider down")
}

// hookPayments runs during while the payment session is being opened, i.e.
// after the order exists but before the cart is cleared.
type hookPayments struct {
	inner  checkout.PaymentOpener
	during func()
}

func (h hookPayments) CreateSession(ctx context.Context, req payment.SessionRequest) (payment.Session, error) {
	h.during()
	return h.inner.CreateSession(ctx, req)
}

type fixture struct {
	svc     *checkout.Service
	carts   *cart.Service
	catalog mapCatalog
	orders  *order.MemoryStore
	events  []events.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := lock.Locker{R: client, Prefix: "lock:", RetryBackoff: time.Millisecond}
	fx := &fixture{orders: order.NewMemoryStore()}
	fx.catalog = mapCatalog{"v15": {
		ProductID: "p1", ProductName: "Day Dot Labels", VariantID: "v15", VariantName: "Roll of 500",
		UnitPrice: decimal.RequireFromString("15.00"),
	}}
	fx.carts = &cart.Service{
		Repo:    cart.RedisRepository{Client: client, TTL: time.Hour},
		Lock:    locker,
		Catalog: fx.catalog,
		Rules:   pricing.DefaultRules(),
	}
	bus := &events.Bus{Notifiers: []events.Notifier{events.NotifierFunc(func(_ context.Context, ev events.Event) error {
		fx.events = append(fx.events, ev)
		return nil
	})}}
	fx.svc = &checkout.Service{
		Carts:    fx.carts,
		Orders:   fx.orders,
		Payments: &payment.Service{Provider: payment.Sandbox{Secret: "s"}},
		Events:   bus,
		Rules:    pricing.DefaultRules(),
		InFlight: locker,
	}
	return fx
}

func (fx *fixture) fill(t *testing.T, sid string, qty int) {
	t.Helper()
	ctx := context.Background()
	_, err := fx.carts.AddItem(ctx, sid, "v15")
	require.NoError(t, err)
	_, err = fx.carts.UpdateQuantity(ctx, sid, "v15", qty)
	require.NoError(t, err)
}

func details(country string) order.CustomerDetails {
	return order.CustomerDetails{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     " Ada@Example.com ",
		Address: order.Address{
			Line1:      "1 Kitchen Lane",
			City:       "Leeds",
			PostalCode: "ls1 1aa",
			Country:    country,
		},
	}
}

func TestSubmitUKOrder(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.fill(t, "s1", 3)

	out, err := fx.svc.Submit(ctx, "s1", details("gb"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out.Reference, "FS-"))
	require.Equal(t, order.StatusPendingPayment, out.Status)
	require.Equal(t, "sandbox", out.Payment.Provider)
	require.NotEmpty(t, out.Payment.Token)
	require.True(t, out.Summary.Total.Equal(decimal.RequireFromString("61.19")))
	require.Equal(t, "GB", out.Summary.Country)
	require.Len(t, out.Summary.Lines, 1)

	stored, err := fx.orders.Get(ctx, uuid.MustParse(out.OrderID))
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", stored.Customer.Email)
	require.Equal(t, "LS1 1AA", stored.Customer.Address.PostalCode)
	require.NotNil(t, stored.Payment)
	require.Equal(t, out.Payment.Token, stored.Payment.Token)

	require.Len(t, fx.events, 1)
	require.Equal(t, events.TopicOrderCreated, fx.events[0].Topic)

	st, err := fx.carts.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, st.IsEmpty())
}

func TestSubmitReverseChargeWithVatNumber(t *testing.T) {
	fx := newFixture(t)
	fx.fill(t, "s1", 3)
	d := details("DE")
	d.VatNumber = "de 123 456 789"

	out, err := fx.svc.Submit(context.Background(), "s1", d)
	require.NoError(t, err)
	require.True(t, out.Summary.IsVatExempt)
	require.Equal(t, pricing.ReasonReverseCharge, out.Summary.ExemptionReason)
	require.Equal(t, "DE123456789", out.Summary.VatNumber)
	require.True(t, out.Summary.ShippingCost.Equal(decimal.RequireFromString("15.99")))
	require.True(t, out.Summary.Total.Equal(decimal.RequireFromString("60.99")))
}

func TestSubmitEmptyCart(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.Submit(context.Background(), "s1", details("GB"))
	require.ErrorIs(t, err, checkout.ErrEmptyCart)
	require.Zero(t, fx.orders.Len())
}

func TestSubmitValidationErrors(t *testing.T) {
	fx := newFixture(t)
	fx.fill(t, "s1", 1)
	d := details("GB")
	d.Email = "not-an-email"
	d.Address.City = ""

	_, err := fx.svc.Submit(context.Background(), "s1", d)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusUnprocessableEntity, appErr.HTTPStatus)
	fields, ok := appErr.Details.(checkout.FieldErrors)
	require.True(t, ok)
	require.Contains(t, fields, "email")
	require.Contains(t, fields, "address.city")
	require.Zero(t, fx.orders.Len())
}

func TestSubmitInvalidVatNumberLeavesCartUntouched(t *testing.T) {
	fx := newFixture(t)
	fx.fill(t, "s1", 1)
	d := details("FR")
	d.VatNumber = "FR12"

	_, err := fx.svc.Submit(context.Background(), "s1", d)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "INVALID_VAT_NUMBER", appErr.Code)

	st, err := fx.carts.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, "GB", *st.CustomerCountry)
	require.Nil(t, st.VatNumber)
}

func TestSubmitPaymentFailureCancelsOrderAndKeepsCart(t *testing.T) {
	fx := newFixture(t)
	fx.svc.Payments = failingPayments{}
	fx.fill(t, "s1", 2)

	_, err := fx.svc.Submit(context.Background(), "s1", details("GB"))
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "PAYMENT_UNAVAILABLE", appErr.Code)
	require.Equal(t, 1, fx.orders.Len())
	require.Empty(t, fx.events)

	st, err := fx.carts.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, 2, st.ItemCount())
}

func TestSubmitKeepsCartChangedDuringPayment(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.fill(t, "s1", 1)
	fx.svc.Payments = hookPayments{inner: fx.svc.Payments, during: func() {
		_, err := fx.carts.UpdateQuantity(ctx, "s1", "v15", 5)
		require.NoError(t, err)
	}}

	out, err := fx.svc.Submit(ctx, "s1", details("GB"))
	require.NoError(t, err)
	require.Equal(t, 1, out.Summary.Lines[0].Quantity)

	st, err := fx.carts.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 5, st.ItemCount(), "a change made after the order snapshot must survive")
}

func TestSubmitRejectsConcurrentSubmission(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.fill(t, "s1", 2)
	var nestedErr error
	fx.svc.Payments = hookPayments{inner: fx.svc.Payments, during: func() {
		_, nestedErr = fx.svc.Submit(ctx, "s1", details("GB"))
	}}

	_, err := fx.svc.Submit(ctx, "s1", details("GB"))
	require.NoError(t, err)
	require.ErrorIs(t, nestedErr, checkout.ErrInProgress)
	require.Equal(t, 1, fx.orders.Len())

	// the claim is released once the first submission returns
	_, err = fx.svc.Submit(ctx, "s1", details("GB"))
	require.ErrorIs(t, err, checkout.ErrEmptyCart)
}

func TestSubmitRepricesChangedCatalogPrice(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.fill(t, "s1", 3)
	v := fx.catalog["v15"]
	v.UnitPrice = decimal.RequireFromString("20.00")
	fx.catalog["v15"] = v

	_, err := fx.svc.Submit(ctx, "s1", details("GB"))
	require.ErrorIs(t, err, checkout.ErrPricingDrift)
	require.Zero(t, fx.orders.Len())

	st, err := fx.carts.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, st.Items[0].UnitPrice.Equal(decimal.RequireFromString("20.00")))
	require.True(t, st.Subtotal.Equal(decimal.RequireFromString("60.00")))

	out, err := fx.svc.Submit(ctx, "s1", details("GB"))
	require.NoError(t, err)
	require.True(t, out.Summary.Subtotal.Equal(decimal.RequireFromString("60.00")))
}

func TestSubmitDropsDiscontinuedVariant(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.fill(t, "s1", 1)
	delete(fx.catalog, "v15")

	_, err := fx.svc.Submit(ctx, "s1", details("GB"))
	require.ErrorIs(t, err, checkout.ErrPricingDrift)
	_, err = fx.svc.Submit(ctx, "s1", details("GB"))
	require.ErrorIs(t, err, checkout.ErrEmptyCart)
}

func TestNewReference(t *testing.T) {
	ref := checkout.NewReference()
	require.Len(t, ref, len("FS-")+8)
	require.Equal(t, strings.ToUpper(ref), ref)
	require.NotEqual(t, ref, checkout.NewReference())
}

func TestCheckoutHTTP(t *testing.T) {
	fx := newFixture(t)
	h := &checkout.Handler{Svc: fx.svc}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(common.WithSessionID(r.Context(), "sess")))
		})
	})
	r.Post("/checkout", h.Checkout)

	body, err := json.Marshal(details("GB"))
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(string(body))))
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "CART_EMPTY")

	fx.fill(t, "sess", 1)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(string(body))))
	require.Equal(t, http.StatusCreated, rr.Code)

	var resp struct {
		Data struct {
			OrderID string `json:"orderId"`
			Payment struct {
				Provider string `json:"provider"`
			} `json:"payment"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.OrderID)
	require.Equal(t, "sandbox", resp.Data.Payment.Provider)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{"unknown":1}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	fx.fill(t, "sess", 1)
	v := fx.catalog["v15"]
	v.UnitPrice = decimal.RequireFromString("16.50")
	fx.catalog["v15"] = v
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(string(body))))
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "PRICING_CHANGED")
}
