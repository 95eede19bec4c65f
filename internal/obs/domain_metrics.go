package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CartMutationsTotal counts cart operations by op and result.
	CartMutationsTotal *prometheus.CounterVec
	// FXFallbackTotal counts conversions that fell back to the canonical price.
	FXFallbackTotal *prometheus.CounterVec
	// FXRefreshTotal counts exchange rate refresh outcomes.
	FXRefreshTotal *prometheus.CounterVec
	// VATValidationsTotal counts VAT number validations by result.
	VATValidationsTotal *prometheus.CounterVec
	// CheckoutTotal counts checkout submissions by result.
	CheckoutTotal *prometheus.CounterVec
	// PaymentSessionTotal counts hosted payment session creations.
	PaymentSessionTotal *prometheus.CounterVec
	// EmailDeliveriesTotal counts order e-mails by kind and result.
	EmailDeliveriesTotal *prometheus.CounterVec
	// CheckoutOrderValue records order totals in the canonical currency.
	CheckoutOrderValue prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers storefront collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CartMutationsTotal = newCounterVec(reg, namespace, "cart_mutations_total", "Count of cart mutations by operation and result.", "op", "result")
		FXFallbackTotal = newCounterVec(reg, namespace, "fx_fallback_total", "Conversions served in the canonical currency because a rate was missing.", "currency")
		FXRefreshTotal = newCounterVec(reg, namespace, "fx_refresh_total", "Exchange rate refresh outcomes.", "result")
		VATValidationsTotal = newCounterVec(reg, namespace, "vat_validations_total", "VAT number validations by result.", "result")
		CheckoutTotal = newCounterVec(reg, namespace, "checkout_total", "Checkout submissions by result.", "result")
		PaymentSessionTotal = newCounterVec(reg, namespace, "payment_session_total", "Payment session creations by provider and result.", "provider", "result")
		EmailDeliveriesTotal = newCounterVec(reg, namespace, "email_deliveries_total", "Order e-mail deliveries by kind and result.", "kind", "result")

		CheckoutOrderValue = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_order_value",
			Help:      "Order totals in the canonical currency.",
			Buckets:   []float64{10, 25, 50, 75, 100, 200, 500, 1000},
		}))
	})
}

func newCounterVec(reg prometheus.Registerer, namespace, name, help string, labels ...string) *prometheus.CounterVec {
	return register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels))
}
