package resilience

import "github.com/prometheus/client_golang/prometheus"

var (
	// BreakerState reports 0=closed, 1=open, 2=half-open per target.
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "outbound_breaker_state",
			Help: "Current breaker state per outbound dependency: 0=closed,1=open,2=half-open",
		},
		[]string{"target"},
	)
	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_breaker_transition_total",
			Help: "Count of breaker state transitions",
		},
		[]string{"target", "from", "to"},
	)
	BreakerOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_breaker_open_total",
			Help: "Number of times a breaker transitioned into open state",
		},
		[]string{"target"},
	)
	// OutboundRequests counts outbound HTTP attempts by target and outcome.
	OutboundRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_requests_total",
			Help: "Outbound HTTP attempts by dependency and result",
		},
		[]string{"target", "result"},
	)
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal, OutboundRequests)
}
