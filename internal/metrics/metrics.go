package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "checkout"

// Metrics groups the collectors shared by the token manager, gateway client and
// order workflow. A nil *Metrics is valid and records nothing.
type Metrics struct {
	tokenLookups    *prometheus.CounterVec
	tokenRefreshes  *prometheus.CounterVec
	gatewayRequests *prometheus.HistogramVec
	orders          *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tokenLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_lookups_total",
			Help:      "Gateway token lookups by cache result.",
		}, []string{"result"}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Gateway token refresh attempts by outcome.",
		}, []string{"outcome"}),
		gatewayRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Latency of outbound gateway calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint", "outcome"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Order submissions by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.tokenLookups, m.tokenRefreshes, m.gatewayRequests, m.orders)
	return m
}

func (m *Metrics) TokenLookup(result string) {
	if m == nil {
		return
	}
	m.tokenLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) TokenRefresh(outcome string) {
	if m == nil {
		return
	}
	m.tokenRefreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) GatewayRequest(endpoint, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(endpoint, outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) Order(outcome string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(outcome).Inc()
}
