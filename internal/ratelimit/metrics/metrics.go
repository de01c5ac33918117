package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Checked     *prometheus.CounterVec
	StoreErrors prometheus.Counter
}

// New registers the rate limit metrics with reg, or the default registerer
// when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Checked: f.NewCounterVec(prometheus.CounterOpts{
			Name: "civicdesk_ratelimit_checks_total",
			Help: "Rate limit checks by scope and decision",
		}, []string{"scope", "decision"}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "civicdesk_ratelimit_store_errors_total",
			Help: "Rate limit checks that failed open because the store errored",
		}),
	}
}

func (m *Metrics) IncrementChecked(scope string, allowed bool) {
	if m == nil {
		return
	}
	decision := "allowed"
	if !allowed {
		decision = "denied"
	}
	m.Checked.WithLabelValues(scope, decision).Inc()
}

func (m *Metrics) IncrementStoreErrors() {
	if m == nil {
		return
	}
	m.StoreErrors.Inc()
}
