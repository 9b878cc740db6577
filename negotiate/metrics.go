package negotiate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "negotiate"

type metrics struct {
	steps    *prometheus.CounterVec
	renewals prometheus.Counter
	swept    prometheus.Counter
}

// newMetrics creates the collectors and registers them with reg when it is
// not nil. pending reports the number of pending handshakes.
func newMetrics(reg prometheus.Registerer, pending func() float64) *metrics {
	f := promauto.With(reg)
	m := &metrics{
		steps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Negotiate requests by outcome and mechanism.",
		}, []string{"outcome", "mechanism"}),
		renewals: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "credential_renewals_total",
			Help:      "Server credentials replaced after expiry.",
		}),
		swept: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "contexts_swept_total",
			Help:      "Idle pending security contexts released by the sweep.",
		}),
	}
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "pending_contexts",
		Help:      "Handshakes waiting for the client's next leg.",
	}, pending)
	return m
}
