package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// ConnectorLatency tracks upstream fetch latency per connector.
	ConnectorLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "marketpulse",
			Subsystem: "connector",
			Name:      "latency_seconds",
			Help:      "Latency of upstream source fetches",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 25},
		},
		[]string{"source"},
	)

	// ClassifierLatency tracks AI classifier calls per provider.
	ClassifierLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "marketpulse",
			Subsystem: "classifier",
			Name:      "latency_seconds",
			Help:      "Latency of AI classifier calls",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"provider"},
	)

	ClassifierErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketpulse",
			Subsystem: "classifier",
			Name:      "errors_total",
			Help:      "AI classifier errors by provider",
		},
		[]string{"provider"},
	)

	// RateLimited counts requests rejected by a limiter.
	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketpulse",
			Subsystem: "ratelimit",
			Name:      "rejected_total",
			Help:      "Requests rejected by rate limiting",
		},
		[]string{"scope"},
	)
)

// Register adds the collectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(ConnectorLatency, ClassifierLatency, ClassifierErrors, RateLimited)
	})
}
