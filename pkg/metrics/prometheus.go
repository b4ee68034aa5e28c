package metrics

import (
	"time"

	"MarketPulse/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	refreshTotal    *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	refreshSkipped  *prometheus.CounterVec
	lastSwap        *prometheus.GaugeVec
	dropped         *prometheus.CounterVec
	sourceErrors    *prometheus.CounterVec
	analysisTotal   *prometheus.CounterVec
	analysisLatency prometheus.Histogram
	transitions     *prometheus.CounterVec
}

// New creates a recorder registered on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		refreshTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_refresh_total",
				Help: "Refresh cycles by family and outcome",
			},
			[]string{"family", "outcome"},
		),
		refreshDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketpulse_refresh_duration_seconds",
				Help:    "Duration of refresh cycles",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"family"},
		),
		refreshSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_refresh_skipped_total",
				Help: "Ticks skipped because the previous cycle was still running",
			},
			[]string{"family"},
		),
		lastSwap: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketpulse_snapshot_last_swap_timestamp_seconds",
				Help: "Unix time of the last successful snapshot swap",
			},
			[]string{"family"},
		),
		dropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_records_dropped_total",
				Help: "Raw records dropped by the normalizer",
			},
			[]string{"source", "reason"},
		),
		sourceErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_source_errors_total",
				Help: "Connector failures by kind",
			},
			[]string{"source", "kind"},
		),
		analysisTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_surprise_analysis_total",
				Help: "Surprise analyses by outcome",
			},
			[]string{"outcome"},
		),
		analysisLatency: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "marketpulse_surprise_analysis_duration_seconds",
				Help:    "Duration of upstream AI classification calls",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30},
			},
		),
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_analysis_transitions_total",
				Help: "Analysis state transitions",
			},
			[]string{"from", "to"},
		),
	}
}

// RecordRefresh records one completed refresh cycle.
func (r *Recorder) RecordRefresh(family, outcome string, seconds float64) {
	r.refreshTotal.WithLabelValues(family, outcome).Inc()
	r.refreshDuration.WithLabelValues(family).Observe(seconds)
}

func (r *Recorder) RecordRefreshSkipped(family string) {
	r.refreshSkipped.WithLabelValues(family).Inc()
}

func (r *Recorder) RecordSnapshotSwap(family string, at time.Time) {
	r.lastSwap.WithLabelValues(family).Set(float64(at.Unix()))
}

func (r *Recorder) RecordDropped(source, reason string) {
	r.dropped.WithLabelValues(source, reason).Inc()
}

func (r *Recorder) RecordSourceError(source string, kind models.ErrorKind) {
	r.sourceErrors.WithLabelValues(source, string(kind)).Inc()
}

func (r *Recorder) RecordAnalysis(outcome string, seconds float64) {
	r.analysisTotal.WithLabelValues(outcome).Inc()
	if seconds > 0 {
		r.analysisLatency.Observe(seconds)
	}
}

func (r *Recorder) RecordAnalysisTransition(from, to models.AnalysisState) {
	r.transitions.WithLabelValues(string(from), string(to)).Inc()
}
