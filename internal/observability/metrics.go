package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// A nil *Metrics is valid and drops every observation, so packages can be
// tested without touching the default registry.
type Metrics struct {
	TurnsRecorded   *prometheus.CounterVec
	ContextReads    *prometheus.CounterVec
	CacheErrors     *prometheus.CounterVec
	DegradedWrites  prometheus.Counter
	ReconciledTurns prometheus.Counter
	ProviderErrors  *prometheus.CounterVec
	ChatLatency     prometheus.Histogram
	ActiveGuests    prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		TurnsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_recorded_total",
			Help:      "Conversation turns recorded, by role and confirmation state.",
		}, []string{"role", "confirmed"}),
		ContextReads: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_reads_total",
			Help:      "Context window reads by serving tier.",
		}, []string{"tier"}),
		CacheErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Hot cache failures by operation.",
		}, []string{"op"}),
		DegradedWrites: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_writes_total",
			Help:      "Turns accepted while the durable store was unavailable.",
		}),
		ReconciledTurns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_turns_total",
			Help:      "Unconfirmed turns flushed to the durable store.",
		}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Assistant provider errors by operation.",
		}, []string{"op"}),
		ChatLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_latency_seconds",
			Help:      "End-to-end latency of one chat exchange.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16},
		}),
		ActiveGuests: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_guest_sessions",
			Help:      "Guest sessions currently tracked by the identity registry.",
		}),
	}
}

func (m *Metrics) IncTurnRecorded(role string, confirmed bool) {
	if m == nil {
		return
	}
	state := "true"
	if !confirmed {
		state = "false"
	}
	m.TurnsRecorded.WithLabelValues(role, state).Inc()
}

func (m *Metrics) IncContextRead(tier string) {
	if m == nil {
		return
	}
	m.ContextReads.WithLabelValues(tier).Inc()
}

func (m *Metrics) IncCacheError(op string) {
	if m == nil {
		return
	}
	m.CacheErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) IncDegradedWrite() {
	if m == nil {
		return
	}
	m.DegradedWrites.Inc()
}

func (m *Metrics) AddReconciledTurns(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReconciledTurns.Add(float64(n))
}

func (m *Metrics) IncProviderError(op string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveChatLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.ChatLatency.Observe(d.Seconds())
}

func (m *Metrics) SetActiveGuests(n int) {
	if m == nil {
		return
	}
	m.ActiveGuests.Set(float64(n))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
