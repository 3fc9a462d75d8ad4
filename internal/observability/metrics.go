package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sme_plug"

// Metrics holds the Prometheus collectors used across the pipeline.
type Metrics struct {
	queries            *prometheus.CounterVec
	stepDuration       *prometheus.HistogramVec
	guardrailDecisions *prometheus.CounterVec
	hallucination      prometheus.Histogram
	retrievalCache     *prometheus.CounterVec
	llmRequests        *prometheus.CounterVec
	llmLatency         *prometheus.HistogramVec
	auditEntries       prometheus.Counter
	auditPersist       *prometheus.CounterVec
	personaSwitches    prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Queries processed, by persona, mode and outcome",
		}, []string{"persona", "mode", "outcome"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "step_duration_seconds",
			Help:      "Duration of each pipeline step",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"step", "status"}),
		guardrailDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guardrail",
			Name:      "decisions_total",
			Help:      "Guardrail verdicts by layer and decision",
		}, []string{"layer", "decision"}),
		hallucination: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "guardrail",
			Name:      "hallucination_score",
			Help:      "Distribution of hallucination scores",
			Buckets:   []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.8, 1},
		}),
		retrievalCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "cache_events_total",
			Help:      "Retriever cache hits, loads and invalidations",
		}, []string{"event"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Completion requests by provider and status",
		}, []string{"provider", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "latency_seconds",
			Help:      "Completion latency by provider",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"provider"}),
		auditEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "entries_total",
			Help:      "Audit entries appended",
		}),
		auditPersist: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "persist_total",
			Help:      "Audit entries mirrored to the database, by status",
		}, []string{"status"}),
		personaSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persona",
			Name:      "switches_total",
			Help:      "Active persona switches",
		}),
	}

	collectors := []prometheus.Collector{
		m.queries, m.stepDuration, m.guardrailDecisions, m.hallucination,
		m.retrievalCache, m.llmRequests, m.llmLatency, m.auditEntries,
		m.auditPersist, m.personaSwitches,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordQuery counts a finished query. outcome is the final input decision or "error".
func (m *Metrics) RecordQuery(persona, mode, outcome string) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(persona, mode, outcome).Inc()
}

// ObserveStep records the duration of a named pipeline step.
func (m *Metrics) ObserveStep(step, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step, status).Observe(d.Seconds())
}

// RecordGuardrail counts a guardrail verdict.
func (m *Metrics) RecordGuardrail(layer, decision string) {
	if m == nil {
		return
	}
	m.guardrailDecisions.WithLabelValues(layer, decision).Inc()
}

// ObserveHallucination records a hallucination score.
func (m *Metrics) ObserveHallucination(score float64) {
	if m == nil {
		return
	}
	m.hallucination.Observe(score)
}

// RecordCacheEvent counts a retriever cache event (hit, load, invalidate).
func (m *Metrics) RecordCacheEvent(event string) {
	if m == nil {
		return
	}
	m.retrievalCache.WithLabelValues(event).Inc()
}

// RecordLLMRequest counts a completion call and its latency.
func (m *Metrics) RecordLLMRequest(provider, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(provider, status).Inc()
	m.llmLatency.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordAuditEntry counts an appended audit entry.
func (m *Metrics) RecordAuditEntry() {
	if m == nil {
		return
	}
	m.auditEntries.Inc()
}

// RecordAuditPersist counts a database mirror attempt.
func (m *Metrics) RecordAuditPersist(status string) {
	if m == nil {
		return
	}
	m.auditPersist.WithLabelValues(status).Inc()
}

// RecordPersonaSwitch counts an active persona switch.
func (m *Metrics) RecordPersonaSwitch() {
	if m == nil {
		return
	}
	m.personaSwitches.Inc()
}
