// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "tip_settlement"

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Settlement metrics
	TipsSettled              *prometheus.CounterVec
	TipsRejected             *prometheus.CounterVec
	DuplicateTips            *prometheus.CounterVec
	SplitInvariantViolations prometheus.Counter
	SettlementLatency        *prometheus.HistogramVec
	AnalyticsPublishErrors   prometheus.Counter

	// Fee registry metrics
	FeeUpdates *prometheus.CounterVec

	// Ingestion metrics
	ChainEventsDecoded   *prometheus.CounterVec
	ChainEventErrors     *prometheus.CounterVec
	ChainSplitMismatches prometheus.Counter
	HighestSlotSeen      prometheus.Gauge
	RPCCallLatency       *prometheus.HistogramVec

	// Reconciliation metrics
	ReconcileDiscrepancies *prometheus.GaugeVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Health metrics
	LastSuccessfulSettlement prometheus.Gauge
	LastSuccessfulIngestion  prometheus.Gauge
	LastReconcile            prometheus.Gauge

	highestSlot atomic.Uint64
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg registers with prometheus.DefaultRegisterer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Settlement metrics
		TipsSettled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tips_settled_total",
			Help:      "Total number of tips settled by network",
		}, []string{"network"}),
		TipsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tips_rejected_total",
			Help:      "Total number of tips rejected by network and reason",
		}, []string{"network", "reason"}),
		DuplicateTips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "duplicate_tips_total",
			Help:      "Total number of repeated submissions of an already terminal tip",
		}, []string{"network"}),
		SplitInvariantViolations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "split_invariant_violations_total",
			Help:      "Splits whose legs did not sum to the tip amount. Any increase needs an operator.",
		}),
		SettlementLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "settlement_duration_seconds",
			Help:      "Time to validate and commit a settlement",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"network"}),
		AnalyticsPublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "publish_errors_total",
			Help:      "Settlement events that could not be written to the analytics store",
		}),

		// Fee registry metrics
		FeeUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fees",
			Name:      "updates_total",
			Help:      "Custom fee update attempts by result",
		}, []string{"result"}),

		// Ingestion metrics
		ChainEventsDecoded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_decoded_total",
			Help:      "Program events decoded by event name",
		}, []string{"event"}),
		ChainEventErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "event_errors_total",
			Help:      "Ingestion errors by stage",
		}, []string{"stage"}),
		ChainSplitMismatches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "split_mismatches_total",
			Help:      "Tips whose on-chain split differs from the computed split",
		}),
		HighestSlotSeen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot processed",
		}),
		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "rpc_call_duration_seconds",
			Help:      "Solana RPC call latency by method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Reconciliation metrics
		ReconcileDiscrepancies: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "discrepancies",
			Help:      "Addresses whose ledger balance differs from analytics totals",
		}, []string{"network"}),

		// HTTP metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		// Health metrics
		LastSuccessfulSettlement: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_settlement_timestamp",
			Help:      "Unix timestamp of last successful settlement",
		}),
		LastSuccessfulIngestion: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingestion_timestamp",
			Help:      "Unix timestamp of last ingested chain event",
		}),
		LastReconcile: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_reconcile_timestamp",
			Help:      "Unix timestamp of last reconciliation run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordSettled records a committed settlement.
func (m *Metrics) RecordSettled(network string, d time.Duration) {
	if m == nil {
		return
	}
	m.TipsSettled.WithLabelValues(network).Inc()
	m.SettlementLatency.WithLabelValues(network).Observe(d.Seconds())
	m.LastSuccessfulSettlement.SetToCurrentTime()
}

// RecordRejected records a rejected tip.
func (m *Metrics) RecordRejected(network, reason string) {
	if m == nil {
		return
	}
	m.TipsRejected.WithLabelValues(network, reason).Inc()
}

// RecordDuplicate records a repeated submission of a terminal tip.
func (m *Metrics) RecordDuplicate(network string) {
	if m == nil {
		return
	}
	m.DuplicateTips.WithLabelValues(network).Inc()
}

// RecordSplitInvariantViolation records a split whose legs do not sum to the amount.
func (m *Metrics) RecordSplitInvariantViolation() {
	if m == nil {
		return
	}
	m.SplitInvariantViolations.Inc()
}

// RecordAnalyticsError records a failed analytics write.
func (m *Metrics) RecordAnalyticsError() {
	if m == nil {
		return
	}
	m.AnalyticsPublishErrors.Inc()
}

// RecordFeeUpdate records a fee update attempt.
func (m *Metrics) RecordFeeUpdate(result string) {
	if m == nil {
		return
	}
	m.FeeUpdates.WithLabelValues(result).Inc()
}

// RecordChainEvent records a decoded program event.
func (m *Metrics) RecordChainEvent(event string, slot uint64) {
	if m == nil {
		return
	}
	m.ChainEventsDecoded.WithLabelValues(event).Inc()
	m.LastSuccessfulIngestion.SetToCurrentTime()
	for {
		cur := m.highestSlot.Load()
		if slot <= cur {
			break
		}
		if m.highestSlot.CompareAndSwap(cur, slot) {
			m.HighestSlotSeen.Set(float64(slot))
			break
		}
	}
}

// RecordChainError records an ingestion failure at a stage.
func (m *Metrics) RecordChainError(stage string) {
	if m == nil {
		return
	}
	m.ChainEventErrors.WithLabelValues(stage).Inc()
}

// RecordSplitMismatch records a chain-reported fee that differs from the computed split.
func (m *Metrics) RecordSplitMismatch() {
	if m == nil {
		return
	}
	m.ChainSplitMismatches.Inc()
}

// RecordRPCLatency records RPC call latency.
func (m *Metrics) RecordRPCLatency(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.RPCCallLatency.WithLabelValues(method).Observe(d.Seconds())
}

// RecordReconcile records the outcome of a reconciliation run.
func (m *Metrics) RecordReconcile(network string, discrepancies int) {
	if m == nil {
		return
	}
	m.ReconcileDiscrepancies.WithLabelValues(network).Set(float64(discrepancies))
	m.LastReconcile.SetToCurrentTime()
}

// RecordHTTP records a served request.
func (m *Metrics) RecordHTTP(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}
