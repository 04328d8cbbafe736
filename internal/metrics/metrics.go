// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dailyquestion"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	progressionRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "progression",
			Name:      "runs_total",
			Help:      "Total number of daily progression runs.",
		},
		[]string{"trigger"},
	)

	progressionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "progression",
			Name:      "run_duration_seconds",
			Help:      "Duration of daily progression runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
	)

	familyOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "progression",
			Name:      "family_outcomes_total",
			Help:      "Per-family outcomes of progression runs.",
		},
		[]string{"outcome"},
	)

	effectDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "deliveries_total",
			Help:      "Outbox delivery attempts by effect kind and result.",
		},
		[]string{"kind", "result"},
	)

	outboxEffects = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "effects",
			Help:      "Outbox effects by status, sampled on each relay tick.",
		},
		[]string{"status"},
	)

	answersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "answers",
			Name:      "writes_total",
			Help:      "Answer writes by operation.",
		},
		[]string{"op"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequests,
		httpDuration,
		progressionRuns,
		progressionDuration,
		familyOutcomes,
		effectDeliveries,
		outboxEffects,
		answersSubmitted,
	)
}

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest observes one served HTTP request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRun observes one completed progression run.
func RecordRun(trigger string, duration time.Duration) {
	progressionRuns.WithLabelValues(trigger).Inc()
	progressionDuration.Observe(duration.Seconds())
}

// RecordFamilyOutcome counts one family outcome (advanced, penalized,
// exhausted, skipped, failed).
func RecordFamilyOutcome(outcome string) {
	familyOutcomes.WithLabelValues(outcome).Inc()
}

// RecordDelivery counts one outbox delivery attempt.
func RecordDelivery(kind string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	effectDeliveries.WithLabelValues(kind, result).Inc()
}

// SetOutboxBacklog replaces the per-status effect gauge.
func SetOutboxBacklog(counts map[string]int) {
	outboxEffects.Reset()
	for status, n := range counts {
		outboxEffects.WithLabelValues(status).Set(float64(n))
	}
}

// RecordAnswerWrite counts an answer create or update.
func RecordAnswerWrite(op string) {
	answersSubmitted.WithLabelValues(op).Inc()
}
