package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Outbound HTTP calls made by the verifier, by target tag, method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "login_verifier_http_requests_total",
			Help: "Total number of outbound HTTP requests (by target, method and status).",
		},
		[]string{"target", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "login_verifier_http_request_duration_seconds",
			Help:    "Duration of outbound HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"target", "method"},
	)

	ScenarioResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "login_verifier_scenario_results_total",
			Help: "Scenario outcomes (result = pass | assertion | connection).",
		},
		[]string{"scenario", "result"},
	)

	// 1 when the last verification of a scenario passed, 0 otherwise.
	ScenarioUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "login_verifier_scenario_up",
			Help: "Whether the most recent verification of a scenario passed.",
		},
		[]string{"scenario"},
	)

	NATSMessageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_total",
			Help: "Total number of NATS messages published.",
		},
		[]string{"subject", "result"}, // result = "ok" | "error"
	)

	NATSMessageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nats_message_latency_seconds",
			Help:    "Time taken to publish NATS messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subject"},
	)

	CredentialsCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credentials_cache_access_total",
			Help: "Number of cache hits/misses in the credentials cache.",
		},
		[]string{"result"}, // hit | miss
	)

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "login_verifier_errors_total",
			Help: "Count of component-level errors.",
		},
		[]string{"component", "reason"},
	)

	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "login_verifier_last_run_timestamp",
			Help: "Timestamp (unix seconds) of the last completed verification run.",
		},
	)
)

// ObserveDuration records the time elapsed since start on the given histogram.
func ObserveDuration(v interface{}, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()

	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	}
}

func IncHTTPRequest(target, method, status string) {
	HTTPRequestsTotal.WithLabelValues(target, method, status).Inc()
}

func ObserveHTTPLatency(target, method string, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(target, method).Observe(d.Seconds())
}

// RecordScenario updates the outcome counter and the up gauge for one result.
// failure is "" for a pass.
func RecordScenario(scenario, failure string) {
	result := failure
	up := 0.0
	if failure == "" {
		result = "pass"
		up = 1
	}
	ScenarioResults.WithLabelValues(scenario, result).Inc()
	ScenarioUp.WithLabelValues(scenario).Set(up)
}

func IncNATSMessage(subject, result string) {
	NATSMessageCount.WithLabelValues(subject, result).Inc()
}

func IncCacheHit(result string) {
	CredentialsCacheHits.WithLabelValues(result).Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}

func SetLastRun(t time.Time) {
	LastRunTimestamp.Set(float64(t.Unix()))
}
