// Package metrics provides Prometheus instrumentation for the lease analyzer.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lease_analyzer"

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AnalysesTotal counts analyses by terminal outcome.
	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Total analyses by outcome (structured, fallback, denied, extraction_failed, llm_failed).",
		},
		[]string{"outcome"},
	)

	// AnalysisDuration observes end-to-end analysis latency.
	AnalysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "analysis_duration_seconds",
		Help:      "Analysis duration in seconds from authorization to response.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})

	// QuotaDenialsTotal counts authorization denials by reason and tier.
	QuotaDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_denials_total",
			Help:      "Total authorization denials by reason and tier.",
		},
		[]string{"reason", "tier"},
	)

	// LLMCallsTotal counts provider calls by credential index and result.
	LLMCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Total LLM provider calls by credential index and result category.",
		},
		[]string{"credential", "result"},
	)

	// JSONRepairPassesTotal counts how many passes structured generation needed.
	JSONRepairPassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "json_repair_passes_total",
			Help:      "Structured generations by number of passes used.",
		},
		[]string{"passes"},
	)

	// ExtractionsTotal counts document extractions by method.
	ExtractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Document extractions by method (text_layer, raster, ocr, failed).",
		},
		[]string{"method"},
	)

	// SideEffectFailuresTotal counts best-effort bookkeeping failures.
	SideEffectFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effect_failures_total",
			Help:      "Best-effort failures by kind (accounting, persist, publish).",
		},
		[]string{"kind"},
	)

	// PaymentEventsTotal counts payment webhook deliveries by provider and result.
	PaymentEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_events_total",
			Help:      "Payment webhook events by provider and result.",
		},
		[]string{"provider", "result"},
	)

	// RateLimitedTotal counts requests rejected by the per-user limiter.
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the per-user rate limiter.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AnalysesTotal,
		AnalysisDuration,
		QuotaDenialsTotal,
		LLMCallsTotal,
		JSONRepairPassesTotal,
		ExtractionsTotal,
		SideEffectFailuresTotal,
		PaymentEventsTotal,
		RateLimitedTotal,
	)
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		))
		c.Next()
		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
