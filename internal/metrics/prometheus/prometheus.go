package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/just-save/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector implements metrics.Collector for Prometheus.
type PrometheusCollector struct {
	namespace string
	registry  *prometheus.Registry

	// Reasoning engine
	reasoningCalls   *prometheus.CounterVec
	reasoningLatency *prometheus.HistogramVec

	// Pipeline
	extractions        *prometheus.CounterVec
	extractedTxs       *prometheus.CounterVec
	extractionLatency  *prometheus.HistogramVec
	analyses           *prometheus.CounterVec
	subscriptionsFound prometheus.Counter
	analysisLatency    prometheus.Histogram

	// Circuit breaker
	breakerOpens *prometheus.CounterVec
	breakerState *prometheus.GaugeVec

	// Jobs
	jobTransitions *prometheus.CounterVec

	// HTTP
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

// NewPrometheusCollector creates a collector backed by its own registry.
// Call Register before serving Handler.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	// Model calls take seconds, not milliseconds.
	slowBuckets := prometheus.ExponentialBuckets(0.25, 2, 10) // 0.25s to ~2min

	pc := &PrometheusCollector{
		namespace: namespace,
		registry:  prometheus.NewRegistry(),
		reasoningCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reasoning_calls_total",
				Help:      "Total number of reasoning engine calls per provider, task and outcome",
			},
			[]string{"provider", "task", "outcome"},
		),
		reasoningLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reasoning_duration_seconds",
				Help:      "Reasoning engine call latency",
				Buckets:   slowBuckets,
			},
			[]string{"provider", "task"},
		),
		extractions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extractions_total",
				Help:      "Total number of statement extractions per source kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		extractedTxs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extracted_transactions_total",
				Help:      "Total number of valid transactions extracted per source kind",
			},
			[]string{"kind"},
		),
		extractionLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "extraction_duration_seconds",
				Help:      "End-to-end extraction latency",
				Buckets:   slowBuckets,
			},
			[]string{"kind"},
		),
		analyses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analyses_total",
				Help:      "Total number of analyses per outcome",
			},
			[]string{"outcome"},
		),
		subscriptionsFound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscriptions_detected_total",
				Help:      "Total number of subscriptions detected across analyses",
			},
		),
		analysisLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "analysis_duration_seconds",
				Help:      "End-to-end analysis latency",
				Buckets:   slowBuckets,
			},
		),
		breakerOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "breaker_opens_total",
				Help:      "Total number of circuit breaker opens",
			},
			[]string{"name"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "breaker_state",
				Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		jobTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_stage_transitions_total",
				Help:      "Total number of analysis job stage transitions",
			},
			[]string{"stage"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latencies in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
	}

	return pc
}

// Register registers all metrics with the collector's registry.
func (pc *PrometheusCollector) Register() error {
	collectors := []prometheus.Collector{
		pc.reasoningCalls,
		pc.reasoningLatency,
		pc.extractions,
		pc.extractedTxs,
		pc.extractionLatency,
		pc.analyses,
		pc.subscriptionsFound,
		pc.analysisLatency,
		pc.breakerOpens,
		pc.breakerState,
		pc.jobTransitions,
		pc.httpRequests,
		pc.httpLatency,
	}

	for _, collector := range collectors {
		if err := pc.registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

// Handler serves the collector's registry in the Prometheus exposition format.
func (pc *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(pc.registry, promhttp.HandlerOpts{})
}

// RecordReasoning records one reasoning engine call.
func (pc *PrometheusCollector) RecordReasoning(provider, task, outcome string, duration time.Duration) {
	pc.reasoningCalls.WithLabelValues(provider, task, outcome).Inc()
	pc.reasoningLatency.WithLabelValues(provider, task).Observe(duration.Seconds())
}

// RecordExtraction records one extraction.
func (pc *PrometheusCollector) RecordExtraction(kind, outcome string, transactions int, duration time.Duration) {
	pc.extractions.WithLabelValues(kind, outcome).Inc()
	if transactions > 0 {
		pc.extractedTxs.WithLabelValues(kind).Add(float64(transactions))
	}
	pc.extractionLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordAnalysis records one analysis.
func (pc *PrometheusCollector) RecordAnalysis(outcome string, subscriptions int, duration time.Duration) {
	pc.analyses.WithLabelValues(outcome).Inc()
	if subscriptions > 0 {
		pc.subscriptionsFound.Add(float64(subscriptions))
	}
	pc.analysisLatency.Observe(duration.Seconds())
}

// RecordBreakerState records the current circuit breaker state.
func (pc *PrometheusCollector) RecordBreakerState(name string, state metrics.BreakerState) {
	pc.breakerState.WithLabelValues(name).Set(float64(state))
	if state == metrics.BreakerOpen {
		pc.breakerOpens.WithLabelValues(name).Inc()
	}
}

// RecordJob records a job entering stage.
func (pc *PrometheusCollector) RecordJob(stage string) {
	pc.jobTransitions.WithLabelValues(stage).Inc()
}

// RecordHTTPRequest records a served HTTP request. endpoint should be a route
// template, not a raw path, to keep label cardinality bounded.
func (pc *PrometheusCollector) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	pc.httpRequests.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	pc.httpLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
