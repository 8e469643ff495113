package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	dispatchRunsTotal   *prometheus.CounterVec
	dispatchRunDuration prometheus.Histogram

	handlerInvocationsTotal *prometheus.CounterVec
	handlerDuration         *prometheus.HistogramVec

	toolCallsTotal   *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	bridgeQueueDepth *prometheus.GaugeVec
}

var (
	registerOnce sync.Once
	m            *moduleMetrics
)

// EnsureRegistered registers all Parley metrics with the default
// registry. Safe to call from multiple packages.
func EnsureRegistered() {
	registerOnce.Do(func() {
		m = &moduleMetrics{
			dispatchRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "parley_dispatch_runs_total",
				Help: "Total dispatch runs by outcome",
			}, []string{"outcome"}),
			dispatchRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "parley_dispatch_run_duration_seconds",
				Help:    "Dispatch run duration",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			}),
			handlerInvocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "parley_handler_invocations_total",
				Help: "Handler invocations by handler and status",
			}, []string{"handler", "status"}),
			handlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "parley_handler_duration_seconds",
				Help:    "Handler invocation duration",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			}, []string{"handler"}),
			toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "parley_bridge_tool_calls_total",
				Help: "Bridge tool calls by bridge and status",
			}, []string{"bridge", "status"}),
			toolCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "parley_bridge_tool_call_duration_seconds",
				Help:    "Bridge tool call duration including queueing delay",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
			}, []string{"bridge"}),
			bridgeQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "parley_bridge_queue_depth",
				Help: "Pending calls queued on a bridge",
			}, []string{"bridge"}),
		}

		prometheus.MustRegister(
			m.dispatchRunsTotal,
			m.dispatchRunDuration,
			m.handlerInvocationsTotal,
			m.handlerDuration,
			m.toolCallsTotal,
			m.toolCallDuration,
			m.bridgeQueueDepth,
		)
	})
}

// RecordDispatchRun records a completed dispatch run.
func RecordDispatchRun(outcome string, seconds float64) {
	EnsureRegistered()
	m.dispatchRunsTotal.WithLabelValues(outcome).Inc()
	m.dispatchRunDuration.Observe(seconds)
}

// RecordHandlerInvocation records one handler invocation.
func RecordHandlerInvocation(handler, status string, seconds float64) {
	EnsureRegistered()
	m.handlerInvocationsTotal.WithLabelValues(handler, status).Inc()
	m.handlerDuration.WithLabelValues(handler).Observe(seconds)
}

// RecordToolCall records one bridge tool call.
func RecordToolCall(bridge, status string, seconds float64) {
	EnsureRegistered()
	m.toolCallsTotal.WithLabelValues(bridge, status).Inc()
	m.toolCallDuration.WithLabelValues(bridge).Observe(seconds)
}

// SetBridgeQueueDepth reports the number of calls waiting on a bridge.
func SetBridgeQueueDepth(bridge string, depth int) {
	EnsureRegistered()
	m.bridgeQueueDepth.WithLabelValues(bridge).Set(float64(depth))
}

// Handler returns an HTTP handler exposing the default registry.
func Handler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

// Serve starts a metrics endpoint on the given address. Blocks until
// the server fails.
func Serve(listen string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(listen, mux)
}
