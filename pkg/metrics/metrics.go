// Package metrics records relay's runtime counters with Prometheus.
//
// Each Recorder owns its registry, so several engines in one process never
// collide. A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Recorder holds relay's collectors.
type Recorder struct {
	registry *prometheus.Registry

	sessionsTotal      *prometheus.CounterVec
	sessionDuration    prometheus.Histogram
	roundsTotal        prometheus.Counter
	toolCallsTotal     *prometheus.CounterVec
	connectionsTotal   *prometheus.CounterVec
	modelRequestsTotal *prometheus.CounterVec
	modelDuration      prometheus.Histogram
	tokensTotal        *prometheus.CounterVec
}

// New creates a Recorder whose metric names are prefixed with namespace.
// Go runtime and process collectors are registered alongside.
func New(namespace string) *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		sessionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Agent sessions by outcome.",
		}, []string{"status"}),
		sessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall time of an agent session.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}),
		roundsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Model rounds across all sessions.",
		}),
		toolCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool and outcome.",
		}, []string{"tool", "status"}),
		connectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_attempts_total",
			Help:      "Tool provider connection attempts by outcome.",
		}, []string{"status"}),
		modelRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_requests_total",
			Help:      "Model completions by outcome.",
		}, []string{"status"}),
		modelDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_request_duration_seconds",
			Help:      "Latency of model completions.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		tokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens reported by the model, by direction.",
		}, []string{"type"}),
	}
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Session records a finished session.
func (r *Recorder) Session(err error, d time.Duration) {
	if r == nil {
		return
	}
	r.sessionsTotal.WithLabelValues(status(err)).Inc()
	r.sessionDuration.Observe(d.Seconds())
}

// Round records one model round.
func (r *Recorder) Round() {
	if r == nil {
		return
	}
	r.roundsTotal.Inc()
}

// ToolCall records a tool invocation outcome.
func (r *Recorder) ToolCall(tool string, isError bool) {
	if r == nil {
		return
	}
	s := StatusOK
	if isError {
		s = StatusError
	}
	r.toolCallsTotal.WithLabelValues(tool, s).Inc()
}

// Connection records a connection attempt.
func (r *Recorder) Connection(err error) {
	if r == nil {
		return
	}
	r.connectionsTotal.WithLabelValues(status(err)).Inc()
}

// ModelRequest records a completion and its latency.
func (r *Recorder) ModelRequest(err error, d time.Duration) {
	if r == nil {
		return
	}
	r.modelRequestsTotal.WithLabelValues(status(err)).Inc()
	r.modelDuration.Observe(d.Seconds())
}

// Tokens adds token counts reported by the model.
func (r *Recorder) Tokens(input, output int) {
	if r == nil {
		return
	}
	r.tokensTotal.WithLabelValues("input").Add(float64(input))
	r.tokensTotal.WithLabelValues("output").Add(float64(output))
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}
