package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the a2a collectors on a private registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	runs         *prometheus.CounterVec
	toolCalls    *prometheus.HistogramVec
	oracleCalls  *prometheus.CounterVec
	refreshes    *prometheus.CounterVec
	agentsLoaded prometheus.Gauge
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a2a_runs_total",
			Help: "Finished runs by agent and run.end status.",
		}, []string{"agent", "status"}),
		toolCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "a2a_tool_call_duration_seconds",
			Help:    "Tool invocation latency by server, tool and outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"server", "tool", "outcome"}),
		oracleCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a2a_oracle_calls_total",
			Help: "Decision oracle calls by kind and outcome.",
		}, []string{"kind", "outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a2a_catalog_refreshes_total",
			Help: "Catalog refreshes by outcome.",
		}, []string{"outcome"}),
		agentsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "a2a_agents_loaded",
			Help: "Agents in the current roster.",
		}),
	}
	reg.MustRegister(
		m.runs, m.toolCalls, m.oracleCalls, m.refreshes, m.agentsLoaded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveRun counts a finished run.
func (m *Metrics) ObserveRun(agent, status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(agent, status).Inc()
}

// ObserveToolCall records one tool invocation.
func (m *Metrics) ObserveToolCall(server, tool string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(server, tool, outcome(err)).Observe(d.Seconds())
}

// ObserveOracle counts one oracle call.
func (m *Metrics) ObserveOracle(kind string, err error) {
	if m == nil {
		return
	}
	m.oracleCalls.WithLabelValues(kind, outcome(err)).Inc()
}

// ObserveRefresh counts a roster refresh and records its size.
func (m *Metrics) ObserveRefresh(agents int, err error) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		m.agentsLoaded.Set(float64(agents))
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
