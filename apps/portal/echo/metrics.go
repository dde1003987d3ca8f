package echoportal

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry  *prometheus.Registry
	decisions *prometheus.CounterVec
	signIns   *prometheus.CounterVec
	failures  *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eduweave",
			Subsystem: "portal",
			Name:      "authz_decisions_total",
			Help:      "Route authorizer decisions by outcome.",
		}, []string{"outcome"}),
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eduweave",
			Subsystem: "portal",
			Name:      "sign_ins_total",
			Help:      "Sign-in attempts by method and result.",
		}, []string{"method", "result"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eduweave",
			Subsystem: "portal",
			Name:      "backend_failures_total",
			Help:      "Page fetches and writes that failed at the backend.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.decisions,
		m.signIns,
		m.failures,
	)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) signIn(method string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.signIns.WithLabelValues(method, result).Inc()
}

func (m *metrics) backendFailure(kind string) {
	m.failures.WithLabelValues(kind).Inc()
}
