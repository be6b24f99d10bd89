package agent

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts how the agent resolves requests. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry
	served   *prometheus.CounterVec
	failures *prometheus.CounterVec
	installs *prometheus.CounterVec
}

// NewMetrics registers the agent counters on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		served: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freshshell",
			Subsystem: "agent",
			Name:      "responses_total",
			Help:      "Responses served by the agent, by policy and source.",
		}, []string{"policy", "source"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freshshell",
			Subsystem: "agent",
			Name:      "network_failures_total",
			Help:      "Network failures seen while resolving requests, by policy.",
		}, []string{"policy"}),
		installs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freshshell",
			Subsystem: "agent",
			Name:      "installs_total",
			Help:      "Version installs, by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.served, m.failures, m.installs)
	return m
}

// Registry exposes the registry for scraping.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) observeServed(policyName string, source Source) {
	if m == nil {
		return
	}
	if policyName == "" {
		policyName = "none"
	}
	m.served.WithLabelValues(policyName, string(source)).Inc()
}

func (m *Metrics) observeFailure(policyName string) {
	if m == nil {
		return
	}
	if policyName == "" {
		policyName = "none"
	}
	m.failures.WithLabelValues(policyName).Inc()
}

func (m *Metrics) observeInstall(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.installs.WithLabelValues(result).Inc()
}
