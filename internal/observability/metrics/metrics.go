// Package metrics exposes the Prometheus collectors shared by the agents.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for one agent process.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	IntentsTotal        *prometheus.CounterVec
	DelegationsTotal    *prometheus.CounterVec
	DelegationDuration  *prometheus.HistogramVec
	LateDeliveriesTotal *prometheus.CounterVec
	TxAttemptsTotal     *prometheus.CounterVec
	OperationsTotal     *prometheus.CounterVec
}

// New creates a registry with process/go collectors and registers every agent metric on it.
func New(agent string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := NewWithRegisterer(reg, agent)
	m.registry = reg
	return m
}

// NewWithRegisterer registers the metrics on reg. The agent name becomes a constant label.
func NewWithRegisterer(reg prometheus.Registerer, agent string) *Metrics {
	factory := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"agent": agent}, reg))
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "askworld_http_requests_total",
			Help: "Total number of HTTP requests processed.",
		}, []string{"route", "method", "code"}),

		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "askworld_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"route", "method"}),

		IntentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "askworld_intents_total",
			Help: "Chat messages classified, by intent and whether clarification was needed.",
		}, []string{"intent", "clarified"}),

		DelegationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "askworld_delegations_total",
			Help: "Cross-agent delegated calls, by strategy and outcome.",
		}, []string{"strategy", "status"}),

		DelegationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "askworld_delegation_duration_seconds",
			Help:    "Time spent waiting for a delegated call.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"strategy"}),

		LateDeliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "askworld_late_deliveries_total",
			Help: "Responses dropped because their token expired or was already consumed.",
		}, []string{"type"}),

		TxAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "askworld_tx_attempts_total",
			Help: "validateAnswer submission attempts, by error class.",
		}, []string{"outcome"}),

		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "askworld_operations_total",
			Help: "Agent operations such as uploads and validation runs, by result.",
		}, []string{"operation", "result"}),
	}
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func (m *Metrics) ObserveHTTPRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordIntent counts one classification.
func (m *Metrics) RecordIntent(intent string, clarified bool) {
	if m == nil {
		return
	}
	m.IntentsTotal.WithLabelValues(intent, strconv.FormatBool(clarified)).Inc()
}

// RecordDelegation counts one delegated call and its latency.
func (m *Metrics) RecordDelegation(strategy, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.DelegationsTotal.WithLabelValues(strategy, status).Inc()
	m.DelegationDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordLateDelivery counts a dropped response.
func (m *Metrics) RecordLateDelivery(msgType string) {
	if m == nil {
		return
	}
	m.LateDeliveriesTotal.WithLabelValues(msgType).Inc()
}

// RecordTxAttempt counts one transaction submission attempt.
func (m *Metrics) RecordTxAttempt(outcome string) {
	if m == nil {
		return
	}
	m.TxAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordOperation counts one agent operation such as a blob upload or a validation run.
func (m *Metrics) RecordOperation(operation string, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.OperationsTotal.WithLabelValues(operation, result).Inc()
}
