// Package metrics holds the Prometheus collectors for the charter service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "charters"

// Metrics groups the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	updates        *prometheus.CounterVec
	updateDuration prometheus.Histogram
	sectionUpserts *prometheus.CounterVec
	created        prometheus.Counter
	exports        *prometheus.CounterVec
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Charter update attempts by outcome (ok or error kind).",
		}, []string{"outcome"}),
		updateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "update_duration_seconds",
			Help:      "Time spent applying one charter update, including rejected ones.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		sectionUpserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "section_upserts_total",
			Help:      "Section writes by path: inserted, updated, or recovered after a duplicate insert.",
		}, []string{"path"}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "charters_created_total",
			Help:      "Charters created by the generation pipeline.",
		}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_exports_total",
			Help:      "Ledger export runs by destination and result.",
		}, []string{"destination", "result"}),
	}
	reg.MustRegister(m.updates, m.updateDuration, m.sectionUpserts, m.created, m.exports)
	return m
}

// ObserveUpdate records one update attempt.
func (m *Metrics) ObserveUpdate(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(outcome).Inc()
	m.updateDuration.Observe(d.Seconds())
}

// ObserveSectionUpsert records which upsert path a section write took.
func (m *Metrics) ObserveSectionUpsert(path string) {
	if m == nil {
		return
	}
	m.sectionUpserts.WithLabelValues(path).Inc()
}

// CharterCreated counts one created charter.
func (m *Metrics) CharterCreated() {
	if m == nil {
		return
	}
	m.created.Inc()
}

// ObserveExport records one export run.
func (m *Metrics) ObserveExport(destination string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.exports.WithLabelValues(destination, result).Inc()
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
