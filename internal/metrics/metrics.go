// Package metrics exposes pipeline counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on a private registry, so several instances
// can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	EventsIngested          *prometheus.CounterVec
	IngestFailures          *prometheus.CounterVec
	PageCountIncrementFails prometheus.Counter
	GeoLookups              *prometheus.CounterVec
	StatsSectionFailures    *prometheus.CounterVec
	ReportDuration          *prometheus.HistogramVec
}

func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EventsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_ingested_total",
				Help:      "Tracking envelopes stored, by type",
			},
			[]string{"type"},
		),
		IngestFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingest_failures_total",
				Help:      "Tracking envelopes that could not be stored, by type",
			},
			[]string{"type"},
		),
		PageCountIncrementFails: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pagecount_increment_failures_total",
				Help:      "Page views stored without their session counter being updated",
			},
		),
		GeoLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "geolocation_lookups_total",
				Help:      "Geolocation provider lookups, by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		StatsSectionFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stats_section_failures_total",
				Help:      "Dashboard report sections that failed to compute",
			},
			[]string{"section"},
		),
		ReportDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stats_duration_seconds",
				Help:      "Time spent computing a dashboard report",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"report"},
		),
	}

	m.registry.MustRegister(
		m.EventsIngested,
		m.IngestFailures,
		m.PageCountIncrementFails,
		m.GeoLookups,
		m.StatsSectionFailures,
		m.ReportDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) EventIngested(kind string) {
	m.EventsIngested.WithLabelValues(kind).Inc()
}

func (m *Metrics) IngestFailed(kind string) {
	m.IngestFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) PageCountIncrementFailed() {
	m.PageCountIncrementFails.Inc()
}

// GeoLookup matches geoip.Observer.
func (m *Metrics) GeoLookup(provider, outcome string) {
	m.GeoLookups.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) SectionFailed(section string) {
	m.StatsSectionFailures.WithLabelValues(section).Inc()
}

func (m *Metrics) ReportComputed(report string, elapsed time.Duration) {
	m.ReportDuration.WithLabelValues(report).Observe(elapsed.Seconds())
}
