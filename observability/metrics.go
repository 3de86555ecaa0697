// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lookup outcomes.
const (
	OutcomeOK             = "ok"
	OutcomeNoData         = "no_data"
	OutcomeInvalidHorizon = "invalid_horizon"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	// Load metrics
	GridMinutes        prometheus.Gauge
	PriceFilesParsed   prometheus.Gauge
	PriceFilesSkipped  prometheus.Gauge
	PriceRowsDropped   prometheus.Gauge
	EventsLoaded       prometheus.Gauge
	EventsByLabel      *prometheus.GaugeVec
	LastSuccessfulLoad prometheus.Gauge

	// Query metrics
	ImpactLookups   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance registered on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "tweetimpact"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		GridMinutes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "grid",
			Name:      "minutes",
			Help:      "Number of distinct minutes in the price grid",
		}),
		PriceFilesParsed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "price_files_parsed",
			Help:      "Price files that contributed ticks on the last load",
		}),
		PriceFilesSkipped: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "price_files_skipped",
			Help:      "Price files skipped because they could not be parsed",
		}),
		PriceRowsDropped: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "price_rows_dropped",
			Help:      "Rows dropped inside parsed price files",
		}),
		EventsLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "events",
			Help:      "Number of events loaded",
		}),
		EventsByLabel: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "events_by_label",
			Help:      "Number of loaded events per precomputed label",
		}, []string{"label"}),
		LastSuccessfulLoad: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_load_timestamp",
			Help:      "Unix timestamp of the last successful data load",
		}),

		ImpactLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "impact",
			Name:      "lookups_total",
			Help:      "Impact lookups by outcome",
		}, []string{"outcome"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordLoad sets the load gauges after a context is built.
func (m *Metrics) RecordLoad(gridMinutes, filesParsed, filesSkipped, rowsDropped, events int, labels map[string]int, at float64) {
	m.GridMinutes.Set(float64(gridMinutes))
	m.PriceFilesParsed.Set(float64(filesParsed))
	m.PriceFilesSkipped.Set(float64(filesSkipped))
	m.PriceRowsDropped.Set(float64(rowsDropped))
	m.EventsLoaded.Set(float64(events))
	for label, n := range labels {
		m.EventsByLabel.WithLabelValues(label).Set(float64(n))
	}
	m.LastSuccessfulLoad.Set(at)
}

// RecordLookup counts one impact lookup.
func (m *Metrics) RecordLookup(outcome string) {
	m.ImpactLookups.WithLabelValues(outcome).Inc()
}

// RecordRequest records one HTTP request.
func (m *Metrics) RecordRequest(route, status string, seconds float64) {
	m.RequestDuration.WithLabelValues(route, status).Observe(seconds)
}
