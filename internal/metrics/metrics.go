// Package metrics exposes scoring and feed counters in the Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/p-wisp/anti-phishing/internal/scoring"
	"github.com/p-wisp/anti-phishing/internal/updater"
)

const namespace = "phishguard"

// Metrics owns its registry so tests and multiple servers do not collide.
// All methods are no-ops on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	verdicts        *prometheus.CounterVec
	probability     prometheus.Histogram
	requestDuration *prometheus.HistogramVec
	feedSyncs       *prometheus.CounterVec
	feedEntries     *prometheus.GaugeVec
	listSize        *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Verdicts returned, by endpoint and label.",
		}, []string{"endpoint", "label"}),
		probability: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "verdict_probability",
			Help:      "Distribution of verdict probabilities.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route, method and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "code"}),
		feedSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_syncs_total",
			Help:      "Feed sync attempts by source and result.",
		}, []string{"source", "result"}),
		feedEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_entries",
			Help:      "Entries stored per list source.",
		}, []string{"source"}),
		listSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "list_domains",
			Help:      "Domains loaded into the in-memory lists.",
		}, []string{"list"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.verdicts,
		m.probability,
		m.requestDuration,
		m.feedSyncs,
		m.feedEntries,
		m.listSize,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry for GET /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveVerdict(endpoint string, v scoring.Verdict) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(endpoint, string(v.Label)).Inc()
	m.probability.Observe(v.Probability)
}

func (m *Metrics) ObserveRequest(route, method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(route, method, strconv.Itoa(code)).Observe(d.Seconds())
}

// ObserveFeedResults counts one run of the updater.
func (m *Metrics) ObserveFeedResults(results []updater.Result) {
	if m == nil {
		return
	}
	for _, r := range results {
		result := "ok"
		switch {
		case r.Err != nil:
			result = "error"
		case r.NotModified:
			result = "not_modified"
		}
		m.feedSyncs.WithLabelValues(r.Source, result).Inc()
	}
}

// SetFeedEntries replaces the per-source entry gauges.
func (m *Metrics) SetFeedEntries(counts map[string]int) {
	if m == nil {
		return
	}
	m.feedEntries.Reset()
	for source, n := range counts {
		m.feedEntries.WithLabelValues(source).Set(float64(n))
	}
}

func (m *Metrics) SetListSizes(blocked, allowed int) {
	if m == nil {
		return
	}
	m.listSize.WithLabelValues("blocked").Set(float64(blocked))
	m.listSize.WithLabelValues("allowed").Set(float64(allowed))
}
