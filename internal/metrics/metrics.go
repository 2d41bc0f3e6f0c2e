// Package metrics holds the Prometheus instruments of a countsync process.
//
// Instruments live on a Metrics value with its own registry rather than in
// package globals, so each engine or test gets an isolated set. Every method
// is safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldcount/countsync/internal/schema"
)

const namespace = "countsync"

// Metrics is the set of countsync instruments.
type Metrics struct {
	registry *prometheus.Registry

	uploadedTotal     *prometheus.CounterVec
	uploadFailedTotal *prometheus.CounterVec
	catalogTotal      *prometheus.CounterVec
	cyclesTotal       *prometheus.CounterVec
	cycleDuration     prometheus.Histogram
	pendingRecords    *prometheus.GaugeVec
	lastSuccess       prometheus.Gauge
	online            prometheus.Gauge
	tagReadsTotal     *prometheus.CounterVec
	photosTotal       *prometheus.CounterVec
}

// New creates the instruments and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		uploadedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "records_total",
			Help:      "Capture records acknowledged by the server and marked synced, by kind.",
		}, []string{"kind"}),

		uploadFailedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "failed_groups_total",
			Help:      "Session batches that failed to upload and stayed pending, by kind.",
		}, []string{"kind"}),

		catalogTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "catalogs_total",
			Help:      "Catalog downloads by catalog and result.",
		}, []string{"catalog", "result"}),

		cyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "cycles_total",
			Help:      "Sync cycles by result (ok, partial, failed).",
		}, []string{"result"}),

		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a full upload+download cycle.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),

		pendingRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "pending_records",
			Help:      "Capture records waiting for upload, by kind.",
		}, []string{"kind"}),

		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last cycle that finished without errors.",
		}),

		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "online",
			Help:      "Whether the last connectivity probe reached a compatible server.",
		}),

		tagReadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rfid",
			Name:      "reads_total",
			Help:      "Processed tag reads by outcome (matched, unmatched).",
		}, []string{"outcome"}),

		photosTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "photos_total",
			Help:      "Photo uploads by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.uploadedTotal,
		m.uploadFailedTotal,
		m.catalogTotal,
		m.cyclesTotal,
		m.cycleDuration,
		m.pendingRecords,
		m.lastSuccess,
		m.online,
		m.tagReadsTotal,
		m.photosTotal,
	)
	return m
}

// Registry exposes the registry for custom collectors and tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordUpload counts one kind's upload outcome.
func (m *Metrics) RecordUpload(kind schema.RecordKind, uploaded, failedGroups int) {
	if m == nil {
		return
	}
	m.uploadedTotal.WithLabelValues(string(kind)).Add(float64(uploaded))
	m.uploadFailedTotal.WithLabelValues(string(kind)).Add(float64(failedGroups))
}

// RecordCatalog counts one catalog download.
func (m *Metrics) RecordCatalog(catalog string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.catalogTotal.WithLabelValues(catalog, result).Inc()
}

// RecordCycle counts a finished cycle. result is ok, partial or failed.
func (m *Metrics) RecordCycle(result string, took time.Duration, finished time.Time) {
	if m == nil {
		return
	}
	m.cyclesTotal.WithLabelValues(result).Inc()
	m.cycleDuration.Observe(took.Seconds())
	if result == "ok" {
		m.lastSuccess.Set(float64(finished.Unix()))
	}
}

// SetPending publishes the pending badge counts.
func (m *Metrics) SetPending(counts map[schema.RecordKind]int) {
	if m == nil {
		return
	}
	for _, kind := range schema.RecordKinds {
		m.pendingRecords.WithLabelValues(string(kind)).Set(float64(counts[kind]))
	}
}

// SetOnline publishes the connectivity probe result.
func (m *Metrics) SetOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.online.Set(1)
	} else {
		m.online.Set(0)
	}
}

// RecordTagRead counts one processed tag read.
func (m *Metrics) RecordTagRead(matched bool) {
	if m == nil {
		return
	}
	outcome := "unmatched"
	if matched {
		outcome = "matched"
	}
	m.tagReadsTotal.WithLabelValues(outcome).Inc()
}

// RecordPhoto counts one photo upload attempt.
func (m *Metrics) RecordPhoto(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.photosTotal.WithLabelValues(result).Inc()
}
