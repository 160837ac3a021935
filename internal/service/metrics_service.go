package service

import (
	"net/http"
	"runtime"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the
// extraction pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	chunkDuration   *prometheus.HistogramVec
	chunkTotal      *prometheus.CounterVec
	recordsMerged   prometheus.Counter
	recordsSkipped  prometheus.Counter
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	chunkDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "extraction_chunk_duration_seconds",
		Help:    "Wall time per extraction chunk sent to the vision model",
		Buckets: []float64{1, 2.5, 5, 10, 20, 40, 60, 90},
	}, []string{"outcome"})

	chunkTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "extraction_chunks_total",
		Help: "Extraction chunks processed, by outcome",
	}, []string{"outcome"})

	recordsMerged := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_records_merged_total",
		Help: "Reconciled records written into the score ledger",
	})

	recordsSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_records_skipped_total",
		Help: "Records skipped during merge for missing names",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, chunkDuration, chunkTotal, recordsMerged, recordsSkipped, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		chunkDuration:   chunkDuration,
		chunkTotal:      chunkTotal,
		recordsMerged:   recordsMerged,
		recordsSkipped:  recordsSkipped,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one finished HTTP request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, seconds float64) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(seconds)
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveChunk records one extraction chunk by outcome ("ok" or "error").
func (m *MetricsService) ObserveChunk(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.chunkDuration.WithLabelValues(outcome).Observe(seconds)
	m.chunkTotal.WithLabelValues(outcome).Inc()
}

// CountMerge records the outcome of a ledger merge call.
func (m *MetricsService) CountMerge(merged, skipped int) {
	if m == nil {
		return
	}
	m.recordsMerged.Add(float64(merged))
	m.recordsSkipped.Add(float64(skipped))
}
