// Package metrics 提供文档问答服务的 Prometheus 指标。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docqa"

// Outcome 标签取值。
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeFailed  = "failed"
)

// Metrics 汇总全部业务指标，每个实例持有独立的 Registry。
type Metrics struct {
	registry *prometheus.Registry

	DocumentsUploaded    prometheus.Counter
	DocumentsIngested    *prometheus.CounterVec
	IngestionDuration    prometheus.Histogram
	ChunksWritten        prometheus.Counter
	QueueDepth           prometheus.Gauge
	IngestionsInFlight   prometheus.Gauge
	StaleDocumentsReaped prometheus.Counter

	Retrievals        *prometheus.CounterVec
	RetrievalDuration prometheus.Histogram
	RetrievedChunks   prometheus.Histogram
	ChatRequests      *prometheus.CounterVec

	ProviderDuration *prometheus.HistogramVec

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New 创建并注册全部指标，同时注册 Go 运行时与进程采集器。
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		DocumentsUploaded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_uploaded_total",
			Help:      "Total number of accepted document uploads",
		}),
		DocumentsIngested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_ingested_total",
			Help:      "Total number of finished ingestion attempts by outcome",
		}, []string{"outcome"}),
		IngestionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingestion_duration_seconds",
			Help:      "Duration of ingestion attempts in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		ChunksWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_written_total",
			Help:      "Total number of chunks persisted",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingestion_queue_depth",
			Help:      "Number of documents waiting in the ingestion queue",
		}),
		IngestionsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingestions_in_flight",
			Help:      "Number of ingestion attempts currently running",
		}),
		StaleDocumentsReaped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_documents_reaped_total",
			Help:      "Total number of abandoned processing documents marked failed",
		}),

		Retrievals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Total number of retrievals by backend and outcome",
		}, []string{"backend", "outcome"}),
		RetrievalDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Duration of chunk retrieval in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		RetrievedChunks: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieved_chunks",
			Help:      "Number of chunks returned per retrieval",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
		}),
		ChatRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Total number of chat requests by outcome",
		}, []string{"outcome"}),

		ProviderDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Duration of model provider calls in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"provider", "operation", "outcome"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry 返回底层 Registry。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 的 HTTP handler。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveIngestion 记录一次 ingestion 的结果。
func (m *Metrics) ObserveIngestion(outcome string, d time.Duration, chunks int) {
	m.DocumentsIngested.WithLabelValues(outcome).Inc()
	m.IngestionDuration.Observe(d.Seconds())
	if chunks > 0 {
		m.ChunksWritten.Add(float64(chunks))
	}
}

// ObserveRetrieval 记录一次检索。
func (m *Metrics) ObserveRetrieval(backend string, d time.Duration, n int, err error) {
	m.Retrievals.WithLabelValues(backend, outcome(err)).Inc()
	if err != nil {
		return
	}
	m.RetrievalDuration.Observe(d.Seconds())
	m.RetrievedChunks.Observe(float64(n))
}

// ObserveProvider 记录一次模型调用。
func (m *Metrics) ObserveProvider(provider, operation string, d time.Duration, err error) {
	m.ProviderDuration.WithLabelValues(provider, operation, outcome(err)).Observe(d.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
