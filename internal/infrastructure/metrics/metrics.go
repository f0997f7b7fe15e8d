// Package metrics exposes ingestion and question-answering measurements to
// Prometheus. Recorder implements ports.Recorder.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
)

// Recorder holds the application's Prometheus collectors on a private registry.
type Recorder struct {
	ingestTotal *prometheus.CounterVec
	chunksTotal prometheus.Counter
	askTotal    *prometheus.CounterVec
	askDuration prometheus.Histogram
	registry    *prometheus.Registry
}

// NewRecorder creates a Recorder. An empty namespace defaults to "ragchat".
func NewRecorder(namespace string) *Recorder {
	if namespace == "" {
		namespace = "ragchat"
	}

	r := &Recorder{registry: prometheus.NewRegistry()}

	r.ingestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Ingestion attempts by result (ingested, skipped, failed).",
		},
		[]string{"result"},
	)

	r.chunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_indexed_total",
			Help:      "Chunks added to the vector index.",
		},
	)

	r.askTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ask_total",
			Help:      "Answered questions by outcome.",
		},
		[]string{"outcome"},
	)

	r.askDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ask_duration_seconds",
			Help:      "Time from question to answer, retrieval and completion included.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	r.registry.MustRegister(r.ingestTotal, r.chunksTotal, r.askTotal, r.askDuration)
	r.registry.MustRegister(collectors.NewGoCollector())
	r.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return r
}

// IngestFinished counts a completed ingestion.
func (r *Recorder) IngestFinished(status entities.IngestStatus, chunks int) {
	r.ingestTotal.WithLabelValues(string(status)).Inc()
	if chunks > 0 {
		r.chunksTotal.Add(float64(chunks))
	}
}

// IngestFailed counts an ingestion that returned an error.
func (r *Recorder) IngestFailed() {
	r.ingestTotal.WithLabelValues("failed").Inc()
}

// AskFinished counts an answered question and observes its latency.
func (r *Recorder) AskFinished(outcome string, elapsed time.Duration) {
	r.askTotal.WithLabelValues(outcome).Inc()
	r.askDuration.Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
