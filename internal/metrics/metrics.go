// Package metrics holds the Prometheus collectors exported on /metrics.
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ingestJobs    *prometheus.CounterVec
	chunksIndexed prometheus.Counter
	queries       *prometheus.CounterVec
	llmDuration   *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ingestJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfrag",
			Name:      "ingest_jobs_total",
			Help:      "Ingestion jobs by final status.",
		}, []string{"status"}),
		chunksIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pdfrag",
			Name:      "chunks_indexed_total",
			Help:      "Chunks embedded and written to the vector store.",
		}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfrag",
			Name:      "queries_total",
			Help:      "Chat queries by outcome.",
		}, []string{"outcome"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pdfrag",
			Name:      "llm_request_duration_seconds",
			Help:      "Gemini call latency by operation.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"operation", "result"}),
	}
	reg.MustRegister(m.ingestJobs, m.chunksIndexed, m.queries, m.llmDuration)
	return m
}

// RegisterQueueDepth exposes the ingest queue length as a gauge.
func RegisterQueueDepth(reg prometheus.Registerer, depth func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "pdfrag",
		Name:      "ingest_queue_depth",
		Help:      "Jobs waiting for a worker.",
	}, func() float64 { return float64(depth()) }))
}

func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.ingestJobs.WithLabelValues(status).Inc()
}

func (m *Metrics) ChunksIndexed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.chunksIndexed.Add(float64(n))
}

func (m *Metrics) Query(outcome string) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) LLMCall(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.llmDuration.WithLabelValues(op, result).Observe(d.Seconds())
}
