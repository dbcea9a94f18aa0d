// Package metrics exposes Prometheus collectors for requests, streams and export jobs.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"query-streamer/internal/stream"
)

var (
	// RequestTotal counts HTTP requests by method, route and status.
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qstream_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	// RequestDuration is the latency of HTTP requests, measured until the last chunk is written.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qstream_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	StreamsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qstream_streams_active",
		Help: "Streams currently holding a database connection",
	})
	ChunksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qstream_chunks_total",
		Help: "Chunks emitted by all streams",
	})
	ChunkBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qstream_chunk_bytes_total",
		Help: "Bytes emitted by all streams",
	})
	// SkippedRecords counts records dropped or replaced mid-stream, by reason ("row" or "serialization").
	SkippedRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qstream_skipped_records_total",
			Help: "Records that failed mid-stream",
		},
		[]string{"reason"},
	)
	ExportJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qstream_export_jobs_total",
			Help: "Export jobs by final status",
		},
		[]string{"status"},
	)
)

// StreamObserver feeds the stream collectors. It satisfies stream.Observer.
type StreamObserver struct{}

func (StreamObserver) Chunk(n int) {
	ChunksTotal.Inc()
	ChunkBytes.Add(float64(n))
}

func (StreamObserver) Skipped(err error) {
	reason := "serialization"
	if errors.Is(err, stream.ErrRowFetch) {
		reason = "row"
	}
	SkippedRecords.WithLabelValues(reason).Inc()
}
