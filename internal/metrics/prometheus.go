// Package metrics exposes Prometheus instruments for the recording pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the recap service.
// Construct with a private registry in tests to avoid cross-test pollution.
type Metrics struct {
	// Session metrics
	ActiveSessions    prometheus.Gauge
	SessionsStarted   prometheus.Counter
	SessionsCompleted prometheus.Counter
	SessionsFailed    prometheus.Counter
	SessionDuration   prometheus.Histogram
	FinalizeDuration  prometheus.Histogram

	// Chunk metrics
	ChunksIngested prometheus.Counter
	ChunksRejected prometheus.Counter
	ChunkSize      prometheus.Histogram

	// Transcription metrics
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram

	// Transport metrics
	ConnectedClients prometheus.Gauge
}

// NewMetrics creates and registers all instruments against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "recap_active_sessions",
			Help: "Current number of active recording sessions",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "recap_sessions_started_total",
			Help: "Total number of sessions started",
		}),
		SessionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "recap_sessions_completed_total",
			Help: "Total number of sessions finalized successfully",
		}),
		SessionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "recap_sessions_failed_total",
			Help: "Total number of sessions that ended in failure",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "recap_session_duration_seconds",
			Help:    "Effective recording duration of finalized sessions",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10s to ~3 hours
		}),
		FinalizeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "recap_finalize_duration_seconds",
			Help:    "Time spent in stop finalization, including the grace wait",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		ChunksIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "recap_chunks_ingested_total",
			Help: "Total number of audio chunks accepted for transcription",
		}),
		ChunksRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "recap_chunks_rejected_total",
			Help: "Total number of chunks rejected for arriving outside recording state",
		}),
		ChunkSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "recap_chunk_size_bytes",
			Help:    "Size of ingested audio chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		TranscriptionSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "recap_transcription_successes_total",
			Help: "Total number of chunk transcriptions that succeeded",
		}),
		TranscriptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "recap_transcription_failures_total",
			Help: "Total number of chunk transcriptions that failed",
		}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "recap_transcription_duration_seconds",
			Help:    "Latency of chunk transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "recap_connected_clients",
			Help: "Current number of connected websocket clients",
		}),
	}
}

// RecordSessionStarted tracks a new active session.
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionCompleted tracks a successful finalization.
func (m *Metrics) RecordSessionCompleted(durationSeconds float64) {
	m.SessionsCompleted.Inc()
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionFailed tracks a failed finalization.
func (m *Metrics) RecordSessionFailed() {
	m.SessionsFailed.Inc()
	m.ActiveSessions.Dec()
}

// RecordChunkIngested tracks an accepted chunk.
func (m *Metrics) RecordChunkIngested(sizeBytes int) {
	m.ChunksIngested.Inc()
	m.ChunkSize.Observe(float64(sizeBytes))
}

// RecordChunkRejected tracks a chunk refused outside recording state.
func (m *Metrics) RecordChunkRejected() {
	m.ChunksRejected.Inc()
}

// RecordTranscription tracks one completed transcription attempt.
func (m *Metrics) RecordTranscription(ok bool, durationSeconds float64) {
	if ok {
		m.TranscriptionSuccesses.Inc()
	} else {
		m.TranscriptionFailures.Inc()
	}
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordFinalize tracks the duration of one finalization pass.
func (m *Metrics) RecordFinalize(durationSeconds float64) {
	m.FinalizeDuration.Observe(durationSeconds)
}

// ClientConnected tracks a websocket subscriber attach.
func (m *Metrics) ClientConnected() {
	m.ConnectedClients.Inc()
}

// ClientDisconnected tracks a websocket subscriber detach.
func (m *Metrics) ClientDisconnected() {
	m.ConnectedClients.Dec()
}
