// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tiqn_backend"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsCreated prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionsEnded   *prometheus.CounterVec
	SessionsSwept   prometheus.Counter
	SessionDuration prometheus.Histogram

	// Chunk pipeline metrics
	ChunksIngested  *prometheus.CounterVec
	ChunkLatency    prometheus.Histogram
	MergesApplied   prometheus.Counter
	EmptyPartials   prometheus.Counter
	TriageEscalated *prometheus.CounterVec

	// Audio metrics
	AudioBytesReceived prometheus.Counter
	SegmentsEmitted    *prometheus.CounterVec

	// External collaborator metrics
	TranscriptionLatency prometheus.Histogram
	TranscriptionErrors  *prometheus.CounterVec
	ExtractionLatency    prometheus.Histogram
	ExtractionErrors     *prometheus.CounterVec
	PersistenceResults   *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of call sessions created",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently live call sessions",
		}),
		SessionsEnded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Total number of sessions ended, by cause",
		}, []string{"cause"}),
		SessionsSwept: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_swept_total",
			Help:      "Total number of idle sessions removed by the sweeper",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of call sessions in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),

		ChunksIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_ingested_total",
			Help:      "Total number of transcript chunks ingested, by source",
		}, []string{"source"}),
		ChunkLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_processing_seconds",
			Help:      "End-to-end latency of one chunk through extract-merge-normalize",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		MergesApplied: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_applied_total",
			Help:      "Total number of partial records merged into session records",
		}),
		EmptyPartials: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "empty_partials_total",
			Help:      "Total number of extractions that carried no new information",
		}),
		TriageEscalated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triage_escalations_total",
			Help:      "Total number of triage tier escalations, by resulting tier",
		}, []string{"tier"}),

		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total raw audio bytes received",
		}),
		SegmentsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_segments_emitted_total",
			Help:      "Total audio segments handed to the transcriber, by kind",
		}, []string{"kind"}),

		TranscriptionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_latency_seconds",
			Help:      "Latency of segment transcription calls",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		TranscriptionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_errors_total",
			Help:      "Total transcription failures, by kind",
		}, []string{"kind"}),
		ExtractionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_latency_seconds",
			Help:      "Latency of extractor calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20},
		}),
		ExtractionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_errors_total",
			Help:      "Total extraction failures, by kind",
		}, []string{"kind"}),
		PersistenceResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_results_total",
			Help:      "Outcomes of end-of-call persistence, by status",
		}, []string{"status"}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordSessionStart records a new session being created.
func (m *Metrics) RecordSessionStart() {
	m.SessionsCreated.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending.
func (m *Metrics) RecordSessionEnd(cause string, durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionsEnded.WithLabelValues(cause).Inc()
	m.SessionDuration.Observe(durationSeconds)
	if cause == "swept" {
		m.SessionsSwept.Inc()
	}
}

// RecordChunk records one transcript chunk fully processed.
func (m *Metrics) RecordChunk(source string, latencySeconds float64, empty bool) {
	m.ChunksIngested.WithLabelValues(source).Inc()
	m.ChunkLatency.Observe(latencySeconds)
	if empty {
		m.EmptyPartials.Inc()
	} else {
		m.MergesApplied.Inc()
	}
}

// RecordTriageEscalation records the record moving to a higher triage tier.
func (m *Metrics) RecordTriageEscalation(tier string) {
	m.TriageEscalated.WithLabelValues(tier).Inc()
}

// RecordAudio records raw audio bytes received.
func (m *Metrics) RecordAudio(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
}

// RecordSegment records an audio segment handed to the transcriber.
func (m *Metrics) RecordSegment(kind string) {
	m.SegmentsEmitted.WithLabelValues(kind).Inc()
}

// RecordTranscription records a segment transcription attempt.
func (m *Metrics) RecordTranscription(err error, kind string, latencySeconds float64) {
	m.TranscriptionLatency.Observe(latencySeconds)
	if err != nil {
		m.TranscriptionErrors.WithLabelValues(kind).Inc()
	}
}

// RecordExtraction records an extractor call.
func (m *Metrics) RecordExtraction(err error, kind string, latencySeconds float64) {
	m.ExtractionLatency.Observe(latencySeconds)
	if err != nil {
		m.ExtractionErrors.WithLabelValues(kind).Inc()
	}
}

// RecordPersistence records the outcome of an end-of-call save.
func (m *Metrics) RecordPersistence(status string) {
	m.PersistenceResults.WithLabelValues(status).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
