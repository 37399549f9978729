// Package events publishes call lifecycle events to Kafka for the live
// dispatch board: record updates as the ficha fills in, live captions, and a
// terminal call-ended event.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/canonical"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/observability/metrics"
)

// RecordUpdated is emitted after every chunk that changed the session record.
type RecordUpdated struct {
	SessionID  string           `json:"session_id"`
	ChunkCount int              `json:"chunk_count"`
	Record     canonical.Record `json:"record"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// CallEnded is emitted once when a session closes.
type CallEnded struct {
	SessionID       string           `json:"session_id"`
	Cause           string           `json:"cause"`
	DurationSeconds float64          `json:"duration_seconds"`
	ChunkCount      int              `json:"chunk_count"`
	Record          canonical.Record `json:"record"`
	PersistStatus   string           `json:"persist_status"`
	EndedAt         time.Time        `json:"ended_at"`
}

// Caption is an operator-facing live transcript fragment. Interim fragments
// are marked non-final and never reach extraction.
type Caption struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Final     bool      `json:"final"`
	At        time.Time `json:"at"`
}

// Publisher writes call events to per-kind Kafka topics.
type Publisher struct {
	writerRecord  *kafka.Writer
	writerEnded   *kafka.Writer
	writerCaption *kafka.Writer
	topicRecord   string
	topicEnded    string
	topicCaption  string
	enabled       bool
	metrics       *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers      []string
	TopicRecord  string
	TopicEnded   string
	TopicCaption string
	Enabled      bool
}

// New creates a Kafka event publisher with one topic per event kind. A nil
// or disabled config yields a log-only publisher, so callers never need to
// branch on whether Kafka is configured.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{enabled: false, metrics: m}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			topicRecord:  cfg.TopicRecord,
			topicEnded:   cfg.TopicEnded,
			topicCaption: cfg.TopicCaption,
			enabled:      false,
			metrics:      m,
		}
	}

	// Longer dial timeouts for DNS resolution in Kubernetes.
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicRecord", cfg.TopicRecord).
		Str("topicEnded", cfg.TopicEnded).
		Str("topicCaption", cfg.TopicCaption).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerRecord:  newWriter(cfg.TopicRecord),
		writerEnded:   newWriter(cfg.TopicEnded),
		writerCaption: newWriter(cfg.TopicCaption),
		topicRecord:   cfg.TopicRecord,
		topicEnded:    cfg.TopicEnded,
		topicCaption:  cfg.TopicCaption,
		enabled:       true,
		metrics:       m,
	}
}

// PublishRecordUpdated publishes an updated session record.
func (p *Publisher) PublishRecordUpdated(ctx context.Context, ev RecordUpdated) error {
	return p.publish(ctx, p.writerRecord, p.topicRecord, "record_updated", ev.SessionID, ev)
}

// PublishCallEnded publishes the terminal session event.
func (p *Publisher) PublishCallEnded(ctx context.Context, ev CallEnded) error {
	return p.publish(ctx, p.writerEnded, p.topicEnded, "call_ended", ev.SessionID, ev)
}

// PublishCaption publishes a live caption fragment.
func (p *Publisher) PublishCaption(ctx context.Context, ev Caption) error {
	return p.publish(ctx, p.writerCaption, p.topicCaption, "caption", ev.SessionID, ev)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes all Kafka writers.
func (p *Publisher) Close() error {
	var err error
	for _, w := range []*kafka.Writer{p.writerRecord, p.writerEnded, p.writerCaption} {
		if w == nil {
			continue
		}
		if e := w.Close(); e != nil {
			log.Error().Err(e).Str("topic", w.Topic).Msg("Error closing Kafka writer")
			err = e
		}
	}
	return err
}
