package events

import (
	"context"
	"testing"
	"time"

	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/canonical"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerRecord != nil || p.writerEnded != nil || p.writerCaption != nil {
				t.Error("expected nil writers when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	cfg := &Config{
		Enabled:      false,
		Brokers:      []string{"localhost:9092"},
		TopicRecord:  "calls.record-updated",
		TopicEnded:   "calls.ended",
		TopicCaption: "calls.captions",
	}

	p := New(cfg)

	if p.topicRecord != "calls.record-updated" {
		t.Errorf("topic record = %s", p.topicRecord)
	}
	if p.topicEnded != "calls.ended" {
		t.Errorf("topic ended = %s", p.topicEnded)
	}
	if p.topicCaption != "calls.captions" {
		t.Errorf("topic caption = %s", p.topicCaption)
	}
}

func TestPublisher_DisabledPublishesAreNoops(t *testing.T) {
	p := New(&Config{Enabled: false})
	ctx := context.Background()

	rec := canonical.New()
	rec.Street = "Apoquindo"

	if err := p.PublishRecordUpdated(ctx, RecordUpdated{
		SessionID:  "s-1",
		ChunkCount: 1,
		Record:     rec,
		UpdatedAt:  time.Now(),
	}); err != nil {
		t.Errorf("record updated: %v", err)
	}

	if err := p.PublishCaption(ctx, Caption{
		SessionID: "s-1",
		Text:      "estoy en Apoquindo",
		Final:     false,
		At:        time.Now(),
	}); err != nil {
		t.Errorf("caption: %v", err)
	}

	if err := p.PublishCallEnded(ctx, CallEnded{
		SessionID:     "s-1",
		Cause:         "stop",
		ChunkCount:    1,
		Record:        rec,
		PersistStatus: "saved",
		EndedAt:       time.Now(),
	}); err != nil {
		t.Errorf("call ended: %v", err)
	}
}

func TestPublisher_CloseWithoutWriters(t *testing.T) {
	if err := New(nil).Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}
