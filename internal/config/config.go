// Package config loads service configuration from environment variables
// with documented defaults.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration.
type Config struct {
	Service       ServiceConfig
	Observability ObservabilityConfig
	Audio         AudioConfig
	STT           STTConfig
	Whisper       WhisperConfig
	Extractor     ExtractorConfig
	Kafka         KafkaConfig
	Persistence   PersistenceConfig
	Session       SessionConfig
	Gazetteer     GazetteerConfig
}

// ServiceConfig identifies the service and its main listener.
type ServiceConfig struct {
	Name     string
	HTTPPort string
}

// ObservabilityConfig controls logging and the metrics listener.
type ObservabilityConfig struct {
	LogLevel    string
	MetricsAddr string
}

// AudioConfig describes inbound call audio and segmentation.
type AudioConfig struct {
	SampleRateHz   int
	Channels       int
	BitDepth       int
	Encoding       string // pcm or mulaw
	SegmentSeconds int
}

// STTConfig selects and tunes the speech-to-text strategy.
type STTConfig struct {
	// Provider: "whisper" (threshold-buffered segments), "google"
	// (continuous streaming) or "mock".
	Provider       string
	LanguageCode   string
	InterimResults bool
	AudioEncoding  string
}

// WhisperConfig configures the segment transcription endpoint.
type WhisperConfig struct {
	Endpoint   string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// ExtractorConfig configures the LLM extraction endpoint.
type ExtractorConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// KafkaConfig configures dispatch-board event publishing.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicRecord  string
	TopicEnded   string
	TopicCaption string
}

// PersistenceConfig configures the end-of-call save backend. An empty
// endpoint disables persistence.
type PersistenceConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// SessionConfig controls session lifecycle timing.
type SessionConfig struct {
	IdleMaxAge    time.Duration
	SweepInterval time.Duration
	EndGrace      time.Duration
}

// GazetteerConfig points at an optional street-to-commune table override.
type GazetteerConfig struct {
	Path string
}

// Load reads the configuration from the environment.
func Load() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     envOrDefault("SERVICE_NAME", "tiqn-backend"),
			HTTPPort: envOrDefault("HTTP_PORT", "8080"),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
		Audio: AudioConfig{
			SampleRateHz:   envOrDefaultInt("AUDIO_SAMPLE_RATE_HZ", 8000),
			Channels:       envOrDefaultInt("AUDIO_CHANNELS", 1),
			BitDepth:       envOrDefaultInt("AUDIO_BIT_DEPTH", 8),
			Encoding:       envOrDefault("AUDIO_ENCODING", "mulaw"),
			SegmentSeconds: envOrDefaultInt("AUDIO_SEGMENT_SECONDS", 5),
		},
		STT: STTConfig{
			Provider:       envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode:   envOrDefault("STT_LANGUAGE_CODE", "es-CL"),
			InterimResults: envOrDefaultBool("STT_INTERIM_RESULTS", true),
			AudioEncoding:  envOrDefault("STT_AUDIO_ENCODING", "MULAW"),
		},
		Whisper: WhisperConfig{
			Endpoint:   os.Getenv("WHISPER_ENDPOINT"),
			APIKey:     os.Getenv("WHISPER_API_KEY"),
			Model:      envOrDefault("WHISPER_MODEL", "whisper-1"),
			Timeout:    envOrDefaultDuration("WHISPER_TIMEOUT", 30*time.Second),
			MaxRetries: envOrDefaultInt("WHISPER_MAX_RETRIES", 3),
		},
		Extractor: ExtractorConfig{
			BaseURL:     os.Getenv("EXTRACTOR_BASE_URL"),
			APIKey:      os.Getenv("EXTRACTOR_API_KEY"),
			Model:       envOrDefault("EXTRACTOR_MODEL", "gpt-4o-mini"),
			MaxTokens:   envOrDefaultInt("EXTRACTOR_MAX_TOKENS", 2048),
			Temperature: envOrDefaultFloat("EXTRACTOR_TEMPERATURE", 0),
			Timeout:     envOrDefaultDuration("EXTRACTOR_TIMEOUT", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      envOrDefaultList("KAFKA_BROKERS", nil),
			TopicRecord:  envOrDefault("KAFKA_TOPIC_RECORD", "calls.record-updated"),
			TopicEnded:   envOrDefault("KAFKA_TOPIC_ENDED", "calls.ended"),
			TopicCaption: envOrDefault("KAFKA_TOPIC_CAPTION", "calls.captions"),
		},
		Persistence: PersistenceConfig{
			Endpoint: os.Getenv("PERSISTENCE_ENDPOINT"),
			APIKey:   os.Getenv("PERSISTENCE_API_KEY"),
			Timeout:  envOrDefaultDuration("PERSISTENCE_TIMEOUT", 10*time.Second),
		},
		Session: SessionConfig{
			IdleMaxAge:    envOrDefaultDuration("SESSION_IDLE_MAX_AGE", time.Hour),
			SweepInterval: envOrDefaultDuration("SESSION_SWEEP_INTERVAL", time.Minute),
			EndGrace:      envOrDefaultDuration("SESSION_END_GRACE", 5*time.Second),
		},
		Gazetteer: GazetteerConfig{
			Path: os.Getenv("GAZETTEER_PATH"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
