// Package app wires configuration into the running service: logger, call
// pipeline, HTTP surfaces and the idle session sweeper.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/audio"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/canonical"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/config"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/events"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/extraction"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/extraction/llm"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/observability"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/observability/logging"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/persistence"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/server"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/session"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/transcription"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/transcription/google"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/transcription/mock"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/transcription/whisper"
)

// Application holds process-wide state for the service.
type Application struct {
	Cfg       *config.Config
	Processor *session.Processor

	publisher *events.Publisher
	httpSrv   *http.Server
	metrics   *observability.Server
	sweepStop chan struct{}
	sweepDone chan struct{}
}

// New constructs the application from configuration. Collaborators without
// credentials fall back to their disabled or mock variants so a bare
// environment still boots for local development.
func New(cfg *config.Config) (*Application, error) {
	setupLogger(cfg)

	gaz, err := canonical.LoadGazetteer(cfg.Gazetteer.Path)
	if err != nil {
		return nil, fmt.Errorf("load gazetteer: %w", err)
	}

	var extractor extraction.Extractor
	if cfg.Extractor.BaseURL != "" {
		extractor = llm.New(llm.Config{
			BaseURL:     cfg.Extractor.BaseURL,
			APIKey:      cfg.Extractor.APIKey,
			Model:       cfg.Extractor.Model,
			MaxTokens:   cfg.Extractor.MaxTokens,
			Temperature: cfg.Extractor.Temperature,
			Timeout:     cfg.Extractor.Timeout,
		})
	} else {
		log.Warn().Msg("no extractor endpoint configured, running with extraction disabled")
		extractor = extraction.Disabled{}
	}

	var sink persistence.Sink
	if cfg.Persistence.Endpoint != "" {
		sink, err = persistence.NewHTTPSink(cfg.Persistence.Endpoint, cfg.Persistence.APIKey, cfg.Persistence.Timeout)
		if err != nil {
			return nil, fmt.Errorf("persistence sink: %w", err)
		}
	} else {
		log.Warn().Msg("no persistence endpoint configured, finished calls are not saved")
		sink = persistence.Disabled{}
	}

	publisher := events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicRecord:  cfg.Kafka.TopicRecord,
		TopicEnded:   cfg.Kafka.TopicEnded,
		TopicCaption: cfg.Kafka.TopicCaption,
	})

	transcriber, streamFactory, err := buildSTT(cfg)
	if err != nil {
		return nil, err
	}

	proc, err := session.NewProcessor(session.ProcessorConfig{
		Locale: cfg.STT.LanguageCode,
		AudioFormat: audio.Format{
			Encoding:   cfg.Audio.Encoding,
			SampleRate: cfg.Audio.SampleRateHz,
			Channels:   cfg.Audio.Channels,
			BitDepth:   cfg.Audio.BitDepth,
		},
		SegmentSeconds: cfg.Audio.SegmentSeconds,
		EndGrace:       cfg.Session.EndGrace,
	}, transcriber, extractor, canonical.NewNormalizer(gaz), publisher, sink)
	if err != nil {
		return nil, fmt.Errorf("build processor: %w", err)
	}

	srv := server.New(proc, publisher, streamFactory)
	a := &Application{
		Cfg:       cfg,
		Processor: proc,
		publisher: publisher,
		httpSrv: &http.Server{
			Addr:              ":" + cfg.Service.HTTPPort,
			Handler:           server.NewRouter(srv),
			ReadHeaderTimeout: 10 * time.Second,
		},
		metrics:   observability.NewServer(cfg.Observability.MetricsAddr),
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	return a, nil
}

// buildSTT selects the speech-to-text strategy. Whisper transcribes buffered
// segments through the processor; google and mock run continuous recognition
// per media stream.
func buildSTT(cfg *config.Config) (transcription.Transcriber, server.StreamFactory, error) {
	switch cfg.STT.Provider {
	case "whisper":
		client, err := whisper.NewClient(whisper.Config{
			Endpoint:   cfg.Whisper.Endpoint,
			APIKey:     cfg.Whisper.APIKey,
			Model:      cfg.Whisper.Model,
			Timeout:    cfg.Whisper.Timeout,
			MaxRetries: cfg.Whisper.MaxRetries,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("whisper client: %w", err)
		}
		return client, nil, nil
	case "google":
		gcfg := google.DefaultConfig()
		gcfg.LanguageCode = cfg.STT.LanguageCode
		gcfg.SampleRateHz = cfg.Audio.SampleRateHz
		gcfg.InterimResults = cfg.STT.InterimResults
		gcfg.AudioEncoding = cfg.STT.AudioEncoding
		factory := func(ctx context.Context) (transcription.StreamingAdapter, error) {
			return google.New(ctx, gcfg)
		}
		return nil, factory, nil
	case "mock":
		factory := func(ctx context.Context) (transcription.StreamingAdapter, error) {
			return mock.New(), nil
		}
		return nil, factory, nil
	}
	return nil, nil, fmt.Errorf("unknown stt provider %q", cfg.STT.Provider)
}

// Start brings up the listeners and the idle session sweeper.
func (a *Application) Start() error {
	a.metrics.Start()
	go a.sweepLoop()
	log.Info().Str("addr", a.httpSrv.Addr).Msg("http server starting")
	if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains the listeners and stops the sweeper.
func (a *Application) Shutdown(ctx context.Context) {
	close(a.sweepStop)
	if err := a.httpSrv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if err := a.metrics.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("metrics shutdown")
	}
	<-a.sweepDone
	if err := a.publisher.Close(); err != nil {
		log.Warn().Err(err).Msg("publisher close")
	}
	log.Info().Msg("service shut down")
}

// sweepLoop periodically removes idle sessions.
func (a *Application) sweepLoop() {
	defer close(a.sweepDone)
	ticker := time.NewTicker(a.Cfg.Session.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := a.Processor.SweepIdle(a.Cfg.Session.IdleMaxAge); n > 0 {
				log.Info().Int("removed", n).Msg("idle sessions swept")
			}
		case <-a.sweepStop:
			return
		}
	}
}

func setupLogger(cfg *config.Config) {
	lc := logging.DefaultConfig()
	lc.Level = strings.ToLower(cfg.Observability.LogLevel)
	lc.Service = cfg.Service.Name
	if os.Getenv("ENV") == "dev" {
		lc.Format = "console"
	}
	logging.Init(lc)

	log.Info().Str("logLevel", lc.Level).Msg("logger configured")
}
