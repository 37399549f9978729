// Package google provides a Google Cloud Speech-to-Text streaming adapter
// for continuous call recognition.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/transcription"
)

// Config controls the streaming recognition session.
type Config struct {
	LanguageCode   string
	SampleRateHz   int
	InterimResults bool
	AudioEncoding  string
	PhraseHints    []string
}

// DefaultConfig matches telephony media streams from Chilean callers:
// 8 kHz mu-law, es-CL, interim results for live captions, and phrase hints
// biased toward emergency vocabulary and Santiago communes.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "es-CL",
		SampleRateHz:   8000,
		InterimResults: true,
		AudioEncoding:  "MULAW",
		PhraseHints: []string{
			"ambulancia", "no respira", "inconsciente", "paro cardíaco",
			"Las Condes", "Providencia", "Vitacura", "Ñuñoa", "La Florida",
			"Apoquindo", "Irarrázaval", "departamento", "comuna",
		},
	}
}

func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	switch s {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}

// closeDrainWait bounds how long Close waits for the receive loop to drain
// trailing finals after the send side is closed.
const closeDrainWait = 3 * time.Second

// Adapter implements transcription.StreamingAdapter using Google Cloud
// Speech-to-Text. Requires GOOGLE_APPLICATION_CREDENTIALS.
type Adapter struct {
	client *speech.Client
	config Config
	open   func(ctx context.Context) (speechpb.Speech_StreamingRecognizeClient, error)
	stream speechpb.Speech_StreamingRecognizeClient
	cb     transcription.Callback
	done   chan struct{}
}

// New creates the adapter and its underlying client.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	return &Adapter{client: c, config: cfg, open: func(ctx context.Context) (speechpb.Speech_StreamingRecognizeClient, error) {
		return c.StreamingRecognize(ctx)
	}}, nil
}

// Start opens a streaming recognition session, sends the initial config and
// launches the receive loop that surfaces results through the callback.
func (a *Adapter) Start(ctx context.Context, cb transcription.Callback) error {
	stream, err := a.open(ctx)
	if err != nil {
		return classify(err)
	}
	a.stream = stream
	a.cb = cb

	cfg := &speechpb.RecognitionConfig{
		Encoding:        parseAudioEncoding(a.config.AudioEncoding),
		SampleRateHertz: int32(a.config.SampleRateHz),
		LanguageCode:    a.config.LanguageCode,
	}
	if len(a.config.PhraseHints) > 0 {
		cfg.SpeechContexts = []*speechpb.SpeechContext{{Phrases: a.config.PhraseHints}}
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:         cfg,
				InterimResults: a.config.InterimResults,
			},
		},
	})
	if err != nil {
		return classify(err)
	}
	a.done = make(chan struct{})
	go a.listen()
	return nil
}

// SendAudio forwards one raw audio frame.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	err := a.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// Close half-closes the send side, then waits briefly for the receive loop
// to deliver any trailing finals before returning.
func (a *Adapter) Close() error {
	if a.stream == nil {
		return nil
	}
	err := a.stream.CloseSend()
	if a.done != nil {
		select {
		case <-a.done:
		case <-time.After(closeDrainWait):
		}
	}
	return err
}

// listen receives recognition responses and fans them into the callback
// until the stream ends. A clean end after CloseSend is not an error.
func (a *Adapter) listen() {
	defer close(a.done)
	for {
		resp, err := a.stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				a.cb.OnError(classify(err))
			}
			return
		}
		for _, r := range resp.Results {
			if len(r.Alternatives) == 0 {
				continue
			}
			alt := r.Alternatives[0]
			if r.IsFinal {
				a.cb.OnFinal(alt.Transcript, float64(alt.Confidence))
			} else {
				a.cb.OnPartial(alt.Transcript)
			}
		}
	}
}

// classify wraps retryable gRPC failures in the transcription package's
// transient error so callers can keep the session alive.
func classify(err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return fmt.Errorf("%w: %v", transcription.ErrUnavailable, err)
	}
	return err
}
