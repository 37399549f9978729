// Package whisper implements the segment transcriber against an
// OpenAI-compatible audio transcription endpoint.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/transcription"
)

// initialPrompt biases recognition toward Chilean emergency-call vocabulary.
const initialPrompt = "Llamada de emergencia médica en Chile. Direcciones y comunas de Santiago, síntomas, estado del paciente."

// Config contains the transcription endpoint settings.
type Config struct {
	Endpoint   string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// Client POSTs WAV segments as multipart uploads and returns the recognized
// text. Transient failures are retried with exponential backoff.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient validates the config and builds a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("whisper endpoint cannot be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type response struct {
	Text string `json:"text"`
}

// Transcribe implements transcription.Transcriber.
func (c *Client) Transcribe(ctx context.Context, wav []byte, locale string) (string, error) {
	if len(wav) == 0 {
		return "", fmt.Errorf("empty audio segment")
	}

	body, contentType, err := c.buildForm(wav, locale)
	if err != nil {
		return "", fmt.Errorf("build transcription form: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		text, retryable, err := c.post(ctx, body, contentType)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
		log.Warn().Err(err).Int("attempt", attempt+1).Msg("transcription attempt failed")
	}
	return "", fmt.Errorf("%w: %v", transcription.ErrUnavailable, lastErr)
}

func (c *Client) post(ctx context.Context, body []byte, contentType string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Content-Type", contentType)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", true, fmt.Errorf("status %d", resp.StatusCode)
	default:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", false, fmt.Errorf("status %d: %s", resp.StatusCode, raw)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", false, fmt.Errorf("decode transcription response: %w", err)
	}
	return out.Text, false, nil
}

func (c *Client) buildForm(wav []byte, locale string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	file, err := w.CreateFormFile("file", "segment.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := file.Write(wav); err != nil {
		return nil, "", err
	}

	fields := map[string]string{
		"model":           c.cfg.Model,
		"language":        languageOf(locale),
		"prompt":          initialPrompt,
		"response_format": "json",
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// languageOf reduces a BCP-47 locale to the bare language code the
// transcription API expects ("es-CL" -> "es").
func languageOf(locale string) string {
	for i := 0; i < len(locale); i++ {
		if locale[i] == '-' || locale[i] == '_' {
			return locale[:i]
		}
	}
	return locale
}
