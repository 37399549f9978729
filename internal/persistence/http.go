package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// HTTPSink posts finished calls to the dispatch backend.
type HTTPSink struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewHTTPSink builds a sink for the given backend endpoint.
func NewHTTPSink(endpoint, apiKey string, timeout time.Duration) (*HTTPSink, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("persistence endpoint cannot be empty")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSink{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

// Save implements Sink. Calls without a dispatcher are skipped because the
// backend requires one to file the incident.
func (s *HTTPSink) Save(ctx context.Context, r Request) error {
	if r.DispatcherID == "" {
		return ErrMissingDispatcher
	}

	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal save request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.endpoint+"/emergency-calls", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build save request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Warn().
			Int("status", resp.StatusCode).
			Str("sessionID", r.SessionID).
			Msg("persistence backend rejected save")
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, raw)
	}
	return nil
}
