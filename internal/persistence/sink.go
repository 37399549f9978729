// Package persistence saves finished calls to the dispatch database. Saving
// is best-effort: the session teardown never fails because the sink does,
// the outcome is only surfaced as a soft status on the final snapshot.
package persistence

import (
	"context"
	"errors"

	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/canonical"
)

var (
	// ErrUnavailable marks sink failures that callers record and move past.
	ErrUnavailable = errors.New("persistence sink unavailable")

	// ErrMissingDispatcher is returned when the call never had a dispatcher
	// assigned; such calls are skipped, not failed.
	ErrMissingDispatcher = errors.New("dispatcher id required for save")
)

// Soft statuses recorded on the final session snapshot.
const (
	StatusSaved    = "saved"
	StatusFailed   = "failed"
	StatusSkipped  = "skipped"
	StatusDisabled = "disabled"
)

// Request is the end-of-call payload.
type Request struct {
	SessionID       string           `json:"session_id"`
	DispatcherID    string           `json:"dispatcher_id"`
	FullTranscript  string           `json:"full_transcript"`
	Record          canonical.Record `json:"canonical"`
	DurationSeconds float64          `json:"duration_seconds"`
	ChunkCount      int              `json:"chunk_count"`
}

// Sink stores one finished call. Invoked exactly once per session, at end.
type Sink interface {
	Save(ctx context.Context, req Request) error
}

// StatusOf maps a save outcome to its soft status.
func StatusOf(err error) string {
	switch {
	case err == nil:
		return StatusSaved
	case errors.Is(err, ErrMissingDispatcher):
		return StatusSkipped
	default:
		return StatusFailed
	}
}

// Disabled is the sink used when no backend is configured.
type Disabled struct{}

// Save reports success without storing anything.
func (Disabled) Save(ctx context.Context, req Request) error { return nil }
