// Package server exposes the call pipeline over HTTP: a JSON API for session
// management and text ingest, plus a Twilio-style media stream websocket for
// live call audio.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/events"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/session"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/transcription"
)

// maxAudioBody bounds one raw audio chunk posted over HTTP.
const maxAudioBody = 1 << 20

// StreamFactory opens a continuous recognizer for one call. When nil, the
// server runs in buffered mode: audio is segmented and transcribed via the
// processor's batch transcriber instead.
type StreamFactory func(ctx context.Context) (transcription.StreamingAdapter, error)

// Server handles the HTTP and websocket surfaces.
type Server struct {
	proc      *session.Processor
	publisher *events.Publisher
	newStream StreamFactory
	upgrader  websocket.Upgrader
}

func New(proc *session.Processor, publisher *events.Publisher, newStream StreamFactory) *Server {
	if publisher == nil {
		publisher = events.New(nil)
	}
	return &Server{
		proc:      proc,
		publisher: publisher,
		newStream: newStream,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Telephony providers connect from their own origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type ingestTextRequest struct {
	Text string `json:"text"`
}

type sweepRequest struct {
	MaxAgeSeconds int `json:"max_age_seconds"`
}

type sweepResponse struct {
	RemovedCount int `json:"removed_count"`
}

func (s *Server) handleIngestText(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req ingestTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	res, err := s.proc.IngestText(r.Context(), id, req.Text)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleIngestAudio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAudioBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable body"})
		return
	}
	res, err := s.proc.IngestChunk(r.Context(), id, body)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, ok := s.proc.Snapshot(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if d := r.URL.Query().Get("dispatcher_id"); d != "" {
		s.proc.SetDispatcher(id, d)
	}
	snap, ok := s.proc.EndSession(r.Context(), id, session.EndCauseAPI)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	if req.MaxAgeSeconds <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "max_age_seconds must be positive"})
		return
	}
	n := s.proc.SweepIdle(time.Duration(req.MaxAgeSeconds) * time.Second)
	writeJSON(w, http.StatusOK, sweepResponse{RemovedCount: n})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("response encode failed")
	}
}
