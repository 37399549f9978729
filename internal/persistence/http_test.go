package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/canonical"
)

func TestHTTPSink_Save(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emergency-calls" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer key" {
			t.Errorf("auth = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s, err := NewHTTPSink(srv.URL, "key", 0)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	rec := canonical.New()
	rec.Triage = canonical.TriageRed
	req := Request{
		SessionID:       "s-1",
		DispatcherID:    "d-9",
		FullTranscript:  "no respira",
		Record:          rec,
		DurationSeconds: 42.5,
		ChunkCount:      3,
	}
	if err := s.Save(context.Background(), req); err != nil {
		t.Fatalf("save: %v", err)
	}

	if got.SessionID != "s-1" || got.ChunkCount != 3 || got.Record.Triage != canonical.TriageRed {
		t.Errorf("backend received %+v", got)
	}
}

func TestHTTPSink_SaveWithoutDispatcherIsSkipped(t *testing.T) {
	s, err := NewHTTPSink("http://example.invalid", "", 0)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	err = s.Save(context.Background(), Request{SessionID: "s-1"})
	if !errors.Is(err, ErrMissingDispatcher) {
		t.Fatalf("err = %v, want ErrMissingDispatcher", err)
	}
	if StatusOf(err) != StatusSkipped {
		t.Errorf("status = %q, want skipped", StatusOf(err))
	}
}

func TestHTTPSink_SaveBackendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, err := NewHTTPSink(srv.URL, "", 0)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	err = s.Save(context.Background(), Request{SessionID: "s-1", DispatcherID: "d-1"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if StatusOf(err) != StatusFailed {
		t.Errorf("status = %q, want failed", StatusOf(err))
	}
}

func TestStatusOf(t *testing.T) {
	if got := StatusOf(nil); got != StatusSaved {
		t.Errorf("StatusOf(nil) = %q", got)
	}
}

func TestNewHTTPSink_RequiresEndpoint(t *testing.T) {
	if _, err := NewHTTPSink("", "", 0); err == nil {
		t.Fatal("expected an error")
	}
}

func TestDisabledSink(t *testing.T) {
	if err := (Disabled{}).Save(context.Background(), Request{}); err != nil {
		t.Errorf("disabled save: %v", err)
	}
}
