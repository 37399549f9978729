package whisper

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/transcription"
)

func TestClient_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("language"); got != "es" {
			t.Errorf("language = %q, want es", got)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q", got)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		data, _ := io.ReadAll(f)
		if len(data) != 4 {
			t.Errorf("uploaded %d bytes, want 4", len(data))
		}
		io.WriteString(w, `{"text":"estoy en Apoquindo"}`)
	}))
	defer srv.Close()

	c, err := NewClient(Config{Endpoint: srv.URL, Model: "whisper-1"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	text, err := c.Transcribe(context.Background(), []byte{1, 2, 3, 4}, "es-CL")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "estoy en Apoquindo" {
		t.Errorf("text = %q", text)
	}
}

func TestClient_TranscribeRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"text":"hola"}`)
	}))
	defer srv.Close()

	c, err := NewClient(Config{Endpoint: srv.URL, MaxRetries: 3})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	text, err := c.Transcribe(context.Background(), []byte{1}, "es")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "hola" || calls != 3 {
		t.Errorf("text = %q after %d calls", text, calls)
	}
}

func TestClient_TranscribeGivesUpAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewClient(Config{Endpoint: srv.URL, MaxRetries: 2})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = c.Transcribe(context.Background(), []byte{1}, "es")
	if !errors.Is(err, transcription.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestClient_TranscribeClientErrorIsNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := NewClient(Config{Endpoint: srv.URL, MaxRetries: 3})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := c.Transcribe(context.Background(), []byte{1}, "es"); err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Errorf("made %d calls, want 1", calls)
	}
}

func TestNewClient_RequiresEndpoint(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected an error for an empty endpoint")
	}
}

func TestLanguageOf(t *testing.T) {
	tests := []struct{ in, want string }{
		{"es-CL", "es"},
		{"es_CL", "es"},
		{"es", "es"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := languageOf(tt.in); got != tt.want {
			t.Errorf("languageOf(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
