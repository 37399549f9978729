package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/transcription"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LanguageCode != "es-CL" {
		t.Errorf("expected default language 'es-CL', got %s", cfg.LanguageCode)
	}
	if cfg.SampleRateHz != 8000 {
		t.Errorf("expected default sample rate 8000, got %d", cfg.SampleRateHz)
	}
	if cfg.InterimResults != true {
		t.Errorf("expected default interim results true, got %v", cfg.InterimResults)
	}
	if cfg.AudioEncoding != "MULAW" {
		t.Errorf("expected default encoding 'MULAW', got %s", cfg.AudioEncoding)
	}
	if len(cfg.PhraseHints) == 0 {
		t.Error("expected default phrase hints")
	}
}

func TestParseAudioEncoding(t *testing.T) {
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16},
		{"MULAW", speechpb.RecognitionConfig_MULAW},
		{"FLAC", speechpb.RecognitionConfig_FLAC},
		{"AMR", speechpb.RecognitionConfig_AMR},
		{"AMR_WB", speechpb.RecognitionConfig_AMR_WB},
		{"OGG_OPUS", speechpb.RecognitionConfig_OGG_OPUS},
		{"SPEEX_WITH_HEADER_BYTE", speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE},
		{"WEBM_OPUS", speechpb.RecognitionConfig_WEBM_OPUS},
		{"UNKNOWN", speechpb.RecognitionConfig_LINEAR16},
		{"mulaw", speechpb.RecognitionConfig_LINEAR16},
		{"", speechpb.RecognitionConfig_LINEAR16},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"unavailable", status.Error(codes.Unavailable, "down"), true},
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), true},
		{"rate limited", status.Error(codes.ResourceExhausted, "quota"), true},
		{"aborted", status.Error(codes.Aborted, "conflict"), true},
		{"auth failure", status.Error(codes.Unauthenticated, "creds"), false},
		{"bad request", status.Error(codes.InvalidArgument, "encoding"), false},
		{"plain error", fmt.Errorf("socket closed"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(classify(tt.err), transcription.ErrUnavailable)
			if got != tt.transient {
				t.Errorf("classify(%v) transient = %v, want %v", tt.err, got, tt.transient)
			}
		})
	}
}

type fakeRecognizeStream struct {
	grpc.ClientStream

	mu         sync.Mutex
	sent       []*speechpb.StreamingRecognizeRequest
	sendClosed bool

	resps   chan *speechpb.StreamingRecognizeResponse
	recvErr error
}

func newFakeRecognizeStream() *fakeRecognizeStream {
	return &fakeRecognizeStream{
		resps:   make(chan *speechpb.StreamingRecognizeResponse, 8),
		recvErr: io.EOF,
	}
}

func (f *fakeRecognizeStream) Send(req *speechpb.StreamingRecognizeRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	return nil
}

func (f *fakeRecognizeStream) Recv() (*speechpb.StreamingRecognizeResponse, error) {
	resp, ok := <-f.resps
	if !ok {
		return nil, f.recvErr
	}
	return resp, nil
}

func (f *fakeRecognizeStream) CloseSend() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendClosed = true
	return nil
}

func (f *fakeRecognizeStream) result(text string, final bool, confidence float32) {
	f.resps <- &speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{{
			IsFinal: final,
			Alternatives: []*speechpb.SpeechRecognitionAlternative{{
				Transcript: text,
				Confidence: confidence,
			}},
		}},
	}
}

func (f *fakeRecognizeStream) sentRequests() []*speechpb.StreamingRecognizeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*speechpb.StreamingRecognizeRequest, len(f.sent))
	copy(out, f.sent)
	return out
}

type captureCallback struct {
	mu       sync.Mutex
	partials []string
	finals   []string
	errs     []error
}

func (c *captureCallback) OnPartial(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partials = append(c.partials, text)
}

func (c *captureCallback) OnFinal(text string, confidence float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finals = append(c.finals, text)
}

func (c *captureCallback) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func newTestAdapter(fs *fakeRecognizeStream) *Adapter {
	return &Adapter{
		config: DefaultConfig(),
		open: func(ctx context.Context) (speechpb.Speech_StreamingRecognizeClient, error) {
			return fs, nil
		},
	}
}

func TestStart_SendsConfigBeforeAudio(t *testing.T) {
	fs := newFakeRecognizeStream()
	a := newTestAdapter(fs)
	cb := &captureCallback{}

	if err := a.Start(context.Background(), cb); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := a.SendAudio(context.Background(), []byte{0x7f, 0x7f}); err != nil {
		t.Fatalf("send audio: %v", err)
	}
	close(fs.resps)
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sent := fs.sentRequests()
	if len(sent) != 2 {
		t.Fatalf("sent %d requests, want 2", len(sent))
	}
	cfg := sent[0].GetStreamingConfig()
	if cfg == nil {
		t.Fatal("first request must carry the streaming config")
	}
	if cfg.Config.LanguageCode != "es-CL" {
		t.Errorf("language = %q, want es-CL", cfg.Config.LanguageCode)
	}
	if got := sent[1].GetAudioContent(); len(got) != 2 {
		t.Errorf("second request audio = %d bytes, want 2", len(got))
	}
	if !fs.sendClosed {
		t.Error("close must half-close the send side")
	}
}

func TestStart_DeliversResultsToCallback(t *testing.T) {
	fs := newFakeRecognizeStream()
	fs.result("estoy en", false, 0)
	fs.result("estoy en Apoquindo 1234", true, 0.92)
	close(fs.resps)

	a := newTestAdapter(fs)
	cb := &captureCallback{}
	if err := a.Start(context.Background(), cb); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Close waits for the receive loop to drain queued responses.
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if len(cb.partials) != 1 || cb.partials[0] != "estoy en" {
		t.Errorf("partials = %v, want [estoy en]", cb.partials)
	}
	if len(cb.finals) != 1 || cb.finals[0] != "estoy en Apoquindo 1234" {
		t.Errorf("finals = %v, want the final transcript", cb.finals)
	}
	if len(cb.errs) != 0 {
		t.Errorf("clean stream end surfaced errors: %v", cb.errs)
	}
}

func TestStart_RecvFailureSurfacesThroughCallback(t *testing.T) {
	fs := newFakeRecognizeStream()
	fs.recvErr = status.Error(codes.Unavailable, "backend down")
	close(fs.resps)

	a := newTestAdapter(fs)
	cb := &captureCallback{}
	if err := a.Start(context.Background(), cb); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if len(cb.errs) != 1 {
		t.Fatalf("errs = %v, want exactly one", cb.errs)
	}
	if !errors.Is(cb.errs[0], transcription.ErrUnavailable) {
		t.Errorf("recv failure should classify as transient, got %v", cb.errs[0])
	}
}
