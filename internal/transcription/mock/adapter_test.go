package mock

import (
	"context"
	"sync"
	"testing"
	"time"
)

// testCallback implements transcription.Callback for testing.
type testCallback struct {
	mu       sync.Mutex
	partials []string
	finals   []finalResult
	errors   []error
}

type finalResult struct {
	text       string
	confidence float64
}

func (c *testCallback) OnPartial(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partials = append(c.partials, text)
}

func (c *testCallback) OnFinal(text string, confidence float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finals = append(c.finals, finalResult{text, confidence})
}

func (c *testCallback) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, err)
}

func (c *testCallback) getPartials() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.partials...)
}

func (c *testCallback) getFinals() []finalResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]finalResult{}, c.finals...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestAdapter_ProgressivePartialsThenOneFinal(t *testing.T) {
	utt := SimulatedUtterance{
		Partials:   []string{"estoy en", "estoy en Apoquindo"},
		Final:      "estoy en Apoquindo 1234",
		Confidence: 0.9,
	}
	adapter := NewScripted(utt)
	cb := &testCallback{}

	if err := adapter.Start(context.Background(), cb); err != nil {
		t.Fatalf("start: %v", err)
	}

	// One frame per script step plus one to trigger the final.
	for i := 0; i < len(utt.Partials)+1; i++ {
		if err := adapter.SendAudio(context.Background(), []byte{0}); err != nil {
			t.Fatalf("send audio: %v", err)
		}
	}

	waitFor(t, func() bool { return len(cb.getFinals()) == 1 })

	partials := cb.getPartials()
	if len(partials) != 2 || partials[1] != "estoy en Apoquindo" {
		t.Errorf("partials = %v", partials)
	}
	finals := cb.getFinals()
	if finals[0].text != utt.Final || finals[0].confidence != 0.9 {
		t.Errorf("final = %+v", finals[0])
	}

	// Extra frames never produce a second final.
	adapter.SendAudio(context.Background(), []byte{0})
	time.Sleep(100 * time.Millisecond)
	if got := len(cb.getFinals()); got != 1 {
		t.Errorf("finals = %d, want exactly 1", got)
	}
}

func TestAdapter_CloseDeliversPendingFinal(t *testing.T) {
	utt := SimulatedUtterance{Final: "necesito una ambulancia", Confidence: 0.95}
	adapter := NewScripted(utt)
	cb := &testCallback{}

	if err := adapter.Start(context.Background(), cb); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := adapter.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	waitFor(t, func() bool { return len(cb.getFinals()) == 1 })
	if cb.getFinals()[0].text != utt.Final {
		t.Errorf("final = %+v", cb.getFinals()[0])
	}

	// Closed adapters ignore further audio.
	if err := adapter.SendAudio(context.Background(), []byte{0}); err != nil {
		t.Errorf("send after close: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if got := len(cb.getFinals()); got != 1 {
		t.Errorf("finals = %d, want 1", got)
	}
}

func TestNew_CyclesUtterances(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < len(DefaultUtterances); i++ {
		seen[New().utterance.Final] = true
	}
	if len(seen) != len(DefaultUtterances) {
		t.Errorf("cycled through %d distinct utterances, want %d", len(seen), len(DefaultUtterances))
	}
}
