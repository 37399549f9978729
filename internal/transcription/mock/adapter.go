// Package mock provides a streaming adapter that simulates continuous
// recognition without cloud credentials: progressive partials per audio
// frame and exactly one final per utterance.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/transcription"
)

// SimulatedUtterance is one scripted utterance with progressive partials.
type SimulatedUtterance struct {
	Partials   []string
	Final      string
	Confidence float64
}

// DefaultUtterances cycle through typical Chilean emergency-call speech.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"estoy en", "estoy en Apoquindo", "estoy en Apoquindo 1234"},
		Final:      "estoy en Apoquindo 1234, oficina 301",
		Confidence: 0.93,
	},
	{
		Partials:   []string{"mi papá", "mi papá no respira"},
		Final:      "mi papá no respira, tiene 78 años",
		Confidence: 0.95,
	},
	{
		Partials:   []string{"se llama", "se llama Juan Pérez"},
		Final:      "se llama Juan Pérez, es diabético",
		Confidence: 0.91,
	},
	{
		Partials:   []string{"la señora", "la señora se cayó"},
		Final:      "la señora se cayó por la escalera y no responde",
		Confidence: 0.9,
	},
	{
		Partials:   []string{"necesito una ambulancia"},
		Final:      "necesito una ambulancia en la comuna de Ñuñoa",
		Confidence: 0.97,
	},
}

// Adapter implements transcription.StreamingAdapter with scripted responses.
// Each frame advances one partial; once partials are exhausted the final is
// emitted exactly once, mimicking silence detection.
type Adapter struct {
	mu           sync.Mutex
	cb           transcription.Callback
	utterance    SimulatedUtterance
	partialIndex int
	finalSent    bool
	closed       bool
}

var (
	utteranceCounter int
	counterMu        sync.Mutex
)

// New creates a mock adapter, cycling through the default utterances.
func New() *Adapter {
	counterMu.Lock()
	idx := utteranceCounter % len(DefaultUtterances)
	utteranceCounter++
	counterMu.Unlock()

	return &Adapter{utterance: DefaultUtterances[idx]}
}

// NewScripted creates a mock adapter speaking exactly the given utterance.
func NewScripted(u SimulatedUtterance) *Adapter {
	return &Adapter{utterance: u}
}

// Start records the callback; the mock has no session to open.
func (a *Adapter) Start(ctx context.Context, cb transcription.Callback) error {
	a.mu.Lock()
	a.cb = cb
	a.mu.Unlock()
	return nil
}

// SendAudio advances the script by one step per frame.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.cb == nil {
		return nil
	}

	if a.partialIndex < len(a.utterance.Partials) {
		partial := a.utterance.Partials[a.partialIndex]
		a.partialIndex++
		go func() {
			time.Sleep(20 * time.Millisecond)
			a.mu.Lock()
			cb, closed := a.cb, a.closed
			a.mu.Unlock()
			if !closed && cb != nil {
				cb.OnPartial(partial)
			}
		}()
		return nil
	}

	if !a.finalSent {
		a.finalSent = true
		go func() {
			time.Sleep(40 * time.Millisecond)
			a.mu.Lock()
			cb, closed := a.cb, a.closed
			utt := a.utterance
			a.mu.Unlock()
			if !closed && cb != nil {
				cb.OnFinal(utt.Final, utt.Confidence)
			}
		}()
	}
	return nil
}

// Close ends the session. A stream that ends before its natural utterance
// boundary still delivers its final, as a real recognizer drains results
// after the send side closes.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}

	if !a.finalSent && a.cb != nil {
		a.finalSent = true
		cb, utt := a.cb, a.utterance
		go func() {
			time.Sleep(40 * time.Millisecond)
			cb.OnFinal(utt.Final, utt.Confidence)
		}()
	}
	a.closed = true
	return nil
}
