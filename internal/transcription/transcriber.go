// Package transcription defines the speech-to-text contracts used by the
// call pipeline: a segment transcriber for threshold-buffered audio and a
// streaming adapter for continuous recognition.
package transcription

import (
	"context"
	"errors"
)

// ErrUnavailable marks transient transcriber failures. The session keeps
// running; the affected segment is dropped and the next one retried.
var ErrUnavailable = errors.New("transcriber unavailable")

// Transcriber converts one WAV-framed audio segment into text. The locale
// hint is a BCP-47 tag such as "es-CL". An empty string with a nil error
// means the segment carried no recognizable speech.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte, locale string) (string, error)
}

// Callback receives results from a continuous recognizer. Partial results
// feed operator-facing live captions only; downstream extraction consumes
// finals exclusively.
type Callback interface {
	OnPartial(text string)
	OnFinal(text string, confidence float64)
	OnError(err error)
}

// StreamingAdapter is the continuous recognition variant. Frames are
// forwarded as they arrive and results surface through the callback.
type StreamingAdapter interface {
	Start(ctx context.Context, cb Callback) error
	SendAudio(ctx context.Context, audio []byte) error
	Close() error
}
