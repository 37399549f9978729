package audio

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrFlushed is returned when audio arrives for, or a second flush is
// attempted on, an aggregator that already emitted its final segment.
var ErrFlushed = errors.New("audio: aggregator already flushed")

// Aggregator state machine. The aggregator starts idle, moves to streaming on
// the first frame, and terminates in flushed exactly once per call.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateFlushed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateFlushed:
		return "flushed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Segment is one buffered unit of audio, WAV-framed and ready for the
// transcriber.
type Segment struct {
	ID       string
	Seq      int
	WAV      []byte
	RawBytes int
	Final    bool
}

// Aggregator accumulates raw audio frames for one call and cuts a segment
// each time the buffer reaches the byte threshold derived from the format's
// data rate and the target segment duration. Not safe for concurrent use;
// each call session owns exactly one aggregator and feeds it from a single
// goroutine.
type Aggregator struct {
	format    Format
	threshold int
	buf       bytes.Buffer
	state     State
	seq       int
}

// NewAggregator builds an aggregator cutting segments of roughly
// segmentSeconds of audio. Telephony mu-law at 8 kHz with a 5 second target
// yields a 40,000 byte threshold.
func NewAggregator(f Format, segmentSeconds int) (*Aggregator, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	if segmentSeconds <= 0 {
		return nil, fmt.Errorf("segment duration must be positive, got %d", segmentSeconds)
	}
	return &Aggregator{
		format:    f,
		threshold: f.BytesPerSecond() * segmentSeconds,
		state:     StateIdle,
	}, nil
}

// Threshold returns the segment cut-over size in bytes.
func (a *Aggregator) Threshold() int { return a.threshold }

// Buffered returns the bytes accumulated since the last segment.
func (a *Aggregator) Buffered() int { return a.buf.Len() }

// State returns the current lifecycle state.
func (a *Aggregator) State() State { return a.state }

// Write appends one raw frame. When the buffer reaches the threshold the
// whole buffer is framed and returned as a segment and the buffer resets;
// otherwise the returned segment is nil.
func (a *Aggregator) Write(frame []byte) (*Segment, error) {
	if a.state == StateFlushed {
		return nil, ErrFlushed
	}
	if len(frame) == 0 {
		return nil, nil
	}
	a.state = StateStreaming
	a.buf.Write(frame)
	if a.buf.Len() < a.threshold {
		return nil, nil
	}
	return a.cut(false)
}

// Flush emits any buffered remainder as the final segment, even under
// threshold, and moves the aggregator to its terminal state. Flushing is
// one-shot: a second call returns ErrFlushed. An empty buffer flushes to a
// nil segment.
func (a *Aggregator) Flush() (*Segment, error) {
	if a.state == StateFlushed {
		return nil, ErrFlushed
	}
	a.state = StateFlushed
	if a.buf.Len() == 0 {
		return nil, nil
	}
	return a.cut(true)
}

func (a *Aggregator) cut(final bool) (*Segment, error) {
	raw := a.buf.Bytes()
	wav, err := EncodeWAV(a.format, raw)
	if err != nil {
		return nil, fmt.Errorf("frame segment: %w", err)
	}
	seg := &Segment{
		ID:       uuid.NewString(),
		Seq:      a.seq,
		WAV:      wav,
		RawBytes: len(raw),
		Final:    final,
	}
	a.seq++
	a.buf.Reset()
	return seg, nil
}
