// Package session owns the set of live call sessions and orchestrates the
// per-chunk pipeline: audio segmentation, transcription, extraction, merge
// and normalization, plus end-of-call persistence.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/audio"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/canonical"
)

// transcriptSeparator joins accumulated chunks into the full transcript.
const transcriptSeparator = " "

// Session is one live call. The registry exclusively owns sessions; other
// components receive the current record and transcript by value.
//
// All chunk processing for one session is serialized through its token (sem):
// whoever holds the token may read-modify-write the transcript and record.
// The inner mutex only guards the fields the sweeper and snapshot reads touch
// concurrently.
type Session struct {
	ID        string
	CreatedAt time.Time

	sem chan struct{}

	audioMu sync.Mutex
	agg     *audio.Aggregator

	mu         sync.Mutex
	transcript []string
	record     canonical.Record
	chunkCount int
	lastUpdate time.Time
}

func newSession(id string, agg *audio.Aggregator) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		CreatedAt:  now,
		sem:        make(chan struct{}, 1),
		agg:        agg,
		record:     canonical.New(),
		lastUpdate: now,
	}
}

// acquire takes the session's processing token, blocking until it is free or
// the context is done.
func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tryAcquire takes the token only if it is immediately free.
func (s *Session) tryAcquire() bool {
	select {
	case s.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// acquireWithin takes the token, waiting at most d for in-flight work to
// finish. Used by teardown to grant outstanding chunks a bounded grace.
func (s *Session) acquireWithin(d time.Duration) bool {
	if d <= 0 {
		return s.tryAcquire()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case s.sem <- struct{}{}:
		return true
	case <-t.C:
		return false
	}
}

func (s *Session) release() {
	<-s.sem
}

// appendChunk records one transcript chunk. Caller must hold the token.
func (s *Session) appendChunk(text string) (fullTranscript string, chunkCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, text)
	s.chunkCount++
	s.lastUpdate = time.Now()
	return strings.Join(s.transcript, transcriptSeparator), s.chunkCount
}

// setRecord replaces the accumulated record. Caller must hold the token.
func (s *Session) setRecord(r canonical.Record) {
	s.mu.Lock()
	s.record = r
	s.mu.Unlock()
}

// Record returns the current accumulated record by value.
func (s *Session) Record() canonical.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

// FullTranscript returns the accumulated transcript.
func (s *Session) FullTranscript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.transcript, transcriptSeparator)
}

// ChunkCount returns the number of processed chunks.
func (s *Session) ChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunkCount
}

// LastUpdate returns the time of the last processed chunk.
func (s *Session) LastUpdate() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUpdate
}

// Duration returns the session's age.
func (s *Session) Duration() time.Duration {
	return time.Since(s.CreatedAt)
}

// writeAudio appends one raw frame to the session's aggregator, returning a
// segment when the buffer crosses its threshold. Safe against a concurrent
// flush; frame order is the transport's responsibility.
func (s *Session) writeAudio(frame []byte) (*audio.Segment, error) {
	s.audioMu.Lock()
	defer s.audioMu.Unlock()
	return s.agg.Write(frame)
}

// flushAudio emits the buffered remainder as the final segment, once.
func (s *Session) flushAudio() (*audio.Segment, error) {
	s.audioMu.Lock()
	defer s.audioMu.Unlock()
	return s.agg.Flush()
}
