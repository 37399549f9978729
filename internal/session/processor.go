package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/audio"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/canonical"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/events"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/extraction"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/observability/metrics"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/persistence"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/transcription"
)

// Session end causes, recorded on the call-ended event and in metrics.
const (
	EndCauseStop       = "stop"
	EndCauseDisconnect = "disconnect"
	EndCauseAPI        = "api"
	EndCauseSwept      = "swept"
)

// StatusPending marks a save still running when the final snapshot was built.
// The outcome lands in logs and metrics once the sink returns.
const StatusPending = "pending"

// Chunk sources for metrics labels.
const (
	sourceAudio = "audio"
	sourceText  = "text"
)

// Info is the point-in-time view of a live session.
type Info struct {
	SessionID       string           `json:"session_id"`
	CreatedAt       time.Time        `json:"created_at"`
	LastUpdate      time.Time        `json:"last_update"`
	ChunkCount      int              `json:"chunk_count"`
	DurationSeconds float64          `json:"duration_seconds"`
	FullTranscript  string           `json:"full_transcript"`
	Record          canonical.Record `json:"record"`
}

// ChunkResult is returned from every ingest operation. ChunkText is the new
// text this chunk contributed; it is empty when an audio chunk produced no
// segment or the segment carried no recognizable speech.
type ChunkResult struct {
	ChunkText      string           `json:"chunk_text"`
	FullTranscript string           `json:"full_transcript"`
	Record         canonical.Record `json:"record"`
	Timestamp      time.Time        `json:"timestamp"`
	Session        Info             `json:"session"`
}

// FinalSnapshot is the terminal view of an ended session.
type FinalSnapshot struct {
	SessionID       string           `json:"session_id"`
	Cause           string           `json:"cause"`
	FullTranscript  string           `json:"full_transcript"`
	Record          canonical.Record `json:"canonical"`
	DurationSeconds float64          `json:"duration_seconds"`
	ChunkCount      int              `json:"chunk_count"`
	PersistStatus   string           `json:"persist_status"`
}

// ProcessorConfig carries the pipeline knobs the processor needs.
type ProcessorConfig struct {
	Locale         string
	AudioFormat    audio.Format
	SegmentSeconds int
	EndGrace       time.Duration
	PersistWait    time.Duration
}

// Processor drives the per-chunk pipeline over the session registry. It is
// safe for concurrent use; per-session ordering is enforced through each
// session's processing token.
type Processor struct {
	registry    *Registry
	transcriber transcription.Transcriber
	extractor   extraction.Extractor
	normalizer  *canonical.Normalizer
	publisher   *events.Publisher
	sink        persistence.Sink
	metrics     *metrics.Metrics
	cfg         ProcessorConfig
}

// NewProcessor wires the pipeline. The transcriber may be nil when all audio
// arrives through a continuous recognizer and only text reaches the
// processor; ingesting raw audio then yields segments but no transcripts.
func NewProcessor(cfg ProcessorConfig, t transcription.Transcriber, e extraction.Extractor, n *canonical.Normalizer, p *events.Publisher, s persistence.Sink) (*Processor, error) {
	if e == nil {
		return nil, errors.New("processor requires an extractor")
	}
	if n == nil {
		return nil, errors.New("processor requires a normalizer")
	}
	if cfg.SegmentSeconds <= 0 {
		cfg.SegmentSeconds = 5
	}
	if cfg.Locale == "" {
		cfg.Locale = "es-CL"
	}
	if cfg.PersistWait <= 0 {
		cfg.PersistWait = 3 * time.Second
	}
	if _, err := audio.NewAggregator(cfg.AudioFormat, cfg.SegmentSeconds); err != nil {
		return nil, fmt.Errorf("aggregator config: %w", err)
	}
	if p == nil {
		p = events.New(nil)
	}
	if s == nil {
		s = persistence.Disabled{}
	}
	proc := &Processor{
		transcriber: t,
		extractor:   e,
		normalizer:  n,
		publisher:   p,
		sink:        s,
		metrics:     metrics.DefaultMetrics,
		cfg:         cfg,
	}
	proc.registry = NewRegistry(func() *audio.Aggregator {
		agg, _ := audio.NewAggregator(cfg.AudioFormat, cfg.SegmentSeconds)
		return agg
	})
	return proc, nil
}

// Registry exposes the session index for transports that manage lifecycle
// directly (websocket streams, sweep loops).
func (p *Processor) Registry() *Registry { return p.registry }

// IngestAudio appends one raw frame to the session's buffer and returns the
// segment cut by this frame, if any. It never transcribes or extracts, so
// audio ingestion cannot block behind a slow collaborator; callers hand the
// returned segment to IngestSegment, typically from a per-session worker.
func (p *Processor) IngestAudio(sessionID string, frame []byte) (*audio.Segment, error) {
	s, created := p.registry.GetOrCreate(sessionID)
	if created {
		p.metrics.RecordSessionStart()
	}
	p.metrics.RecordAudio(len(frame))
	seg, err := s.writeAudio(frame)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	if seg != nil {
		p.metrics.RecordSegment("threshold")
	}
	return seg, nil
}

// IngestSegment transcribes one audio segment and folds the resulting text
// into the session. A transcription failure or a silent segment yields a
// result with an empty ChunkText and leaves the session record untouched.
func (p *Processor) IngestSegment(ctx context.Context, sessionID string, seg *audio.Segment) (*ChunkResult, error) {
	s, created := p.registry.GetOrCreate(sessionID)
	if created {
		p.metrics.RecordSessionStart()
	}
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()
	return p.processSegmentLocked(ctx, s, seg), nil
}

// IngestChunk is the synchronous composition of IngestAudio and
// IngestSegment: buffer the chunk, and when it completes a segment, run the
// whole pipeline before returning. Chunks that only grow the buffer return
// an empty ChunkText with the unchanged session state.
func (p *Processor) IngestChunk(ctx context.Context, sessionID string, audioBytes []byte) (*ChunkResult, error) {
	seg, err := p.IngestAudio(sessionID, audioBytes)
	if err != nil {
		return nil, err
	}
	if seg == nil {
		s, _ := p.registry.Get(sessionID)
		return p.emptyResult(s), nil
	}
	return p.IngestSegment(ctx, sessionID, seg)
}

// IngestText folds one transcript chunk into the session, creating it if
// absent. Blank text is a no-op that still returns the current state.
func (p *Processor) IngestText(ctx context.Context, sessionID, text string) (*ChunkResult, error) {
	s, created := p.registry.GetOrCreate(sessionID)
	if created {
		p.metrics.RecordSessionStart()
	}
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()
	return p.processTextLocked(ctx, s, text, sourceText), nil
}

// SetDispatcher stamps the dispatcher handling the call onto the session
// record. The dispatcher id gates end-of-call persistence.
func (p *Processor) SetDispatcher(sessionID, dispatcherID string) bool {
	s, ok := p.registry.Get(sessionID)
	if !ok {
		return false
	}
	s.mu.Lock()
	s.record.DispatcherID = dispatcherID
	s.mu.Unlock()
	return true
}

// Snapshot returns the current state of a session, or false if absent.
func (p *Processor) Snapshot(sessionID string) (*Info, bool) {
	s, ok := p.registry.Get(sessionID)
	if !ok {
		return nil, false
	}
	info := p.info(s)
	return &info, true
}

// EndSession closes a session: grants in-flight work a bounded grace, flushes
// and processes the remaining audio, saves the call, and emits the terminal
// event. Returns false when the session does not exist; ending twice is not
// an error, the second call simply finds nothing.
func (p *Processor) EndSession(ctx context.Context, sessionID, cause string) (*FinalSnapshot, bool) {
	s, ok := p.registry.Remove(sessionID)
	if !ok {
		return nil, false
	}
	acquired := s.acquireWithin(p.cfg.EndGrace)
	if !acquired {
		log.Warn().Str("session_id", sessionID).Dur("grace", p.cfg.EndGrace).
			Msg("ending session with chunk work still in flight")
	} else {
		defer s.release()
	}

	if seg, err := s.flushAudio(); err == nil && seg != nil {
		p.metrics.RecordSegment("final")
		if acquired {
			p.processSegmentLocked(ctx, s, seg)
		}
	}

	record := s.Record()
	snap := &FinalSnapshot{
		SessionID:       sessionID,
		Cause:           cause,
		FullTranscript:  s.FullTranscript(),
		Record:          record,
		DurationSeconds: s.Duration().Seconds(),
		ChunkCount:      s.ChunkCount(),
	}
	snap.PersistStatus = p.persist(snap, record.DispatcherID)

	p.metrics.RecordSessionEnd(cause, snap.DurationSeconds)
	if err := p.publisher.PublishCallEnded(ctx, events.CallEnded{
		SessionID:       sessionID,
		Cause:           cause,
		DurationSeconds: snap.DurationSeconds,
		ChunkCount:      snap.ChunkCount,
		Record:          snap.Record,
		PersistStatus:   snap.PersistStatus,
		EndedAt:         time.Now(),
	}); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("call ended event not published")
	}
	log.Info().Str("session_id", sessionID).Str("cause", cause).
		Int("chunks", snap.ChunkCount).Str("persist_status", snap.PersistStatus).
		Float64("duration_s", snap.DurationSeconds).Msg("session ended")
	return snap, true
}

// SweepIdle removes sessions idle strictly longer than maxAge and returns
// how many were removed. Swept sessions are torn down without persistence:
// a call that went silent for the idle window has no dispatcher closing it.
func (p *Processor) SweepIdle(maxAge time.Duration) int {
	removed := p.registry.Sweep(maxAge)
	for _, s := range removed {
		p.metrics.RecordSessionEnd(EndCauseSwept, s.Duration().Seconds())
		log.Info().Str("session_id", s.ID).Int("chunks", s.ChunkCount()).
			Msg("idle session swept")
	}
	return len(removed)
}

// persist runs the save without letting a slow sink stall teardown. When the
// sink misses the bounded wait the snapshot reports the save as pending and
// the true outcome is recorded asynchronously.
func (p *Processor) persist(snap *FinalSnapshot, dispatcherID string) string {
	req := persistence.Request{
		SessionID:       snap.SessionID,
		DispatcherID:    dispatcherID,
		FullTranscript:  snap.FullTranscript,
		Record:          snap.Record,
		DurationSeconds: snap.DurationSeconds,
		ChunkCount:      snap.ChunkCount,
	}
	done := make(chan string, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PersistWait+time.Second)
		defer cancel()
		err := p.sink.Save(ctx, req)
		status := persistence.StatusOf(err)
		p.metrics.RecordPersistence(status)
		if err != nil && !errors.Is(err, persistence.ErrMissingDispatcher) {
			log.Warn().Err(err).Str("session_id", req.SessionID).Msg("call save failed")
		}
		done <- status
	}()
	select {
	case status := <-done:
		return status
	case <-time.After(p.cfg.PersistWait):
		return StatusPending
	}
}

// processSegmentLocked transcribes one segment and feeds the text onward.
// Caller must hold the session token.
func (p *Processor) processSegmentLocked(ctx context.Context, s *Session, seg *audio.Segment) *ChunkResult {
	if p.transcriber == nil {
		return p.emptyResult(s)
	}
	start := time.Now()
	text, err := p.transcriber.Transcribe(ctx, seg.WAV, p.cfg.Locale)
	p.metrics.RecordTranscription(err, transcriptionErrKind(err), time.Since(start).Seconds())
	if err != nil {
		// The segment is lost but the session survives: the next segment
		// carries fresh audio and the record is still consistent.
		log.Warn().Err(err).Str("session_id", s.ID).
			Str("segment_id", seg.ID).Int("segment", seg.Seq).
			Msg("segment transcription failed")
		return p.emptyResult(s)
	}
	return p.processTextLocked(ctx, s, text, sourceAudio)
}

// processTextLocked runs extraction, merge and normalization for one chunk.
// Caller must hold the session token.
func (p *Processor) processTextLocked(ctx context.Context, s *Session, text, source string) *ChunkResult {
	text = strings.TrimSpace(text)
	if text == "" {
		p.metrics.RecordChunk(source, 0, true)
		return p.emptyResult(s)
	}

	start := time.Now()
	before := s.Record()
	full, count := s.appendChunk(text)

	partial, err := p.extractor.Extract(ctx, text, before.FilledFields())
	p.metrics.RecordExtraction(err, extractionErrKind(err), time.Since(start).Seconds())
	record := before
	emptyPartial := false
	if err != nil {
		// Extraction failures discard the partial and keep the accumulated
		// record as it was, without re-running normalization over it.
		log.Warn().Err(err).Str("session_id", s.ID).Int("chunk", count).
			Msg("chunk extraction failed, record unchanged")
	} else {
		emptyPartial = partial.IsEmpty()
		record = p.normalizer.Fold(before, partial, full)
		s.setRecord(record)
		if canonical.TriageRank(record.Triage) > canonical.TriageRank(before.Triage) {
			p.metrics.RecordTriageEscalation(record.Triage)
			log.Info().Str("session_id", s.ID).Str("tier", record.Triage).
				Msg("triage escalated")
		}
		if err := p.publisher.PublishRecordUpdated(ctx, events.RecordUpdated{
			SessionID:  s.ID,
			ChunkCount: count,
			Record:     record,
			UpdatedAt:  time.Now(),
		}); err != nil {
			log.Warn().Err(err).Str("session_id", s.ID).Msg("record update not published")
		}
	}
	p.metrics.RecordChunk(source, time.Since(start).Seconds(), emptyPartial)

	return &ChunkResult{
		ChunkText:      text,
		FullTranscript: full,
		Record:         record,
		Timestamp:      time.Now(),
		Session:        p.info(s),
	}
}

// emptyResult reports the session's current state with no new chunk text.
func (p *Processor) emptyResult(s *Session) *ChunkResult {
	if s == nil {
		return &ChunkResult{Timestamp: time.Now()}
	}
	return &ChunkResult{
		FullTranscript: s.FullTranscript(),
		Record:         s.Record(),
		Timestamp:      time.Now(),
		Session:        p.info(s),
	}
}

func (p *Processor) info(s *Session) Info {
	return Info{
		SessionID:       s.ID,
		CreatedAt:       s.CreatedAt,
		LastUpdate:      s.LastUpdate(),
		ChunkCount:      s.ChunkCount(),
		DurationSeconds: s.Duration().Seconds(),
		FullTranscript:  s.FullTranscript(),
		Record:          s.Record(),
	}
}

func extractionErrKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, extraction.ErrBadResponse):
		return "bad_response"
	case errors.Is(err, extraction.ErrUnavailable):
		return "unavailable"
	}
	return "other"
}

func transcriptionErrKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, transcription.ErrUnavailable):
		return "unavailable"
	}
	return "other"
}
