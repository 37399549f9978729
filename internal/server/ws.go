package server

import (
	"context"
	"encoding/base64"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/audio"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/events"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/observability/logging"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/session"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/transcription"
)

// segmentQueueDepth bounds how many cut segments may wait for transcription
// before the reader starts applying backpressure to the media stream.
const segmentQueueDepth = 8

// Media stream wire messages, following the Twilio media stream shape:
// an initial "start" with call metadata, base64 mu-law "media" frames, and a
// terminal "stop".
type wsMessage struct {
	Event string   `json:"event"`
	Start *wsStart `json:"start,omitempty"`
	Media *wsMedia `json:"media,omitempty"`
}

type wsStart struct {
	StreamSid        string            `json:"streamSid"`
	CallSid          string            `json:"callSid"`
	CustomParameters map[string]string `json:"customParameters"`
}

type wsMedia struct {
	Payload string `json:"payload"`
}

// handleMediaStream runs one live call over a websocket. Frames are buffered
// into segments and transcribed off the read loop, so a slow recognizer never
// stalls the phone stream; when a continuous recognizer is configured frames
// are forwarded to it instead and its finals feed the pipeline.
func (s *Server) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	call := &callStream{server: s, log: zerolog.Nop()}
	defer call.teardown()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				call.log.Warn().Err(err).Msg("media stream dropped")
			}
			call.end(session.EndCauseDisconnect)
			return
		}
		switch msg.Event {
		case "connected":
			// Handshake preamble, nothing to do yet.
		case "start":
			if err := call.start(r.Context(), msg.Start); err != nil {
				log.Error().Err(err).Msg("media stream start failed")
				call.end(session.EndCauseDisconnect)
				return
			}
		case "media":
			if msg.Media == nil || call.sessionID == "" {
				continue
			}
			frame, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
			if err != nil {
				call.log.Warn().Err(err).Msg("undecodable media frame")
				continue
			}
			call.media(r.Context(), frame)
		case "stop":
			call.end(session.EndCauseStop)
			return
		}
	}
}

// callStream is the per-connection state of one live call.
type callStream struct {
	server    *Server
	sessionID string
	log       zerolog.Logger

	stream transcription.StreamingAdapter

	segments chan *audio.Segment
	wg       sync.WaitGroup

	textMu      sync.Mutex
	texts       chan string
	textsClosed bool

	endOnce sync.Once
	ended   bool
}

// streamCallback bridges recognizer results into the call. Partials are
// caption-only; finals are queued for extraction in arrival order.
type streamCallback struct {
	call *callStream
}

func (cb *streamCallback) OnPartial(text string) {
	cb.call.caption(text, false)
}

func (cb *streamCallback) OnFinal(text string, confidence float64) {
	cb.call.caption(text, true)
	cb.call.enqueueText(text)
}

func (cb *streamCallback) OnError(err error) {
	cb.call.log.Warn().Err(err).Msg("recognizer error")
}

// enqueueText hands a final transcript to the text worker unless the call is
// already closing. Recognizers may surface trailing finals after Close; those
// raced the teardown and are dropped.
func (c *callStream) enqueueText(text string) {
	c.textMu.Lock()
	defer c.textMu.Unlock()
	if c.texts == nil || c.textsClosed {
		return
	}
	c.texts <- text
}

func (c *callStream) start(ctx context.Context, st *wsStart) error {
	if c.sessionID != "" {
		return nil
	}
	switch {
	case st == nil:
		c.sessionID = uuid.NewString()
	case st.CallSid != "":
		c.sessionID = st.CallSid
	case st.StreamSid != "":
		c.sessionID = st.StreamSid
	default:
		c.sessionID = uuid.NewString()
	}

	// Register the session before the first frame so snapshots and the
	// dispatcher assignment find it immediately.
	if _, err := c.server.proc.IngestAudio(c.sessionID, nil); err != nil {
		return err
	}
	if st != nil {
		if d := st.CustomParameters["dispatcher_id"]; d != "" {
			c.server.proc.SetDispatcher(c.sessionID, d)
		}
	}
	c.log = logging.WithSession(c.sessionID)
	c.log.Info().Msg("media stream started")

	if c.server.newStream != nil {
		stream, err := c.server.newStream(ctx)
		if err != nil {
			return err
		}
		c.stream = stream
		c.texts = make(chan string, segmentQueueDepth)
		c.wg.Add(1)
		go c.textWorker()
		return stream.Start(ctx, &streamCallback{call: c})
	}

	c.segments = make(chan *audio.Segment, segmentQueueDepth)
	c.wg.Add(1)
	go c.segmentWorker()
	return nil
}

func (c *callStream) media(ctx context.Context, frame []byte) {
	if c.stream != nil {
		if err := c.stream.SendAudio(ctx, frame); err != nil {
			c.log.Warn().Err(err).Msg("recognizer rejected frame")
		}
		return
	}
	seg, err := c.server.proc.IngestAudio(c.sessionID, frame)
	if err != nil {
		c.log.Warn().Err(err).Msg("audio frame dropped")
		return
	}
	if seg != nil {
		c.segments <- seg
	}
}

// segmentWorker transcribes cut segments in arrival order.
func (c *callStream) segmentWorker() {
	defer c.wg.Done()
	for seg := range c.segments {
		res, err := c.server.proc.IngestSegment(context.Background(), c.sessionID, seg)
		if err != nil {
			c.log.Warn().Err(err).Msg("segment processing failed")
			continue
		}
		c.caption(res.ChunkText, true)
	}
}

// textWorker feeds recognizer finals through the pipeline in order.
func (c *callStream) textWorker() {
	defer c.wg.Done()
	for text := range c.texts {
		if _, err := c.server.proc.IngestText(context.Background(), c.sessionID, text); err != nil {
			c.log.Warn().Err(err).Msg("final transcript processing failed")
		}
	}
}

func (c *callStream) caption(text string, final bool) {
	if text == "" {
		return
	}
	err := c.server.publisher.PublishCaption(context.Background(), events.Caption{
		SessionID: c.sessionID,
		Text:      text,
		Final:     final,
		At:        time.Now(),
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("caption not published")
	}
}

// end drains in-flight work and closes the session, once.
func (c *callStream) end(cause string) {
	c.endOnce.Do(func() {
		c.ended = true
		if c.sessionID == "" {
			return
		}
		if c.stream != nil {
			if err := c.stream.Close(); err != nil {
				c.log.Warn().Err(err).Msg("recognizer close failed")
			}
		}
		if c.segments != nil {
			close(c.segments)
		}
		c.textMu.Lock()
		if c.texts != nil && !c.textsClosed {
			c.textsClosed = true
			close(c.texts)
		}
		c.textMu.Unlock()
		c.wg.Wait()
		c.server.proc.EndSession(context.Background(), c.sessionID, cause)
	})
}

// teardown covers handler exits that never reached an explicit end.
func (c *callStream) teardown() {
	if !c.ended {
		c.end(session.EndCauseDisconnect)
	}
}
