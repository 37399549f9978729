// callsim simulates one emergency call against the media stream websocket:
// it plays a mu-law WAV file (or synthetic silence) in real-time frames,
// then fetches the final session snapshot over the JSON API.
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/audio"
)

// Telephony frames: 20ms of 8kHz mu-law audio per media message.
const frameBytes = 160
const frameInterval = 20 * time.Millisecond

type wsMessage struct {
	Event string   `json:"event"`
	Start *wsStart `json:"start,omitempty"`
	Media *wsMedia `json:"media,omitempty"`
}

type wsStart struct {
	StreamSid        string            `json:"streamSid"`
	CallSid          string            `json:"callSid"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

type wsMedia struct {
	Payload string `json:"payload"`
}

func main() {
	serverAddr := flag.String("server", "localhost:8080", "service host:port")
	audioFile := flag.String("audio", "", "mu-law WAV file to play (empty streams silence)")
	callID := flag.String("call", "sim-"+time.Now().Format("150405"), "call sid / session id")
	dispatcher := flag.String("dispatcher", "sim-dispatcher", "dispatcher id custom parameter")
	seconds := flag.Int("seconds", 10, "seconds of silence when no audio file is given")
	flag.Parse()

	data, err := loadAudio(*audioFile, *seconds)
	if err != nil {
		log.Fatalf("load audio: %v", err)
	}

	wsURL := fmt.Sprintf("ws://%s/v1/calls/stream", *serverAddr)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatalf("dial %s: %v", wsURL, err)
	}
	defer conn.Close()

	send := func(msg wsMessage) {
		if err := conn.WriteJSON(msg); err != nil {
			log.Fatalf("send %s: %v", msg.Event, err)
		}
	}
	send(wsMessage{Event: "connected"})
	send(wsMessage{Event: "start", Start: &wsStart{
		StreamSid:        "MZ" + *callID,
		CallSid:          *callID,
		CustomParameters: map[string]string{"dispatcher_id": *dispatcher},
	}})
	log.Printf("streaming %d bytes as call %s", len(data), *callID)

	start := time.Now()
	for off := 0; off < len(data); off += frameBytes {
		end := off + frameBytes
		if end > len(data) {
			end = len(data)
		}
		send(wsMessage{Event: "media", Media: &wsMedia{
			Payload: base64.StdEncoding.EncodeToString(data[off:end]),
		}})
		time.Sleep(frameInterval)
	}
	send(wsMessage{Event: "stop"})
	log.Printf("call finished after %s", time.Since(start).Round(time.Millisecond))

	// The stop is processed asynchronously; the session is gone once the
	// server finishes teardown, so a 404 here means the call closed cleanly.
	time.Sleep(500 * time.Millisecond)
	resp, err := http.Get(fmt.Sprintf("http://%s/v1/sessions/%s", *serverAddr, *callID))
	if err != nil {
		log.Fatalf("snapshot request: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		log.Printf("session closed (snapshot gone)")
		return
	}
	var pretty json.RawMessage = body
	out, _ := json.MarshalIndent(pretty, "", "  ")
	log.Printf("snapshot:\n%s", out)
}

// loadAudio reads raw mu-law samples from a WAV file, or fabricates silence.
func loadAudio(path string, seconds int) ([]byte, error) {
	if path == "" {
		n := audio.TelephonyFormat().BytesPerSecond() * seconds
		data := make([]byte, n)
		for i := range data {
			data[i] = 0xff // mu-law silence
		}
		return data, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, data, err := audio.DecodeWAV(raw)
	if err != nil {
		return nil, err
	}
	if f.Encoding != audio.EncodingMulaw || f.SampleRate != 8000 {
		log.Printf("warning: expected 8 kHz mu-law, got %s %d Hz", f.Encoding, f.SampleRate)
	}
	return data, nil
}
