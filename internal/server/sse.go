package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/rushi32/IsoCode/internal/event"
	"github.com/rushi32/IsoCode/internal/logging"
)

// sseWriter frames event.Event values as `data: <json>\n\n` (spec §4.6: "a
// per-request send-function that emits data: <json>\n\n frames") and tracks
// a writable flag so a slow/gone client naturally back-pressures the
// publishing loop (spec §5 "Back-pressure") instead of panicking on a
// write to a closed connection.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu       sync.Mutex
	writable bool
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("server: streaming not supported by response writer")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher, writable: true}, nil
}

// send writes one SSE frame. It is a no-op once the writer has observed a
// write failure, so a stalled client stops receiving further events rather
// than accumulating an unbounded backlog.
func (s *sseWriter) send(e event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.writable {
		return
	}
	frame, err := frameEvent(e)
	if err != nil {
		logging.Warn().Err(err).Str("eventType", string(e.Type)).Msg("sse: failed to marshal event payload")
		return
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", frame); err != nil {
		s.writable = false
		return
	}
	s.flusher.Flush()
}

// frameEvent renders the wire frame {"type":..., ...data fields} for one
// event: the data struct's own fields are embedded flat so the client sees
// one JSON object per spec §6's SSE frame list (e.g. {"type":"thought",
// "sessionId":...,"content":...}), not a nested "data" envelope.
func frameEvent(e event.Event) (string, error) {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return "", err
	}
	fields := map[string]json.RawMessage{}
	if len(raw) > 2 {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return "", err
		}
	}
	typeField, _ := json.Marshal(e.Type)
	fields["type"] = typeField
	out, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// subscribeSession wires a session-scoped event subscription for the
// duration of one /chat SSE stream: every thought/action/observation/
// diff_request/final/open_file/error event for sessionID is written to sse,
// in the order the engine publishes them (spec §5 "for any session, SSE
// events are emitted in step order").
func subscribeSession(sessionID string, sse *sseWriter) (unsubscribe func()) {
	return event.SubscribeAll(func(e event.Event) {
		if sessionIDOf(e) != sessionID {
			return
		}
		switch e.Type {
		case event.Thought, event.Action, event.Observation, event.Final,
			event.DiffRequest, event.OpenFile, event.Error, event.Chunk, event.Done:
			sse.send(e)
		}
	})
}

// sessionIDOf extracts the SessionID carried by any SSE-eligible event
// payload, or "" if the payload carries none.
func sessionIDOf(e event.Event) string {
	switch d := e.Data.(type) {
	case event.ChunkData:
		return d.SessionID
	case event.ThoughtData:
		return d.SessionID
	case event.ActionData:
		return d.SessionID
	case event.ObservationData:
		return d.SessionID
	case event.FinalData:
		return d.SessionID
	case event.DiffRequestData:
		return d.SessionID
	case event.OpenFileData:
		return d.SessionID
	case event.ErrorData:
		return d.SessionID
	}
	return ""
}
