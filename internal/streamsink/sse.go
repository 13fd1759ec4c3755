// Package streamsink implements the Stream Sink (C10): a thin
// server-sent-events writer the Agent Loop (C5) and Task Orchestrator (C6)
// emit deltas through.
//
// The teacher streams over gRPC/WebSocket, not SSE, so there is no direct
// teacher file for this one — but the shape (one JSON object per frame,
// writes serialized against a single stream, an explicit terminal signal)
// is the same idiom internal/gateway/ws_control_plane.go's wsSession
// uses for its outbound side, adapted from a buffered-channel-plus-writer-
// goroutine (appropriate for a full-duplex WebSocket) down to a directly
// mutex-guarded http.ResponseWriter, since spec §4.10 puts the
// serialization obligation on the caller rather than asking the sink to
// queue concurrent writers itself.
package streamsink

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// Sink satisfies agent.Emitter and is the concrete type the HTTP gateway
// (C12) constructs per request. Emit and End are safe to call from one
// goroutine at a time; concurrent Emit calls from different goroutines on
// the same Sink are undefined per spec §4.10 — callers serialize.
type Sink struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu          sync.Mutex
	wroteHeader bool
	ended       bool
}

// New wraps w as an SSE sink. w must implement http.Flusher (the standard
// library's http.ResponseWriter does, for any non-hijacked connection); if
// it doesn't, Emit returns an error on first use rather than panicking.
func New(w http.ResponseWriter) *Sink {
	flusher, _ := w.(http.Flusher)
	return &Sink{w: w, flusher: flusher}
}

// Emit marshals event to JSON and writes it as one `data: <json>\n\n`
// frame, flushing immediately. The SSE response headers are written before
// the first frame, never again after.
func (s *Sink) Emit(event any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return fmt.Errorf("streamsink: emit after end")
	}
	if s.flusher == nil {
		return fmt.Errorf("streamsink: response writer does not support flushing")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("streamsink: marshal event: %w", err)
	}

	if !s.wroteHeader {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.wroteHeader = true
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("streamsink: write frame: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// End marks the stream finished. It writes no further bytes of its own —
// the HTTP handler returning is what actually closes the connection — but
// it makes any later Emit call fail loudly instead of writing past a
// stream the client has stopped reading.
func (s *Sink) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
}
