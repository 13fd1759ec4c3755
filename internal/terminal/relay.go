// Package terminal implements the Terminal Relay (C7): a WebSocket ↔ PTY
// bridge at /ws/terminal, plus local/AI command-completion and an
// in-memory command-buffer view kept for suggestion context only.
//
// The session read/write-loop shape — a buffered outbound channel drained
// by a dedicated writer goroutine, context-cancellation teardown, a
// discriminated-union JSON frame protocol — is grounded on the teacher's
// internal/gateway/ws_control_plane.go wsSession. Unlike that control
// plane, this relay's protocol is a fixed set of terminal verbs rather than
// a generic RPC dispatch table, so frames are flat structs instead of a
// {method, params} envelope.
package terminal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 45 * time.Second
	maxPayloadSize = 1 << 20
)

// inboundFrame covers every incoming message shape spec §4.7 names; only
// the fields relevant to Type are populated by the client.
type inboundFrame struct {
	Type     string `json:"type"`
	ServerID string `json:"serverId,omitempty"`
	UserID   string `json:"userId,omitempty"`
	Cols     int    `json:"cols,omitempty"`
	Rows     int    `json:"rows,omitempty"`
	Data     string `json:"data,omitempty"`    // base64-encoded raw bytes, for "input"
	Partial  string `json:"partial,omitempty"` // for "suggest"
	Question string `json:"question,omitempty"`
}

// outboundFrame covers every outgoing message shape spec §4.7 names.
type outboundFrame struct {
	Type        string   `json:"type"`
	SessionID   string   `json:"sessionId,omitempty"`
	Message     string   `json:"message,omitempty"`
	Data        string   `json:"data,omitempty"` // base64-encoded raw PTY bytes
	Suggestions []string `json:"suggestions,omitempty"`
	Source      string   `json:"source,omitempty"`
	Response    string   `json:"response,omitempty"`
	Cols        int      `json:"cols,omitempty"`
	Rows        int      `json:"rows,omitempty"`
}

// Relay upgrades HTTP requests at /ws/terminal to WebSocket terminal
// sessions.
type Relay struct {
	resolver ConnectionResolver
	opener   ShellOpener
	ai       AIAssistant
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New builds a Relay. opener may be nil to use the real SSH-backed PTY; ai
// may be nil to disable "suggest"'s AI pass and "ai-help" entirely.
func New(resolver ConnectionResolver, opener ShellOpener, ai AIAssistant, logger *slog.Logger) *Relay {
	if opener == nil {
		opener = sshShellOpener{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		resolver: resolver,
		opener:   opener,
		ai:       ai,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and runs the terminal session until
// teardown.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(req.Context())
	sess := &session{
		relay:  r,
		conn:   conn,
		send:   make(chan []byte, 256),
		ctx:    ctx,
		cancel: cancel,
		id:     uuid.NewString(),
		buffer: &CommandBuffer{},
	}
	sess.run()
}

// session is one terminal WebSocket connection, keyed by a server-issued
// session id per spec §4.7's "Teardown" note.
type session struct {
	relay  *Relay
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	id     string
	buffer *CommandBuffer
	pty    PTY
}

func (s *session) run() {
	defer s.teardown()
	go s.writeLoop()
	s.readLoop()
}

// teardown tears down the PTY (and, transitively, the SSH client) and the
// WebSocket connection. Safe to call once; session.run's defer is its only
// caller. It deliberately does not close(s.send): pumpOutput and the
// suggest/ai-help goroutines can outlive readLoop's return and may still
// call enqueue after this runs, which would panic on a closed channel.
// writeLoop exits on ctx.Done() instead, and a post-teardown enqueue simply
// writes into a channel nothing reads anymore.
func (s *session) teardown() {
	s.cancel()
	if s.pty != nil {
		_ = s.pty.Close()
	}
	_ = s.conn.Close()
}

func (s *session) readLoop() {
	s.conn.SetReadLimit(maxPayloadSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.sendError("malformed frame: " + err.Error())
			continue
		}

		switch frame.Type {
		case "connect":
			s.handleConnect(frame)
		case "input":
			s.handleInput(frame)
		case "resize":
			s.handleResize(frame)
		case "suggest":
			s.handleSuggest(frame)
		case "ai-help":
			s.handleAIHelp(frame)
		case "disconnect":
			return
		default:
			s.sendError("unknown message type " + frame.Type)
		}
	}
}

func (s *session) writeLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-s.send:
			if !ok {
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (s *session) handleConnect(frame inboundFrame) {
	if s.pty != nil {
		s.sendError("already connected")
		return
	}

	conn, err := s.relay.resolver.Resolve(s.ctx, frame.UserID, frame.ServerID)
	if err != nil {
		s.sendError(err.Error())
		return
	}

	cols, rows := frame.Cols, frame.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}

	pty, err := s.relay.opener.Open(conn, cols, rows)
	if err != nil {
		s.sendError(err.Error())
		return
	}
	s.pty = pty

	go s.pumpOutput(pty)
	s.enqueue(outboundFrame{Type: "connected", SessionID: s.id, Message: "connected"})
}

// pumpOutput relays raw PTY bytes to the client as base64-encoded "output"
// frames, one per read, until the PTY closes. Base64 is used (rather than
// the literal "raw bytes" the spec names) because the transport is
// JSON-framed text, which cannot carry arbitrary binary safely; there is no
// teacher or example-pack precedent for PTY-over-WebSocket framing to
// follow instead.
func (s *session) pumpOutput(pty PTY) {
	buf := make([]byte, 8192)
	for {
		n, err := pty.Read(buf)
		if n > 0 {
			s.enqueue(outboundFrame{
				Type: "output",
				Data: base64.StdEncoding.EncodeToString(buf[:n]),
			})
		}
		if err != nil {
			s.enqueue(outboundFrame{Type: "disconnected", Message: "remote shell closed"})
			s.cancel()
			return
		}
	}
}

func (s *session) handleInput(frame inboundFrame) {
	if s.pty == nil {
		s.sendError("not connected")
		return
	}
	raw, err := base64.StdEncoding.DecodeString(frame.Data)
	if err != nil {
		s.sendError("malformed input data")
		return
	}
	s.buffer.Feed(raw)
	if _, err := s.pty.Write(raw); err != nil {
		s.sendError(err.Error())
	}
}

func (s *session) handleResize(frame inboundFrame) {
	if s.pty == nil {
		s.sendError("not connected")
		return
	}
	if err := s.pty.WindowChange(frame.Cols, frame.Rows); err != nil {
		s.sendError(err.Error())
		return
	}
	s.enqueue(outboundFrame{Type: "resized", Cols: frame.Cols, Rows: frame.Rows})
}

// handleSuggest answers immediately with local prefix matches, then — for
// partials of length >= aiSuggestionMinLen, and only when an AIAssistant is
// configured — fires an AI completion in a separate goroutine and emits it
// as a second "suggestions" event, per spec §4.7.
func (s *session) handleSuggest(frame inboundFrame) {
	local := LocalSuggestions(frame.Partial)
	s.enqueue(outboundFrame{Type: "suggestions", Suggestions: local, Source: "local"})

	if s.relay.ai == nil || len(strings.TrimSpace(frame.Partial)) < aiSuggestionMinLen {
		return
	}
	partial := frame.Partial
	go func() {
		suggestions := s.relay.ai.Suggest(s.ctx, partial)
		if len(suggestions) == 0 {
			return
		}
		s.enqueue(outboundFrame{Type: "suggestions", Suggestions: suggestions, Source: "ai"})
	}()
}

func (s *session) handleAIHelp(frame inboundFrame) {
	if s.relay.ai == nil {
		s.sendError("ai help is not configured")
		return
	}
	question := frame.Question
	go func() {
		answer := s.relay.ai.Answer(s.ctx, question)
		s.enqueue(outboundFrame{Type: "ai-response", Response: answer})
	}()
}

func (s *session) sendError(message string) {
	s.enqueue(outboundFrame{Type: "error", Message: message})
}

// enqueue marshals frame and queues it for the write loop, dropping it if
// the send buffer is full rather than blocking whichever goroutine is
// producing output (the PTY output pump in particular must never stall on
// a slow client).
func (s *session) enqueue(frame outboundFrame) {
	select {
	case <-s.ctx.Done():
		return
	default:
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case s.send <- data:
	default:
	}
}
