package terminal

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftlabs/vpsagent/internal/sshexec"
)

// fakePTY is an in-memory PTY backed by io.Pipe, standing in for a real SSH
// shell in tests. Writes from the relay (simulating operator keystrokes)
// land on fromClient for the test to read back; bytes written to toClientW
// (simulating remote shell output) are relayed to the WebSocket client.
type fakePTY struct {
	toClient    *io.PipeReader
	toClientW   *io.PipeWriter
	fromClient  *io.PipeReader
	fromClientW *io.PipeWriter
	resizes     chan [2]int
	closed      chan struct{}
}

func newFakePTY() *fakePTY {
	pr, pw := io.Pipe()
	fr, fw := io.Pipe()
	return &fakePTY{
		toClient: pr, toClientW: pw,
		fromClient: fr, fromClientW: fw,
		resizes: make(chan [2]int, 8),
		closed:  make(chan struct{}),
	}
}

func (p *fakePTY) Read(b []byte) (int, error)  { return p.toClient.Read(b) }
func (p *fakePTY) Write(b []byte) (int, error) { return p.fromClientW.Write(b) }
func (p *fakePTY) WindowChange(cols, rows int) error {
	select {
	case p.resizes <- [2]int{cols, rows}:
	default:
	}
	return nil
}
func (p *fakePTY) Close() error {
	close(p.closed)
	_ = p.toClientW.Close()
	_ = p.fromClientW.Close()
	return nil
}

type fakeOpener struct {
	pty *fakePTY
	err error
}

func (o *fakeOpener) Open(conn sshexec.ServerConnection, cols, rows int) (PTY, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.pty, nil
}

type fakeResolver struct {
	conn sshexec.ServerConnection
	err  error
}

func (r *fakeResolver) Resolve(ctx context.Context, userID, serverID string) (sshexec.ServerConnection, error) {
	return r.conn, r.err
}

func dialRelay(t *testing.T, relay *Relay) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(relay)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/terminal"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func TestRelayConnectOpensShellAndAcksOnce(t *testing.T) {
	pty := newFakePTY()
	relay := New(&fakeResolver{}, &fakeOpener{pty: pty}, nil, nil)
	conn, cleanup := dialRelay(t, relay)
	defer cleanup()

	require.NoError(t, conn.WriteJSON(inboundFrame{Type: "connect", ServerID: "srv-1", UserID: "user-1", Cols: 80, Rows: 24}))

	var out outboundFrame
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "connected", out.Type)
	assert.NotEmpty(t, out.SessionID)
}

func TestRelayConnectSurfacesResolverError(t *testing.T) {
	relay := New(&fakeResolver{err: errors.New("server not found")}, &fakeOpener{}, nil, nil)
	conn, cleanup := dialRelay(t, relay)
	defer cleanup()

	require.NoError(t, conn.WriteJSON(inboundFrame{Type: "connect", ServerID: "missing", UserID: "user-1"}))

	var out outboundFrame
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "error", out.Type)
	assert.Contains(t, out.Message, "server not found")
}

func TestRelayInputWritesToPTYAndFeedsBuffer(t *testing.T) {
	pty := newFakePTY()
	relay := New(&fakeResolver{}, &fakeOpener{pty: pty}, nil, nil)
	conn, cleanup := dialRelay(t, relay)
	defer cleanup()

	require.NoError(t, conn.WriteJSON(inboundFrame{Type: "connect", ServerID: "srv-1", UserID: "user-1"}))
	var ack outboundFrame
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, "connected", ack.Type)

	payload := base64.StdEncoding.EncodeToString([]byte("ls\r"))
	require.NoError(t, conn.WriteJSON(inboundFrame{Type: "input", Data: payload}))

	buf := make([]byte, 3)
	_, err := io.ReadFull(pty.fromClient, buf)
	require.NoError(t, err)
	assert.Equal(t, "ls\r", string(buf))
}

func TestRelayOutputRelaysBase64EncodedPTYBytes(t *testing.T) {
	pty := newFakePTY()
	relay := New(&fakeResolver{}, &fakeOpener{pty: pty}, nil, nil)
	conn, cleanup := dialRelay(t, relay)
	defer cleanup()

	require.NoError(t, conn.WriteJSON(inboundFrame{Type: "connect", ServerID: "srv-1", UserID: "user-1"}))
	var ack outboundFrame
	require.NoError(t, conn.ReadJSON(&ack))

	go func() { _, _ = pty.toClientW.Write([]byte("hello\n")) }()

	var out outboundFrame
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "output", out.Type)
	decoded, err := base64.StdEncoding.DecodeString(out.Data)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(decoded))
}

func TestRelayResizeForwardsToPTY(t *testing.T) {
	pty := newFakePTY()
	relay := New(&fakeResolver{}, &fakeOpener{pty: pty}, nil, nil)
	conn, cleanup := dialRelay(t, relay)
	defer cleanup()

	require.NoError(t, conn.WriteJSON(inboundFrame{Type: "connect", ServerID: "srv-1", UserID: "user-1"}))
	var ack outboundFrame
	require.NoError(t, conn.ReadJSON(&ack))

	require.NoError(t, conn.WriteJSON(inboundFrame{Type: "resize", Cols: 120, Rows: 40}))

	var out outboundFrame
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "resized", out.Type)
	assert.Equal(t, 120, out.Cols)

	select {
	case dims := <-pty.resizes:
		assert.Equal(t, [2]int{120, 40}, dims)
	case <-time.After(time.Second):
		t.Fatal("resize was never forwarded to the PTY")
	}
}

func TestRelaySuggestReturnsLocalMatchesWithoutAI(t *testing.T) {
	relay := New(&fakeResolver{}, &fakeOpener{}, nil, nil)
	conn, cleanup := dialRelay(t, relay)
	defer cleanup()

	require.NoError(t, conn.WriteJSON(inboundFrame{Type: "suggest", Partial: "doc"}))

	var out outboundFrame
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "suggestions", out.Type)
	assert.Equal(t, "local", out.Source)
	assert.Contains(t, out.Suggestions, "docker ps")
}

func TestRelayAIHelpWithoutAssistantReturnsError(t *testing.T) {
	relay := New(&fakeResolver{}, &fakeOpener{}, nil, nil)
	conn, cleanup := dialRelay(t, relay)
	defer cleanup()

	require.NoError(t, conn.WriteJSON(inboundFrame{Type: "ai-help", Question: "why is nginx down"}))

	var out outboundFrame
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "error", out.Type)
}

func TestRelayInputBeforeConnectReturnsError(t *testing.T) {
	relay := New(&fakeResolver{}, &fakeOpener{}, nil, nil)
	conn, cleanup := dialRelay(t, relay)
	defer cleanup()

	require.NoError(t, conn.WriteJSON(inboundFrame{Type: "input", Data: base64.StdEncoding.EncodeToString([]byte("x"))}))

	var out outboundFrame
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "error", out.Type)
	assert.Contains(t, out.Message, "not connected")
}
