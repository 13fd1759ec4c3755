package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/riftlabs/vpsagent/internal/llm"
	"github.com/riftlabs/vpsagent/internal/tools"
	"github.com/riftlabs/vpsagent/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	messages []models.Message
	usage    []*models.ApiUsage
	server   *models.Server
}

func (s *fakeStore) GetOrCreateConversation(_ context.Context, userID, serverID, conversationID string) (*models.Conversation, error) {
	id := conversationID
	if id == "" {
		id = "conv-new"
	}
	return &models.Conversation{ID: id, UserID: userID, VPSServerID: serverID, Mode: models.ModeAgent}, nil
}

func (s *fakeStore) ListMessages(context.Context, string) ([]models.Message, error) {
	return append([]models.Message(nil), s.messages...), nil
}

func (s *fakeStore) AppendMessage(_ context.Context, msg *models.Message) error {
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *fakeStore) ListConversationSummaries(context.Context, string) ([]models.ConversationSummary, error) {
	return nil, nil
}

func (s *fakeStore) AppendConversationSummary(context.Context, *models.ConversationSummary) error {
	return nil
}

func (s *fakeStore) AppendApiUsage(_ context.Context, usage *models.ApiUsage) error {
	s.usage = append(s.usage, usage)
	return nil
}

func (s *fakeStore) GetServer(context.Context, string) (*models.Server, error) {
	if s.server != nil {
		return s.server, nil
	}
	return &models.Server{ID: "srv-1", Name: "web-1", Host: "10.0.0.1", Port: 22, Username: "root"}, nil
}

func (s *fakeStore) RecentCommands(context.Context, string, int) ([]models.CommandHistory, error) {
	return nil, nil
}

type scriptedEvent struct {
	kind llm.EventKind
	text string
	id   string
	name string
	json string
}

type fakeProvider struct {
	script [][]scriptedEvent // one slice of events per Messages() call
	call   int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Messages(ctx context.Context, req *llm.Request) (<-chan *llm.Event, error) {
	events := make(chan *llm.Event, 16)
	idx := p.call
	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}
	p.call++
	for _, se := range p.script[idx] {
		ev := &llm.Event{Kind: se.kind, Text: se.text, ToolID: se.id, ToolName: se.name, ToolInputJSON: se.json}
		if se.kind == llm.EventUsage {
			ev.InputTokens, ev.OutputTokens = 10, 5
		}
		events <- ev
	}
	close(events)
	return events, nil
}

func (p *fakeProvider) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	return &llm.Response{Content: []llm.ContentBlock{{Type: "text", Text: "summary"}}}, nil
}

type fakeEmitter struct {
	events []any
}

func (e *fakeEmitter) Emit(event any) error {
	e.events = append(e.events, event)
	return nil
}

func (e *fakeEmitter) has(key string) bool {
	for _, ev := range e.events {
		if m, ok := ev.(map[string]any); ok {
			if _, present := m[key]; present {
				return true
			}
		}
	}
	return false
}

type fakeDispatcher struct {
	result *models.ToolResult
	err    error
	calls  []string
}

func (d *fakeDispatcher) Dispatch(_ context.Context, toolName string, _ []byte, _ *tools.Session) (*models.ToolResult, error) {
	d.calls = append(d.calls, toolName)
	if d.err != nil {
		return nil, d.err
	}
	return d.result, nil
}

func emptyCatalog() Catalog { return Catalog{} }

func TestLoopRunTextOnlyResponse(t *testing.T) {
	provider := &fakeProvider{script: [][]scriptedEvent{
		{
			{kind: llm.EventTextDelta, text: "All good on web-1."},
			{kind: llm.EventUsage},
			{kind: llm.EventStop},
		},
	}}
	store := &fakeStore{}
	emit := &fakeEmitter{}
	loop := NewLoop(provider, emptyCatalog(), &fakeDispatcher{}, store, nil, nil)

	sess := &tools.Session{ServerID: "srv-1", UserID: "user-1"}
	err := loop.Run(context.Background(), sess, &Request{UserID: "user-1", ServerID: "srv-1", Content: "is everything ok?"}, emit)
	require.NoError(t, err)

	assert.True(t, emit.has("conversationId"))
	assert.True(t, emit.has("done"))
	require.Len(t, store.usage, 1)
	assert.Equal(t, 10, store.usage[0].InputTokens)
	assert.Equal(t, 5, store.usage[0].OutputTokens)

	var sawAssistant bool
	for _, m := range store.messages {
		if m.Role == models.RoleAssistant {
			sawAssistant = true
			assert.Equal(t, "All good on web-1.", m.Content)
			assert.False(t, m.Metadata.PendingApproval)
		}
	}
	assert.True(t, sawAssistant)
}

func TestLoopRunHaltsOnRequiresApproval(t *testing.T) {
	provider := &fakeProvider{script: [][]scriptedEvent{
		{
			{kind: llm.EventToolUseStart, id: "call_1", name: "execute_command"},
			{kind: llm.EventToolUseInput, id: "call_1", json: `{"command":"rm -rf /var/log"}`},
			{kind: llm.EventStop},
		},
	}}
	store := &fakeStore{}
	emit := &fakeEmitter{}
	dispatcher := &fakeDispatcher{result: &models.ToolResult{
		Success:          false,
		RequiresApproval: true,
		PendingCommand:   "rm -rf /var/log",
		ApprovalID:       "approval-1",
		Error:            "this action requires approval",
	}}
	loop := NewLoop(provider, emptyCatalog(), dispatcher, store, nil, nil)

	sess := &tools.Session{ServerID: "srv-1", UserID: "user-1"}
	err := loop.Run(context.Background(), sess, &Request{UserID: "user-1", ServerID: "srv-1", Content: "clear old logs"}, emit)
	require.NoError(t, err)

	require.Len(t, dispatcher.calls, 1)
	assert.Equal(t, "execute_command", dispatcher.calls[0])

	// Halting on approval skips the final usage ledger write.
	assert.Empty(t, store.usage)

	var sawPending bool
	for _, m := range store.messages {
		if m.Role == models.RoleAssistant && m.Metadata != nil && m.Metadata.PendingApproval {
			sawPending = true
		}
	}
	assert.True(t, sawPending)

	var doneEvent map[string]any
	for _, ev := range emit.events {
		if m, ok := ev.(map[string]any); ok {
			if v, present := m["pendingApproval"]; present && v == true {
				doneEvent = m
			}
		}
	}
	require.NotNil(t, doneEvent)
}

func TestLoopRunEndsImmediatelyOnEmptyResponse(t *testing.T) {
	provider := &fakeProvider{script: [][]scriptedEvent{
		{{kind: llm.EventStop}},
	}}

	store := &fakeStore{}
	emit := &fakeEmitter{}
	loop := NewLoop(provider, emptyCatalog(), &fakeDispatcher{}, store, nil, nil)

	sess := &tools.Session{ServerID: "srv-1", UserID: "user-1"}
	err := loop.Run(context.Background(), sess, &Request{UserID: "user-1", ServerID: "srv-1", Content: "hello"}, emit)
	require.NoError(t, err)
}

func TestBuildToolSchemasRoundTripsJSONSchema(t *testing.T) {
	catalog := Catalog{"noop": noopTool{}}
	schemas := buildToolSchemas(catalog)
	require.Len(t, schemas, 1)
	assert.Equal(t, "noop", schemas[0].Name)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(schemas[0].Schema, &parsed))
	assert.Equal(t, "object", parsed["type"])
}

type noopTool struct{}

func (noopTool) Name() string        { return "noop" }
func (noopTool) Description() string { return "does nothing" }
func (noopTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}
func (noopTool) RequiresApproval(json.RawMessage) bool { return false }
func (noopTool) Execute(context.Context, *tools.Session, json.RawMessage) (*models.ToolResult, error) {
	return &models.ToolResult{Success: true}, nil
}
