// Package llm defines the chat-completion port the Agent Loop (C5), Task
// Orchestrator (C6, planning only), and Research Gateway (C8) call through,
// plus the Anthropic and OpenAI-compatible implementations behind it.
package llm

import (
	"context"
	"encoding/json"

	"github.com/riftlabs/vpsagent/pkg/models"
)

// Provider is a chat-completion backend. Implementations must be safe for
// concurrent use — the agent loop and task planner may call the same
// provider from different goroutines.
type Provider interface {
	// Name identifies the provider for routing, logging, and pricing
	// lookups ("anthropic", "openai").
	Name() string

	// Messages sends req and returns a channel of streaming Events. The
	// channel is closed when the stream ends, whether by a Stop event or
	// an error; callers must drain it to avoid leaking the backing
	// goroutine.
	Messages(ctx context.Context, req *Request) (<-chan *Event, error)

	// Complete is a non-streaming convenience wrapper over Messages that
	// accumulates the full response before returning, used by the Task
	// Orchestrator's planner and the Research Gateway.
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// ToolSchema is the {name, description, schema} triple a provider needs to
// advertise one catalog entry to the model.
type ToolSchema struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Message is one turn in the conversation sent to the provider. Content and
// ToolCalls/ToolResults are mutually exclusive in practice (an assistant
// turn carries one or the other), but the provider conversion handles both
// being set.
type Message struct {
	Role        string
	Content     string
	ToolCalls   []models.ToolCall
	ToolResults []models.ToolResult
}

// Request carries every parameter a completion call needs, mirroring spec
// §4.11's `messages(...)` signature.
type Request struct {
	Model                string
	System               string
	Messages             []Message
	Tools                []ToolSchema
	MaxTokens            int
	EnableThinking       bool
	ThinkingBudgetTokens int
}

// EventKind discriminates the variants spec §4.11 names for the streaming
// iterator: text_delta, thinking_delta, tool_use_start, tool_use_input,
// usage, stop.
type EventKind string

const (
	EventTextDelta     EventKind = "text_delta"
	EventThinkingDelta EventKind = "thinking_delta"
	EventToolUseStart  EventKind = "tool_use_start"
	EventToolUseInput  EventKind = "tool_use_input"
	EventUsage         EventKind = "usage"
	EventStop          EventKind = "stop"
)

// Event is one streamed unit from Messages. Only the fields relevant to
// Kind are populated.
type Event struct {
	Kind EventKind

	Text     string // EventTextDelta / EventThinkingDelta
	ToolID   string // EventToolUseStart / EventToolUseInput
	ToolName string // EventToolUseStart

	// ToolInputJSON carries one fragment of the tool call's incrementally
	// streamed JSON input (EventToolUseInput); callers concatenate
	// fragments across events belonging to the same ToolID before parsing.
	ToolInputJSON string

	InputTokens  int // EventUsage
	OutputTokens int // EventUsage

	Err error // terminal: stream ends after an event carrying a non-nil Err
}

// ContentBlock is one piece of a non-streaming Response: either text or a
// complete tool_use request.
type ContentBlock struct {
	Type    string // "text" | "tool_use"
	Text    string
	ToolUse *models.ToolCall
}

// Response is Complete's accumulated result.
type Response struct {
	Content      []ContentBlock
	InputTokens  int
	OutputTokens int
}

// ToolCallBuilder accumulates EventToolUseStart/EventToolUseInput fragments
// for one tool id into a models.ToolCall once the caller observes the next
// tool_use_start (or stream end) for a different id. The agent loop and
// Complete's accumulator both use this helper so the JSON-fragment
// bookkeeping lives in one place.
type ToolCallBuilder struct {
	id    string
	name  string
	input []byte
}

func NewToolCallBuilder(id, name string) *ToolCallBuilder {
	return &ToolCallBuilder{id: id, name: name}
}

func (b *ToolCallBuilder) Append(fragment string) {
	b.input = append(b.input, fragment...)
}

func (b *ToolCallBuilder) Build() models.ToolCall {
	return models.ToolCall{ID: b.id, Name: b.name, Input: json.RawMessage(b.input)}
}
