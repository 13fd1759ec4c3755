package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// maxEmptyStreamEvents guards against a malformed stream that floods empty
// events without ever reaching message_stop.
const maxEmptyStreamEvents = 300

// AnthropicConfig configures an AnthropicProvider. Only APIKey is required.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration
}

// AnthropicProvider implements Provider against the Claude Messages API,
// with exponential-backoff retry around transient failures.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) model(requested string) string {
	if requested == "" {
		return p.defaultModel
	}
	return requested
}

func (p *AnthropicProvider) maxTokens(requested int) int64 {
	if requested <= 0 {
		return 8192
	}
	return int64(requested)
}

func (p *AnthropicProvider) Messages(ctx context.Context, req *Request) (<-chan *Event, error) {
	events := make(chan *Event)

	go func() {
		defer close(events)

		var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
		var err error
		for attempt := 0; attempt <= p.maxRetries; attempt++ {
			stream, err = p.createStream(ctx, req)
			if err == nil {
				break
			}
			if !isRetryable(err) {
				events <- &Event{Kind: EventStop, Err: fmt.Errorf("anthropic: %w", err)}
				return
			}
			if attempt == p.maxRetries {
				break
			}
			backoff := p.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				events <- &Event{Kind: EventStop, Err: ctx.Err()}
				return
			case <-time.After(backoff):
			}
		}
		if err != nil {
			events <- &Event{Kind: EventStop, Err: fmt.Errorf("anthropic: max retries exceeded: %w", err)}
			return
		}

		p.processStream(stream, events)
	}()

	return events, nil
}

func (p *AnthropicProvider) createStream(ctx context.Context, req *Request) (*ssestream.Stream[anthropic.MessageStreamEventUnion], error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model(req.Model)),
		Messages:  messages,
		MaxTokens: p.maxTokens(req.MaxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("convert tools: %w", err)
		}
		params.Tools = tools
	}
	if req.EnableThinking {
		budget := int64(req.ThinkingBudgetTokens)
		if budget < 1024 {
			budget = 10000
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}

	return p.client.Messages.NewStreaming(ctx, params), nil
}

func (p *AnthropicProvider) processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], events chan<- *Event) {
	var toolID, toolName string
	var inThinking bool
	empty := 0

	for stream.Next() {
		ev := stream.Current()
		processed := false

		switch ev.Type {
		case "message_start":
			if usage := ev.AsMessageStart().Message.Usage; usage.InputTokens > 0 {
				events <- &Event{Kind: EventUsage, InputTokens: int(usage.InputTokens)}
				processed = true
			}
		case "content_block_start":
			block := ev.AsContentBlockStart().ContentBlock
			switch block.Type {
			case "thinking":
				inThinking = true
				processed = true
			case "tool_use":
				toolUse := block.AsToolUse()
				toolID, toolName = toolUse.ID, toolUse.Name
				events <- &Event{Kind: EventToolUseStart, ToolID: toolID, ToolName: toolName}
				processed = true
			}
		case "content_block_delta":
			delta := ev.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					events <- &Event{Kind: EventTextDelta, Text: delta.Text}
					processed = true
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					events <- &Event{Kind: EventThinkingDelta, Text: delta.Thinking}
					processed = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					events <- &Event{Kind: EventToolUseInput, ToolID: toolID, ToolInputJSON: delta.PartialJSON}
					processed = true
				}
			}
		case "content_block_stop":
			if inThinking {
				inThinking = false
				processed = true
			} else if toolID != "" {
				toolID = ""
				processed = true
			}
		case "message_delta":
			if usage := ev.AsMessageDelta().Usage; usage.OutputTokens > 0 {
				events <- &Event{Kind: EventUsage, OutputTokens: int(usage.OutputTokens)}
				processed = true
			}
		case "message_stop":
			events <- &Event{Kind: EventStop}
			return
		case "error":
			events <- &Event{Kind: EventStop, Err: errors.New("anthropic: stream error")}
			return
		}

		if processed {
			empty = 0
		} else if empty++; empty >= maxEmptyStreamEvents {
			events <- &Event{Kind: EventStop, Err: fmt.Errorf("anthropic: stream appears malformed after %d empty events", empty)}
			return
		}
	}

	if err := stream.Err(); err != nil {
		events <- &Event{Kind: EventStop, Err: fmt.Errorf("anthropic: %w", err)}
	}
}

// Complete drains Messages into one accumulated Response, used by the task
// planner and research gateway, neither of which needs token-by-token
// delivery.
func (p *AnthropicProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	stream, err := p.Messages(ctx, req)
	if err != nil {
		return nil, err
	}

	resp := &Response{}
	var text strings.Builder
	var builder *ToolCallBuilder

	flushText := func() {
		if text.Len() > 0 {
			resp.Content = append(resp.Content, ContentBlock{Type: "text", Text: text.String()})
			text.Reset()
		}
	}
	flushTool := func() {
		if builder != nil {
			call := builder.Build()
			resp.Content = append(resp.Content, ContentBlock{Type: "tool_use", ToolUse: &call})
			builder = nil
		}
	}

	for ev := range stream {
		switch ev.Kind {
		case EventTextDelta:
			text.WriteString(ev.Text)
		case EventToolUseStart:
			flushText()
			builder = NewToolCallBuilder(ev.ToolID, ev.ToolName)
		case EventToolUseInput:
			if builder != nil {
				builder.Append(ev.ToolInputJSON)
			}
		case EventUsage:
			resp.InputTokens += ev.InputTokens
			resp.OutputTokens += ev.OutputTokens
		case EventStop:
			if ev.Err != nil {
				return nil, ev.Err
			}
		}
	}
	flushTool()
	flushText()
	return resp, nil
}

func convertMessages(messages []Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}
		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, tr := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(tr.ToolCallID, tr.OutputPreview(50_000), !tr.Success))
		}
		for _, tc := range msg.ToolCalls {
			var input map[string]interface{}
			if err := json.Unmarshal(tc.Input, &input); err != nil {
				return nil, fmt.Errorf("invalid tool call input: %w", err)
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}

		if msg.Role == "assistant" {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func convertTools(tools []ToolSchema) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.Schema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", t.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", t.Name)
		}
		param.OfTool.Description = anthropic.String(t.Description)
		result = append(result, param)
	}
	return result, nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{"rate_limit", "429", "too many requests", "500", "502", "503", "504",
		"internal server error", "bad gateway", "service unavailable", "gateway timeout",
		"timeout", "deadline exceeded", "connection reset", "connection refused", "no such host"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
