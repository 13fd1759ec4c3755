package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/riftlabs/vpsagent/pkg/models"
)

// OpenAIConfig configures an OpenAIProvider. An empty APIKey is tolerated —
// the Research Gateway (C8) constructs one unconditionally and only fails at
// call time if the key was never set, mirroring the provider it wraps for
// Perplexity's OpenAI-compatible API.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration
}

// OpenAIProvider implements Provider against the OpenAI chat completions API,
// and doubles as the transport for any OpenAI-wire-compatible backend (the
// Research Gateway points it at Perplexity's base URL).
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

// NewOpenAIProvider builds a provider. Unlike NewAnthropicProvider it never
// errors on an empty key — Complete/Messages fail at call time instead, so a
// provider can be constructed unconditionally during bootstrap and only
// matters once a request actually arrives.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}

	if cfg.APIKey == "" {
		return &OpenAIProvider{defaultModel: cfg.DefaultModel, maxRetries: cfg.MaxRetries, retryDelay: cfg.RetryDelay}
	}

	oaiCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		oaiCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(oaiCfg),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) model(requested string) string {
	if requested == "" {
		return p.defaultModel
	}
	return requested
}

func (p *OpenAIProvider) Messages(ctx context.Context, req *Request) (<-chan *Event, error) {
	if p.client == nil {
		return nil, errors.New("openai: API key not configured")
	}

	messages, err := convertOpenAIMessages(req.Messages, req.System)
	if err != nil {
		return nil, fmt.Errorf("openai: convert messages: %w", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    p.model(req.Model),
		Messages: messages,
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertOpenAITools(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryDelay * time.Duration(attempt)):
			}
		}

		stream, err = p.client.CreateChatCompletionStream(ctx, chatReq)
		if err == nil {
			break
		}
		if !isRetryableOpenAI(err) {
			return nil, fmt.Errorf("openai: non-retryable error: %w", err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("openai: max retries exceeded: %w", err)
	}

	events := make(chan *Event)
	go processOpenAIStream(stream, events)
	return events, nil
}

// processOpenAIStream mirrors the teacher's per-index tool-call accumulation:
// OpenAI streams tool call fragments keyed by the position of the call within
// the assistant turn, not by the call's own id, so fragments must be grouped
// by index until finish_reason confirms the turn is done.
func processOpenAIStream(stream *openai.ChatCompletionStream, events chan<- *Event) {
	defer close(events)
	defer stream.Close()

	toolCalls := make(map[int]*models.ToolCall)
	started := make(map[int]bool)

	flush := func() {
		for i, tc := range toolCalls {
			if tc.ID == "" || tc.Name == "" {
				continue
			}
			if !started[i] {
				events <- &Event{Kind: EventToolUseStart, ToolID: tc.ID, ToolName: tc.Name}
				started[i] = true
			}
			if len(tc.Input) > 0 {
				events <- &Event{Kind: EventToolUseInput, ToolID: tc.ID, ToolInputJSON: string(tc.Input)}
			}
		}
	}

	for {
		response, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				flush()
				events <- &Event{Kind: EventStop}
				return
			}
			events <- &Event{Kind: EventStop, Err: fmt.Errorf("openai: %w", err)}
			return
		}

		if len(response.Choices) == 0 {
			continue
		}
		if response.Usage != nil {
			events <- &Event{Kind: EventUsage, InputTokens: response.Usage.PromptTokens, OutputTokens: response.Usage.CompletionTokens}
		}

		delta := response.Choices[0].Delta
		if delta.Content != "" {
			events <- &Event{Kind: EventTextDelta, Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if toolCalls[index] == nil {
				toolCalls[index] = &models.ToolCall{}
			}
			if tc.ID != "" {
				toolCalls[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[index].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[index].Input = append(toolCalls[index].Input, tc.Function.Arguments...)
			}
		}

		if response.Choices[0].FinishReason == openai.FinishReasonToolCalls {
			flush()
			toolCalls = make(map[int]*models.ToolCall)
			started = make(map[int]bool)
		}
		if response.Choices[0].FinishReason == openai.FinishReasonStop {
			events <- &Event{Kind: EventStop}
			return
		}
	}
}

// Complete drains Messages into an accumulated Response; identical shape to
// AnthropicProvider.Complete, duplicated rather than shared so each provider
// stays free to diverge on accumulation quirks (OpenAI's per-index tool call
// ids only become visible on the first fragment of each call, not at
// tool_use_start the way Anthropic's do).
func (p *OpenAIProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	stream, err := p.Messages(ctx, req)
	if err != nil {
		return nil, err
	}

	resp := &Response{}
	var text strings.Builder
	builders := map[string]*ToolCallBuilder{}
	var order []string

	for ev := range stream {
		switch ev.Kind {
		case EventTextDelta:
			text.WriteString(ev.Text)
		case EventToolUseStart:
			if _, ok := builders[ev.ToolID]; !ok {
				builders[ev.ToolID] = NewToolCallBuilder(ev.ToolID, ev.ToolName)
				order = append(order, ev.ToolID)
			}
		case EventToolUseInput:
			if b, ok := builders[ev.ToolID]; ok {
				b.Append(ev.ToolInputJSON)
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

	if text.Len() > 0 {
		resp.Content = append(resp.Content, ContentBlock{Type: "text", Text: text.String()})
	}
	for _, id := range order {
		call := builders[id].Build()
		resp.Content = append(resp.Content, ContentBlock{Type: "tool_use", ToolUse: &call})
	}
	return resp, nil
}

func convertOpenAIMessages(messages []Message, system string) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, msg := range messages {
		if len(msg.ToolResults) > 0 {
			for _, tr := range msg.ToolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.OutputPreview(50_000),
					ToolCallID: tr.ToolCallID,
				})
			}
			continue
		}

		oaiMsg := openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
		if msg.Role == "assistant" && len(msg.ToolCalls) > 0 {
			oaiMsg.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls[i] = openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Input),
					},
				}
			}
		}
		result = append(result, oaiMsg)
	}
	return result, nil
}

func convertOpenAITools(tools []ToolSchema) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(t.Schema, &schemaMap); err != nil {
			schemaMap = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schemaMap,
			},
		}
	}
	return result
}

func isRetryableOpenAI(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{"rate limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
