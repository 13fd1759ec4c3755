package agent

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/riftlabs/vpsagent/internal/llm"
	"github.com/riftlabs/vpsagent/internal/observability"
	"github.com/riftlabs/vpsagent/internal/tools"
	"github.com/riftlabs/vpsagent/pkg/models"
)

// maxIterations bounds the tool-use round trips a single Run performs,
// spec §4.5 step 8's "max 10".
const maxIterations = 10

// defaultMaxTokens is the completion budget for every LLM call the loop
// makes, per spec §4.5 step 8.
const defaultMaxTokens = 8192

// Request is one incoming chat turn, mirroring spec §4.5's opening tuple.
type Request struct {
	UserID         string
	Content        string
	ConversationID string
	ServerID       string
	Model          string
	EnableThinking bool
	EnableResearch bool
	Attachments    []models.Attachment
}

// Loop is the Agent Loop (C5): it turns one user message into a streamed,
// tool-using conversation with the configured LLM provider, terminating
// either on a plain text answer or on a tool call that requires approval.
type Loop struct {
	provider llm.Provider
	catalog  Catalog
	dispatch ToolDispatcher
	store    ConversationStore
	research ResearchGateway
	github   GitHubContextProvider
	tracer   *observability.Tracer
}

// SetTracer attaches a tracer for per-iteration and per-tool-call spans,
// wired from C13's bootstrap. A nil tracer (the default) is a no-op.
func (l *Loop) SetTracer(t *observability.Tracer) { l.tracer = t }

// NewLoop wires the Agent Loop over its dependencies. research and github
// may be nil — a nil research gateway simply means EnableResearch is
// ignored, and a nil github provider means the system prompt omits that
// section.
func NewLoop(provider llm.Provider, catalog Catalog, dispatch ToolDispatcher, store ConversationStore, research ResearchGateway, github GitHubContextProvider) *Loop {
	return &Loop{provider: provider, catalog: catalog, dispatch: dispatch, store: store, research: research, github: github}
}

// Run executes spec §4.5's eleven steps against sess, streaming progress
// through emit. sess must already carry a live SSH connection descriptor
// for req.ServerID — credential resolution happens one layer up, in the
// HTTP gateway route, so the loop never touches the Vault directly.
func (l *Loop) Run(ctx context.Context, sess *tools.Session, req *Request, emit Emitter) error {
	conv, err := l.store.GetOrCreateConversation(ctx, req.UserID, req.ServerID, req.ConversationID)
	if err != nil {
		return fmt.Errorf("resolve conversation: %w", err)
	}
	emit.Emit(map[string]any{"conversationId": conv.ID})

	userMsg := &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        req.Content,
		Attachments:    req.Attachments,
		CreatedAt:      time.Now(),
	}
	if err := l.store.AppendMessage(ctx, userMsg); err != nil {
		return fmt.Errorf("persist user message: %w", err)
	}

	var researchAnswer string
	var researchCitations []string
	if req.EnableResearch && l.research != nil {
		emit.Emit(map[string]any{"research": "started"})
		researchAnswer, researchCitations = l.research.Research(ctx, req.Content)
		emit.Emit(map[string]any{"research": "done", "hasAnswer": researchAnswer != ""})
	}

	server, err := l.store.GetServer(ctx, req.ServerID)
	if err != nil {
		return fmt.Errorf("resolve server: %w", err)
	}
	recentCommands, err := l.store.RecentCommands(ctx, req.ServerID, 10)
	if err != nil {
		return fmt.Errorf("resolve recent commands: %w", err)
	}
	system := buildSystemPrompt(ctx, server, recentCommands, l.github, req.UserID, researchAnswer, researchCitations)

	persisted, err := l.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	summaryModel := req.Model
	if summaryModel == "" {
		summaryModel = l.provider.Name()
	}
	compacted, err := compactHistory(ctx, l.summarize, l.store, conv.ID, persisted)
	if err != nil {
		return fmt.Errorf("compact history: %w", err)
	}

	messages := toLLMMessages(compacted)
	if len(messages) == 0 || messages[len(messages)-1].Content != req.Content || messages[len(messages)-1].Role != "user" {
		messages = append(messages, llm.Message{Role: "user", Content: req.Content})
	}
	messages = trimToBudget(messages)

	toolSchemas := buildToolSchemas(l.catalog)

	toolsUsed := map[string]bool{}
	var totalInput, totalOutput int
	var fullResponse string
	iteration := 0

	for ; iteration < maxIterations; iteration++ {
		iterCtx, iterSpan := l.tracer.Start(ctx, "agent.loop_iteration",
			attribute.Int("iteration", iteration), attribute.String("conversation.id", conv.ID))

		llmReq := &llm.Request{
			Model:                req.Model,
			System:               system,
			Messages:             messages,
			Tools:                toolSchemas,
			MaxTokens:            defaultMaxTokens,
			EnableThinking:       req.EnableThinking,
			ThinkingBudgetTokens: 10000,
		}

		events, err := l.provider.Messages(iterCtx, llmReq)
		if err != nil {
			l.tracer.RecordError(iterSpan, err)
			iterSpan.End()
			return fmt.Errorf("llm call: %w", err)
		}

		var iterText string
		var toolCalls []models.ToolCall
		var builder *llm.ToolCallBuilder

		flushBuilder := func() {
			if builder != nil {
				call := builder.Build()
				toolCalls = append(toolCalls, call)
				builder = nil
			}
		}

		for ev := range events {
			switch ev.Kind {
			case llm.EventTextDelta:
				iterText += ev.Text
				emit.Emit(map[string]any{"content": ev.Text})
			case llm.EventThinkingDelta:
				// Thinking deltas are observable but not persisted; the UI may
				// choose to render them, the transcript never does.
			case llm.EventToolUseStart:
				flushBuilder()
				builder = llm.NewToolCallBuilder(ev.ToolID, ev.ToolName)
			case llm.EventToolUseInput:
				if builder != nil {
					builder.Append(ev.ToolInputJSON)
				}
			case llm.EventUsage:
				totalInput += ev.InputTokens
				totalOutput += ev.OutputTokens
			case llm.EventStop:
				if ev.Err != nil {
					l.tracer.RecordError(iterSpan, ev.Err)
					iterSpan.End()
					return fmt.Errorf("llm stream: %w", ev.Err)
				}
			}
		}
		flushBuilder()
		iterSpan.End()

		fullResponse += iterText

		if len(toolCalls) == 0 {
			break
		}

		messages = append(messages, llm.Message{Role: "assistant", Content: iterText, ToolCalls: toolCalls})

		var toolResults []models.ToolResult
		haltedOnApproval := false

		for _, call := range toolCalls {
			toolsUsed[call.Name] = true
			emit.Emit(map[string]any{"toolCall": map[string]any{"name": call.Name, "status": "executing"}})

			start := time.Now()
			toolCtx, toolSpan := l.tracer.Start(ctx, "tool."+call.Name)
			result, err := l.dispatch.Dispatch(toolCtx, call.Name, call.Input, sess)
			l.tracer.RecordError(toolSpan, err)
			toolSpan.End()
			if err != nil {
				result = tools.ErrorResult(err.Error())
			}
			result.ToolCallID = call.ID

			if result.RequiresApproval {
				emit.Emit(map[string]any{"toolCall": map[string]any{
					"name":           call.Name,
					"status":         "requires_approval",
					"pendingCommand": result.PendingCommand,
					"approvalId":     result.ApprovalID,
					"message":        result.Error,
				}})

				assistantMsg := &models.Message{
					ConversationID: conv.ID,
					Role:           models.RoleAssistant,
					Content:        fullResponse,
					Metadata:       &models.MessageMetadata{Mode: "agent", ToolsUsed: toolsUsedList(toolsUsed), PendingApproval: true, Iterations: iteration + 1},
					CreatedAt:      time.Now(),
				}
				if err := l.store.AppendMessage(ctx, assistantMsg); err != nil {
					return fmt.Errorf("persist partial assistant message: %w", err)
				}
				emit.Emit(map[string]any{"done": true, "pendingApproval": true, "toolsUsed": toolsUsedList(toolsUsed)})
				haltedOnApproval = true
				break
			}

			status := "success"
			if !result.Success {
				status = "error"
			}
			emit.Emit(map[string]any{"toolCall": map[string]any{
				"name":          call.Name,
				"status":        status,
				"duration":      time.Since(start).Milliseconds(),
				"outputPreview": result.OutputPreview(500),
			}})
			toolResults = append(toolResults, *result)
		}

		if haltedOnApproval {
			return nil
		}

		messages = append(messages, llm.Message{Role: "tool", ToolResults: toolResults})
	}

	assistantMsg := &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Content:        fullResponse,
		Metadata:       &models.MessageMetadata{Mode: "agent", ToolsUsed: toolsUsedList(toolsUsed), Iterations: iteration + 1},
		CreatedAt:      time.Now(),
	}
	if err := l.store.AppendMessage(ctx, assistantMsg); err != nil {
		return fmt.Errorf("persist assistant message: %w", err)
	}

	if err := recordUsage(ctx, l.store, req.UserID, conv.ID, summaryModel, totalInput, totalOutput); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}

	emit.Emit(map[string]any{"done": true, "conversationId": conv.ID, "mode": "agent", "toolsUsed": toolsUsedList(toolsUsed), "iterations": iteration + 1})
	return nil
}

// summarize adapts l.provider.Complete to the summarizeFunc shape compaction
// needs, using the provider's own default model rather than req.Model so a
// summarization call never consumes the user-selected model's context
// window quirks.
func (l *Loop) summarize(ctx context.Context, prompt string) (string, error) {
	resp, err := l.provider.Complete(ctx, &llm.Request{
		System:    "You compress conversation history. Be concise and factual.",
		Messages:  []llm.Message{{Role: "user", Content: prompt}},
		MaxTokens: 1024,
	})
	if err != nil {
		return "", err
	}
	var out string
	for _, block := range resp.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out, nil
}

func toLLMMessages(history []models.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		role := "user"
		if m.Role == models.RoleAssistant {
			role = "assistant"
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return out
}

func buildToolSchemas(catalog Catalog) []llm.ToolSchema {
	out := make([]llm.ToolSchema, 0, len(catalog))
	for _, t := range catalog.Schemas() {
		out = append(out, llm.ToolSchema{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
	}
	return out
}

func toolsUsedList(used map[string]bool) []string {
	out := make([]string, 0, len(used))
	for name := range used {
		out = append(out, name)
	}
	return out
}
