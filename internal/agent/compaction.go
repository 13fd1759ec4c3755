package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/riftlabs/vpsagent/internal/llm"
	"github.com/riftlabs/vpsagent/pkg/models"
)

// compactionThreshold and keepRecent implement spec §4.5 step 7's fixed
// memory-management rule: once history grows past 50 messages, summarize
// everything but the last 10.
const (
	compactionThreshold = 50
	keepRecent          = 10
	promptTokenBudget   = 100_000
)

const summaryPrompt = "Summarize the following conversation concisely, preserving " +
	"server state, decisions made, and any commands that were run or pending. " +
	"Write a short paragraph, not a transcript."

// estimateTokens implements spec's estimate(s) = ceil(len(s)/4) token
// accounting rule exactly.
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}

// compactHistory summarizes all but the last keepRecent messages via llmProvider
// when history exceeds compactionThreshold, persisting the result as a
// ConversationSummary and returning a history with a synthetic
// (user: summary)(assistant: acknowledgment) pair standing in for the
// summarized span — grounded on the teacher's internal/sessions/compaction.go
// Compactor.compactWithSummary, adapted to the spec's fixed threshold instead
// of the teacher's percent-of-context-window trigger.
func compactHistory(ctx context.Context, provider summarizeFunc, store ConversationStore, conversationID string, history []models.Message) ([]models.Message, error) {
	if len(history) <= compactionThreshold {
		return history, nil
	}

	toSummarize := history[:len(history)-keepRecent]
	recent := history[len(history)-keepRecent:]

	summary, err := summarize(ctx, provider, toSummarize)
	if err != nil {
		return nil, fmt.Errorf("compact history: %w", err)
	}

	if store != nil {
		record := &models.ConversationSummary{
			ConversationID: conversationID,
			Summary:        summary,
			MessageRange:   fmt.Sprintf("0-%d", len(toSummarize)-1),
			TokenCount:     estimateTokens(summary),
		}
		if err := store.AppendConversationSummary(ctx, record); err != nil {
			return nil, fmt.Errorf("persist conversation summary: %w", err)
		}
	}

	synthetic := []models.Message{
		{Role: models.RoleUser, Content: "Please summarize our conversation so far to save context."},
		{Role: models.RoleAssistant, Content: summary},
	}
	return append(synthetic, recent...), nil
}

// summarizeFunc is the one-call slice of llm.Provider.Complete compaction
// needs; loop.go supplies a closure bound to its provider rather than
// passing the provider itself, so this file's only dependency on
// internal/llm is the Message type trimToBudget operates on.
type summarizeFunc func(ctx context.Context, prompt string) (string, error)

func summarize(ctx context.Context, provider summarizeFunc, messages []models.Message) (string, error) {
	var transcript strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&transcript, "%s: %s\n", m.Role, m.Content)
	}
	return provider(ctx, summaryPrompt+"\n\n"+transcript.String())
}

// trimToBudget drops the oldest non-system messages until the accumulated
// estimated token count is at or under promptTokenBudget, per spec §4.5
// step 7's final trim pass. System/summary-anchor messages (the first two
// entries after compaction) are never dropped by this pass.
func trimToBudget(messages []llm.Message) []llm.Message {
	total := 0
	for _, m := range messages {
		total += estimateTokens(m.Content)
	}

	start := 0
	for total > promptTokenBudget && start < len(messages)-1 {
		total -= estimateTokens(messages[start].Content)
		start++
	}
	return messages[start:]
}
