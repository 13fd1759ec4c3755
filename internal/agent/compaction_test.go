package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/riftlabs/vpsagent/internal/llm"
	"github.com/riftlabs/vpsagent/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("ab"))
	assert.Equal(t, 1, estimateTokens("abcd"))
	assert.Equal(t, 2, estimateTokens("abcde"))
}

func TestCompactHistoryNoOpUnderThreshold(t *testing.T) {
	history := make([]models.Message, 10)
	for i := range history {
		history[i] = models.Message{Role: models.RoleUser, Content: "hi"}
	}

	out, err := compactHistory(context.Background(), nil, nil, "conv-1", history)
	require.NoError(t, err)
	assert.Equal(t, history, out)
}

func TestCompactHistorySummarizesOverflow(t *testing.T) {
	history := make([]models.Message, 60)
	for i := range history {
		history[i] = models.Message{Role: models.RoleUser, Content: "message"}
	}

	var capturedPrompt string
	summarizer := func(_ context.Context, prompt string) (string, error) {
		capturedPrompt = prompt
		return "conversation summary", nil
	}
	store := &fakeUsageStore{}

	out, err := compactHistory(context.Background(), summarizer, store, "conv-1", history)
	require.NoError(t, err)

	// synthetic (user, assistant) pair + the last 10 kept messages
	require.Len(t, out, 12)
	assert.Equal(t, models.RoleUser, out[0].Role)
	assert.Equal(t, models.RoleAssistant, out[1].Role)
	assert.Equal(t, "conversation summary", out[1].Content)
	assert.Contains(t, capturedPrompt, "message")
}

func TestTrimToBudgetDropsOldestUntilUnderBudget(t *testing.T) {
	var messages []llm.Message
	big := strings.Repeat("x", promptTokenBudget*4)
	for i := 0; i < 5; i++ {
		messages = append(messages, llm.Message{Role: "user", Content: big})
	}
	messages = append(messages, llm.Message{Role: "user", Content: "tail"})

	out := trimToBudget(messages)
	assert.Less(t, len(out), len(messages))
	assert.Equal(t, "tail", out[len(out)-1].Content)
}

func TestTrimToBudgetKeepsAtLeastOneMessage(t *testing.T) {
	huge := strings.Repeat("x", promptTokenBudget*40)
	messages := []llm.Message{{Role: "user", Content: huge}, {Role: "user", Content: huge}}

	out := trimToBudget(messages)
	assert.Len(t, out, 1)
}
