package llm

import (
	"encoding/json"
	"testing"

	"github.com/riftlabs/vpsagent/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertMessagesSkipsSystemRole(t *testing.T) {
	messages := []Message{
		{Role: "system", Content: "ignored"},
		{Role: "user", Content: "hello"},
	}
	out, err := convertMessages(messages)
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestConvertMessagesToolResultCarriesToolCallID(t *testing.T) {
	messages := []Message{
		{
			Role: "user",
			ToolResults: []models.ToolResult{
				{ToolCallID: "call_1", Success: true, Output: "ok"},
			},
		},
	}
	out, err := convertMessages(messages)
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestConvertMessagesRejectsMalformedToolCallInput(t *testing.T) {
	messages := []Message{
		{
			Role: "assistant",
			ToolCalls: []models.ToolCall{
				{ID: "call_1", Name: "list_directory", Input: json.RawMessage(`not json`)},
			},
		},
	}
	_, err := convertMessages(messages)
	assert.Error(t, err)
}

func TestConvertToolsRejectsMalformedSchema(t *testing.T) {
	_, err := convertTools([]ToolSchema{{Name: "broken", Schema: json.RawMessage(`not json`)}})
	assert.Error(t, err)
}

func TestIsRetryableRecognizesTransientErrors(t *testing.T) {
	assert.True(t, isRetryable(errString("rate_limit_error: slow down")))
	assert.True(t, isRetryable(errString("503 service unavailable")))
	assert.True(t, isRetryable(errString("context deadline exceeded")))
	assert.False(t, isRetryable(errString("invalid api key")))
	assert.False(t, isRetryable(nil))
}

type errString string

func (e errString) Error() string { return string(e) }
