package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToolCallBuilderAccumulatesFragments(t *testing.T) {
	b := NewToolCallBuilder("call_1", "get_logs")
	b.Append(`{"serv`)
	b.Append(`ice":"nginx",`)
	b.Append(`"lines":100}`)

	call := b.Build()
	assert.Equal(t, "call_1", call.ID)
	assert.Equal(t, "get_logs", call.Name)

	var input map[string]any
	require := assert.New(t)
	require.NoError(json.Unmarshal(call.Input, &input))
	require.Equal("nginx", input["service"])
	require.Equal(float64(100), input["lines"])
}

func TestToolCallBuilderEmptyInput(t *testing.T) {
	b := NewToolCallBuilder("call_2", "get_system_metrics")
	call := b.Build()
	assert.Equal(t, "call_2", call.ID)
	assert.Empty(t, call.Input)
}
