package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateParams(t *testing.T) {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string"}
		},
		"required": ["command"]
	}`)

	assert.NoError(t, ValidateParams(schema, json.RawMessage(`{"command":"df -h"}`)))
	assert.Error(t, ValidateParams(schema, json.RawMessage(`{}`)))
	assert.Error(t, ValidateParams(schema, json.RawMessage(`{"command":123}`)))
	assert.Error(t, ValidateParams(schema, json.RawMessage(`not json`)))
}
