package docker

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManageRequiresApproval(t *testing.T) {
	tool := NewManageTool()

	for _, action := range []string{"stop", "rm", "kill", "prune"} {
		assert.True(t, tool.RequiresApproval(json.RawMessage(`{"action":"`+action+`","container":"web"}`)), action)
	}
	for _, action := range []string{"start", "logs", "exec"} {
		assert.False(t, tool.RequiresApproval(json.RawMessage(`{"action":"`+action+`","container":"web"}`)), action)
	}
}

func TestComposeRequiresApprovalOnDown(t *testing.T) {
	tool := NewComposeTool()

	assert.True(t, tool.RequiresApproval(json.RawMessage(`{"action":"down","file":"docker-compose.yml"}`)))
	assert.False(t, tool.RequiresApproval(json.RawMessage(`{"action":"up","file":"docker-compose.yml"}`)))
}

func TestToolSchemasAreValidJSON(t *testing.T) {
	for _, tool := range []interface{ Schema() json.RawMessage }{
		NewListTool(), NewManageTool(), NewComposeTool(),
	} {
		var decoded map[string]any
		assert.NoError(t, json.Unmarshal(tool.Schema(), &decoded))
	}
}
