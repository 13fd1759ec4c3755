package filesystem

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecuteCommandRequiresApproval(t *testing.T) {
	tool := NewExecuteCommandTool()

	assert.True(t, tool.RequiresApproval(json.RawMessage(`{"command":"rm -rf /var/log"}`)))
	assert.False(t, tool.RequiresApproval(json.RawMessage(`{"command":"df -h"}`)))
}

func TestShellQuoteEscapesSingleQuotes(t *testing.T) {
	assert.Equal(t, `'/tmp/file'`, shellQuote("/tmp/file"))
	assert.Equal(t, `'it'\''s.txt'`, shellQuote("it's.txt"))
}

func TestEscapeSedPattern(t *testing.T) {
	assert.Equal(t, `foo\.bar`, escapeSedPattern("foo.bar"))
	assert.Equal(t, `a\/b`, escapeSedPattern("a/b"))
	assert.Equal(t, `\[x\]`, escapeSedPattern("[x]"))
}

func TestEscapeSedReplacement(t *testing.T) {
	assert.Equal(t, `a\&b`, escapeSedReplacement("a&b"))
	assert.Equal(t, `a\/b`, escapeSedReplacement("a/b"))
}

func TestToolSchemasAreValidJSON(t *testing.T) {
	for _, tool := range []interface{ Schema() json.RawMessage }{
		NewExecuteCommandTool(), NewReadFileTool(), NewWriteFileTool(),
		NewEditFileTool(), NewListDirectoryTool(),
	} {
		var decoded map[string]any
		assert.NoError(t, json.Unmarshal(tool.Schema(), &decoded))
	}
}
