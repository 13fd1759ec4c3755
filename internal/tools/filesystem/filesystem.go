// Package filesystem implements the execute_command, read_file, write_file,
// edit_file, and list_directory tools: each builds a single remote shell
// command string and runs it via the SSH Executor.
package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/riftlabs/vpsagent/internal/sshexec"
	"github.com/riftlabs/vpsagent/internal/tools"
	"github.com/riftlabs/vpsagent/pkg/models"
)

const defaultTimeout = 30 * time.Second

func runRemote(ctx context.Context, sess *tools.Session, command string, timeout time.Duration) (*models.ToolResult, error) {
	result, err := sshexec.Exec(sess.Conn, command, timeout)
	if err != nil {
		return nil, err
	}
	return &models.ToolResult{
		Success: result.ExitCode == 0,
		Output:  result.OutputWithStderrMarker(),
		Metadata: map[string]any{"exit_code": result.ExitCode},
	}, nil
}

// ExecuteCommandTool runs an arbitrary shell command on the remote host.
type ExecuteCommandTool struct{}

func NewExecuteCommandTool() *ExecuteCommandTool { return &ExecuteCommandTool{} }

func (t *ExecuteCommandTool) Name() string { return "execute_command" }

func (t *ExecuteCommandTool) Description() string {
	return "Run a shell command on the remote server and return stdout/stderr/exit code."
}

func (t *ExecuteCommandTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "Shell command to run."},
			"explanation": {"type": "string", "description": "Why this command is being run."},
			"timeout_seconds": {"type": "integer", "minimum": 1, "description": "Exec timeout, clamped to [1,300]."}
		},
		"required": ["command"]
	}`)
}

func (t *ExecuteCommandTool) RequiresApproval(params json.RawMessage) bool {
	var p struct {
		Command string `json:"command"`
	}
	_ = json.Unmarshal(params, &p)
	return tools.IsDangerousCommand(p.Command)
}

func (t *ExecuteCommandTool) buildCommand(params json.RawMessage) (string, time.Duration, error) {
	var p struct {
		Command        string `json:"command"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return "", 0, fmt.Errorf("invalid parameters: %w", err)
	}
	command := strings.TrimSpace(p.Command)
	if command == "" {
		return "", 0, fmt.Errorf("command is required")
	}
	timeout := time.Duration(p.TimeoutSeconds) * time.Second
	if p.TimeoutSeconds == 0 {
		timeout = defaultTimeout
	}
	return command, timeout, nil
}

// PreviewCommand implements tools.CommandPreviewer.
func (t *ExecuteCommandTool) PreviewCommand(ctx context.Context, sess *tools.Session, params json.RawMessage) (string, error) {
	command, _, err := t.buildCommand(params)
	return command, err
}

func (t *ExecuteCommandTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	command, timeout, err := t.buildCommand(params)
	if err != nil {
		return tools.ErrorResult(err.Error()), nil
	}
	return runRemote(ctx, sess, command, timeout)
}

// ReadFileTool reads a remote file, optionally windowed by start_line/max_lines.
type ReadFileTool struct{}

func NewReadFileTool() *ReadFileTool { return &ReadFileTool{} }

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read a file from the remote server, optionally a line range." }

func (t *ReadFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string"},
			"start_line": {"type": "integer", "minimum": 1},
			"max_lines": {"type": "integer", "minimum": 1}
		},
		"required": ["path"]
	}`)
}

func (t *ReadFileTool) RequiresApproval(json.RawMessage) bool { return false }

func (t *ReadFileTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	var p struct {
		Path      string `json:"path"`
		StartLine int    `json:"start_line"`
		MaxLines  int     `json:"max_lines"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(p.Path) == "" {
		return tools.ErrorResult("path is required"), nil
	}
	maxLines := p.MaxLines
	if maxLines <= 0 {
		maxLines = 500
	}
	start := p.StartLine
	if start <= 0 {
		start = 1
	}
	end := start + maxLines - 1
	command := fmt.Sprintf("sed -n '%d,%dp' %s", start, end, shellQuote(p.Path))
	return runRemote(ctx, sess, command, defaultTimeout)
}

// WriteFileTool overwrites a remote file with literal content via a heredoc.
type WriteFileTool struct{}

func NewWriteFileTool() *WriteFileTool { return &WriteFileTool{} }

func (t *WriteFileTool) Name() string        { return "write_file" }
func (t *WriteFileTool) Description() string { return "Overwrite a file on the remote server with given content." }

func (t *WriteFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string"},
			"content": {"type": "string"}
		},
		"required": ["path", "content"]
	}`)
}

func (t *WriteFileTool) RequiresApproval(json.RawMessage) bool { return false }

func (t *WriteFileTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	var p struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(p.Path) == "" {
		return tools.ErrorResult("path is required"), nil
	}
	marker := "VPSAGENT_EOF_" + randomMarkerSuffix()
	command := fmt.Sprintf("cat > %s <<'%s'\n%s\n%s", shellQuote(p.Path), marker, p.Content, marker)
	return runRemote(ctx, sess, command, defaultTimeout)
}

// EditFileTool performs a literal string replacement in a remote file via sed.
type EditFileTool struct{}

func NewEditFileTool() *EditFileTool { return &EditFileTool{} }

func (t *EditFileTool) Name() string        { return "edit_file" }
func (t *EditFileTool) Description() string { return "Replace the first match of old_string with new_string in a remote file." }

func (t *EditFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string"},
			"old_string": {"type": "string"},
			"new_string": {"type": "string"}
		},
		"required": ["path", "old_string", "new_string"]
	}`)
}

func (t *EditFileTool) RequiresApproval(json.RawMessage) bool { return false }

func (t *EditFileTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	var p struct {
		Path      string `json:"path"`
		OldString string `json:"old_string"`
		NewString string `json:"new_string"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(p.Path) == "" || p.OldString == "" {
		return tools.ErrorResult("path and old_string are required"), nil
	}
	pattern := escapeSedPattern(p.OldString)
	replacement := escapeSedReplacement(p.NewString)
	command := fmt.Sprintf("sed -i '0,/%s/{s/%s/%s/}' %s",
		pattern, pattern, replacement, shellQuote(p.Path))
	return runRemote(ctx, sess, command, defaultTimeout)
}

// ListDirectoryTool lists a remote directory's contents.
type ListDirectoryTool struct{}

func NewListDirectoryTool() *ListDirectoryTool { return &ListDirectoryTool{} }

func (t *ListDirectoryTool) Name() string        { return "list_directory" }
func (t *ListDirectoryTool) Description() string { return "List files in a remote directory (long format)." }

func (t *ListDirectoryTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string"}
		},
		"required": ["path"]
	}`)
}

func (t *ListDirectoryTool) RequiresApproval(json.RawMessage) bool { return false }

func (t *ListDirectoryTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	var p struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(p.Path) == "" {
		return tools.ErrorResult("path is required"), nil
	}
	command := fmt.Sprintf("ls -la %s", shellQuote(p.Path))
	return runRemote(ctx, sess, command, defaultTimeout)
}

// escapeSedPattern escapes BRE metacharacters and the sed delimiter so
// old_string is matched literally.
func escapeSedPattern(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`, `/`, `\/`, `.`, `\.`, `*`, `\*`, `[`, `\[`, `]`, `\]`,
		`^`, `\^`, `$`, `\$`,
	)
	return replacer.Replace(s)
}

// escapeSedReplacement escapes sed replacement-side metacharacters so
// new_string is substituted literally.
func escapeSedReplacement(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `/`, `\/`, `&`, `\&`)
	return replacer.Replace(s)
}

// shellQuote wraps a value in single quotes, escaping embedded single
// quotes, so caller-supplied paths survive as one shell token. The
// executor's contract says commands are passed verbatim and callers are
// responsible for escaping — this is that escaping for the path fields
// these tools build on the caller's behalf.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

var markerCounter int64

func randomMarkerSuffix() string {
	markerCounter++
	return fmt.Sprintf("%d", markerCounter)
}
